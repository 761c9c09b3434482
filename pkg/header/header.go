// Package header implements the ordered, case-insensitive, multi-valued header
// collection shared by requests, responses and both wire protocols.
package header

import (
	"strconv"
	"strings"

	"golang.org/x/net/http2/hpack"
)

// Pseudo header names.
const (
	Method    = ":method"
	Path      = ":path"
	Scheme    = ":scheme"
	Authority = ":authority"
	Status    = ":status"
)

// Header keeps fields in insertion order. Names are stored lower-case, which is the
// HTTP/2 wire form; HTTP/1.1 accepts any case.
type Header struct {
	fields []hpack.HeaderField
}

// New returns an empty collection.
func New() *Header {
	return &Header{}
}

// FromPairs builds a collection from alternating name, value arguments.
func FromPairs(kv ...string) *Header {
	h := New()
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

// IsPseudo reports whether name is a pseudo header.
func IsPseudo(name string) bool {
	return strings.HasPrefix(name, ":")
}

// Len returns the number of fields.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.fields)
}

// Get returns the first value for name, or "".
func (h *Header) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

// Lookup returns the first value for name and whether it was present.
func (h *Header) Lookup(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	name = strings.ToLower(name)
	for _, f := range h.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value for name in order.
func (h *Header) Values(name string) []string {
	if h == nil {
		return nil
	}
	name = strings.ToLower(name)
	var out []string
	for _, f := range h.fields {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether name is present.
func (h *Header) Has(name string) bool {
	_, ok := h.Lookup(name)
	return ok
}

// Add appends a field. Pseudo headers are kept ahead of regular fields.
func (h *Header) Add(name, value string) {
	f := hpack.HeaderField{Name: strings.ToLower(name), Value: value}
	if !IsPseudo(f.Name) {
		h.fields = append(h.fields, f)
		return
	}
	i := 0
	for i < len(h.fields) && IsPseudo(h.fields[i].Name) {
		i++
	}
	h.fields = append(h.fields, hpack.HeaderField{})
	copy(h.fields[i+1:], h.fields[i:])
	h.fields[i] = f
}

// Set replaces the first occurrence of name in place and drops the others, or appends
// when name is absent.
func (h *Header) Set(name, value string) {
	name = strings.ToLower(name)
	found := false
	kept := h.fields[:0]
	for _, f := range h.fields {
		if f.Name == name {
			if found {
				continue
			}
			found = true
			f.Value = value
		}
		kept = append(kept, f)
	}
	h.fields = kept
	if !found {
		h.Add(name, value)
	}
}

// Del removes every field called name.
func (h *Header) Del(name string) {
	h.DelFunc(name, func(string) bool { return true })
}

// DelFunc removes the fields called name whose value satisfies match.
func (h *Header) DelFunc(name string, match func(value string) bool) {
	if h == nil {
		return
	}
	name = strings.ToLower(name)
	kept := h.fields[:0]
	for _, f := range h.fields {
		if f.Name == name && match(f.Value) {
			continue
		}
		kept = append(kept, f)
	}
	h.fields = kept
}

// Clone returns a deep copy; the two collections share no storage.
func (h *Header) Clone() *Header {
	if h == nil {
		return New()
	}
	c := &Header{fields: make([]hpack.HeaderField, len(h.fields))}
	copy(c.fields, h.fields)
	return c
}

// Each calls fn for every field in order, stopping at the first error.
func (h *Header) Each(fn func(name, value string) error) error {
	if h == nil {
		return nil
	}
	for _, f := range h.fields {
		if err := fn(f.Name, f.Value); err != nil {
			return err
		}
	}
	return nil
}

// Fields returns a copy of the fields in order.
func (h *Header) Fields() []hpack.HeaderField {
	if h == nil {
		return nil
	}
	out := make([]hpack.HeaderField, len(h.fields))
	copy(out, h.fields)
	return out
}

// Method returns the :method pseudo header.
func (h *Header) Method() string {
	return h.Get(Method)
}

// StatusCode parses :status; 0 when missing or malformed.
func (h *Header) StatusCode() int {
	code, err := strconv.Atoi(h.Get(Status))
	if err != nil {
		return 0
	}
	return code
}

// String renders the collection one field per line, for debugging.
func (h *Header) String() string {
	var b strings.Builder
	h.Each(func(name, value string) error {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
		return nil
	})
	return b.String()
}
