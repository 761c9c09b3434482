package request

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawexec/pkg/constants"
)

// BodyKind tags the Body variant.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyBytes
	BodyReader
	BodyFunc
)

func (k BodyKind) String() string {
	switch k {
	case BodyBytes:
		return "bytes"
	case BodyReader:
		return "reader"
	case BodyFunc:
		return "func"
	}
	return "none"
}

// PullFunc produces the next body chunk. A nil chunk or io.EOF means the body is
// exhausted. ctx carries the remaining execution deadline.
type PullFunc func(ctx context.Context) ([]byte, error)

// Body is a request body: absent, a fixed byte string, a seekable byte source, or a
// pull function.
type Body struct {
	kind   BodyKind
	data   []byte
	reader io.ReadSeeker
	offset int64
	err    error
	pull   PullFunc
}

// NoBody is the absent body.
var NoBody = Body{}

// BytesBody returns a fixed-length body.
func BytesBody(b []byte) Body {
	if b == nil {
		b = []byte{}
	}
	return Body{kind: BodyBytes, data: b}
}

// StringBody returns a fixed-length body.
func StringBody(s string) Body {
	return BytesBody([]byte(s))
}

// ReaderBody returns a streamed body. Its current offset is remembered so the body can
// be replayed on redirect. If the offset cannot be read, Reader reports that error.
func ReaderBody(r io.ReadSeeker) Body {
	off, err := r.Seek(0, io.SeekCurrent)
	return Body{kind: BodyReader, reader: r, offset: off, err: err}
}

// FuncBody returns a body produced chunk by chunk.
func FuncBody(fn PullFunc) Body {
	return Body{kind: BodyFunc, pull: fn}
}

// Kind returns the variant tag.
func (b Body) Kind() BodyKind { return b.kind }

// Bytes returns the fixed byte string of a BodyBytes body.
func (b Body) Bytes() []byte { return b.data }

// Pull returns the pull function of a BodyFunc body.
func (b Body) Pull() PullFunc { return b.pull }

// Reader rewinds and returns the source of a BodyReader body.
func (b Body) Reader() (io.Reader, error) {
	if b.err != nil {
		return nil, b.err
	}
	if _, err := b.reader.Seek(b.offset, io.SeekStart); err != nil {
		return nil, err
	}
	return b.reader, nil
}

// Len returns the byte length when it is known up front.
func (b Body) Len() (int64, bool) {
	switch b.kind {
	case BodyNone:
		return 0, true
	case BodyBytes:
		return int64(len(b.data)), true
	}
	return 0, false
}

// AttachBody sets the body of req and derives the content-length and
// "expect: 100-continue" headers from it. Bodies of known length up to 1024 bytes
// skip the 100-continue round trip. Headers derived from a previously attached body
// are replaced.
func AttachBody(req *Request, body Body) {
	req.Body = body
	if body.kind == BodyNone {
		return
	}
	n, known := body.Len()
	if known {
		req.Header.Set("content-length", strconv.FormatInt(n, 10))
	} else {
		req.Header.Del("content-length")
	}
	if !known || n > constants.ExpectContinueThreshold {
		req.Header.Set("expect", "100-continue")
	} else {
		req.Header.DelFunc("expect", isContinue)
	}
}

func isContinue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "100-continue")
}
