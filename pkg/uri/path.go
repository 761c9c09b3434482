package uri

import "strings"

const upperhex = "0123456789ABCDEF"

// EncodePath percent-encodes every byte a path may not carry literally. Existing
// %XX escapes are kept, so encoding twice is a no-op.
func EncodePath(p string) string {
	return encode(p, false)
}

// EncodeQuery is EncodePath for the query component, which additionally allows '?'.
func EncodeQuery(q string) string {
	return encode(q, true)
}

func encode(s string, query bool) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !allowed(s, i, query) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if allowed(s, i, query) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

// allowed covers RFC 3986 pchar plus '/' (and '?' in queries).
func allowed(s string, i int, query bool) bool {
	c := s[i]
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~',
		'!', '$', '&', '\'', '(', ')', '*', '+', ',', ';', '=',
		':', '@', '/':
		return true
	case '?':
		return query
	case '%':
		return i+2 < len(s) && ishex(s[i+1]) && ishex(s[i+2])
	}
	return false
}

func ishex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// MergePath resolves a relative reference path against base (RFC 3986 §5.2.3) and
// removes dot segments. Absolute reference paths only get dot-segment removal.
func MergePath(base, ref string) string {
	if strings.HasPrefix(ref, "/") {
		return RemoveDotSegments(ref)
	}
	i := strings.LastIndex(base, "/")
	if i < 0 {
		return RemoveDotSegments("/" + ref)
	}
	return RemoveDotSegments(base[:i+1] + ref)
}

// RemoveDotSegments implements RFC 3986 §5.2.4.
func RemoveDotSegments(in string) string {
	var out strings.Builder
	input := in
	for input != "" {
		switch {
		case strings.HasPrefix(input, "../"):
			input = input[3:]
		case strings.HasPrefix(input, "./"):
			input = input[2:]
		case strings.HasPrefix(input, "/./"):
			input = input[2:]
		case input == "/.":
			input = "/"
		case strings.HasPrefix(input, "/../"):
			input = input[3:]
			trimLastSegment(&out)
		case input == "/..":
			input = "/"
			trimLastSegment(&out)
		case input == "." || input == "..":
			input = ""
		default:
			start := 0
			if input[0] == '/' {
				start = 1
			}
			end := strings.IndexByte(input[start:], '/')
			if end < 0 {
				end = len(input)
			} else {
				end += start
			}
			out.WriteString(input[:end])
			input = input[end:]
		}
	}
	return out.String()
}

func trimLastSegment(b *strings.Builder) {
	s := b.String()
	i := strings.LastIndex(s, "/")
	if i < 0 {
		i = 0
	}
	b.Reset()
	b.WriteString(s[:i])
}
