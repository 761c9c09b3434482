// Package buffer spools payloads in memory and spills them to a temporary file once
// they outgrow a threshold. A spooled payload can be re-read any number of times,
// which is what replaying a streamed request body across redirects needs.
package buffer

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/WhileEndless/go-rawexec/pkg/errors"
)

// DefaultMemoryLimit is the threshold before spilling to disk.
const DefaultMemoryLimit = 4 * 1024 * 1024

// Buffer is an append-only spool.
type Buffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	file   *os.File
	size   int64
	limit  int64
	closed bool
}

// New returns a Buffer that spills past limit bytes. limit <= 0 uses
// DefaultMemoryLimit.
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Buffer{limit: limit}
}

// Spool copies r into a new Buffer.
func Spool(r io.Reader, limit int64) (*Buffer, error) {
	b := New(limit)
	if _, err := io.Copy(b, r); err != nil {
		b.Close()
		return nil, errors.NewIOError("spooling payload", err)
	}
	return b, nil
}

// Write appends p.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.NewIOError("writing closed buffer", nil)
	}
	if b.file == nil && int64(b.buf.Len()+len(p)) <= b.limit {
		b.size += int64(len(p))
		return b.buf.Write(p)
	}
	if b.file == nil {
		if err := b.spill(); err != nil {
			return 0, err
		}
	}
	n, err := b.file.Write(p)
	b.size += int64(n)
	if err != nil {
		return n, errors.NewIOError("writing temp file", err)
	}
	return n, nil
}

func (b *Buffer) spill() error {
	tmp, err := os.CreateTemp("", "rawexec-spool-*.tmp")
	if err != nil {
		return errors.NewIOError("creating temp file", err)
	}
	if _, err := tmp.Write(b.buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.NewIOError("writing temp file", err)
	}
	b.file = tmp
	b.buf = bytes.Buffer{}
	return nil
}

// Size returns the number of bytes written.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Spilled reports whether the payload lives on disk.
func (b *Buffer) Spilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Open returns an independent seekable reader positioned at the start of the
// payload. The caller closes it.
func (b *Buffer) Open() (io.ReadSeekCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.NewIOError("reading closed buffer", nil)
	}
	if b.file == nil {
		return nopCloser{bytes.NewReader(b.buf.Bytes())}, nil
	}
	f, err := os.Open(b.file.Name())
	if err != nil {
		return nil, errors.NewIOError("opening temp file", err)
	}
	return f, nil
}

// Bytes reads the whole payload into memory.
func (b *Buffer) Bytes() ([]byte, error) {
	r, err := b.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close releases the temp file. It is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.buf = bytes.Buffer{}
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	if rerr := os.Remove(b.file.Name()); rerr != nil && err == nil {
		err = rerr
	}
	b.file = nil
	if err != nil {
		return errors.NewIOError("removing temp file", err)
	}
	return nil
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }
