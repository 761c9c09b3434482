package buffer

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferStaysInMemory(t *testing.T) {
	b := New(16)
	defer b.Close()

	_, err := io.WriteString(b, "0123456789")
	require.NoError(t, err)
	assert.False(t, b.Spilled())
	assert.EqualValues(t, 10, b.Size())

	got, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
}

func TestBufferSpillsAndReplays(t *testing.T) {
	b, err := Spool(strings.NewReader(strings.Repeat("ab", 50)), 32)
	require.NoError(t, err)
	assert.True(t, b.Spilled())
	assert.EqualValues(t, 100, b.Size())

	for i := 0; i < 2; i++ {
		r, err := b.Open()
		require.NoError(t, err)
		_, err = r.Seek(98, io.SeekStart)
		require.NoError(t, err)
		tail, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "ab", string(tail))
		require.NoError(t, r.Close())
	}

	r, err := b.Open()
	require.NoError(t, err)
	path := r.(*os.File).Name()
	r.Close()

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = b.Open()
	assert.Error(t, err)
	_, err = b.Write([]byte("x"))
	assert.Error(t, err)
}
