package logbuffer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestMappedBuffer(t *testing.T) {
	datadir, err := os.MkdirTemp("", "logbuffer")
	require.NoError(t, err)
	defer os.RemoveAll(datadir)
	path := filepath.Join(datadir, "term-0.log")

	buffer, err := Create(path, TermMinLength)
	require.NoError(t, err)
	require.Equal(t, TermMinLength, buffer.Capacity())
	require.Equal(t, path, buffer.FilePath())

	t.Run("should not allow creating an existing buffer", func(t *testing.T) {
		_, err := Create(path, TermMinLength)
		require.Equal(t, ErrBufferAlreadyExists, err)
	})
	t.Run("should refuse invalid capacities", func(t *testing.T) {
		_, err := Create(filepath.Join(datadir, "invalid.log"), 1000)
		require.Equal(t, ErrInvalidTermLength, errors.Cause(err))
	})
	t.Run("should not open a missing buffer", func(t *testing.T) {
		_, err := OpenMapped(filepath.Join(datadir, "missing.log"))
		require.Equal(t, ErrBufferDoesNotExist, err)
	})
	t.Run("should share frames with another mapping of the same file", func(t *testing.T) {
		_, err := NewAppender(buffer.Buffer).Offer([]byte("shared"))
		require.NoError(t, err)
		other, err := OpenMapped(path)
		require.NoError(t, err)
		defer other.Close()
		out := []string{}
		n, err := NewReader(other.Buffer).Read(collect(&out), 10)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.Equal(t, []string{"shared"}, out)
	})
	t.Run("should close then re-open without losing data", func(t *testing.T) {
		require.NoError(t, buffer.Close())
		buffer, err = OpenMapped(path)
		require.NoError(t, err)
		require.Equal(t, 64, buffer.Tail())
		require.Equal(t, HeaderLength+6, buffer.Header(0).FrameLength())
	})
	t.Run("should refuse files with an invalid size", func(t *testing.T) {
		invalid := filepath.Join(datadir, "truncated.log")
		require.NoError(t, os.WriteFile(invalid, make([]byte, 4096), 0640))
		_, err := OpenMapped(invalid)
		require.Equal(t, ErrInvalidBufferSize, errors.Cause(err))
	})
	t.Run("should delete the backing file", func(t *testing.T) {
		require.NoError(t, buffer.Delete())
		_, err := os.Stat(path)
		require.True(t, os.IsNotExist(err))
	})
}
