package temp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type remoteSource struct {
	data  []byte
	size  int64
	opens int
	err   error
}

func (s *remoteSource) Name() string { return "game.zip" }
func (s *remoteSource) Size() int64  { return s.size }
func (s *remoteSource) Open(context.Context) (io.ReadCloser, error) {
	s.opens++
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func TestSpoolCopiesOnce(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data := bytes.Repeat([]byte("nextmu"), 10_000)
	src := &remoteSource{data: data, size: int64(len(data))}

	sp, err := st.Spool(context.Background(), src)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sp.Remove() })

	assert.Equal(t, "game.zip", sp.Name())
	assert.Equal(t, int64(len(data)), sp.Size())
	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), sp.Checksum())

	for i := 0; i < 2; i++ {
		r, err := sp.Open(context.Background())
		require.NoError(t, err)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		assert.Equal(t, data, got)
	}
	assert.Equal(t, 1, src.opens)

	require.NoError(t, sp.Verify(hex.EncodeToString(sum[:])))
	require.NoError(t, sp.Verify(strings.ToUpper(hex.EncodeToString(sum[:]))))
	other := sha256.Sum256([]byte("tampered"))
	require.ErrorIs(t, sp.Verify(hex.EncodeToString(other[:])), ErrChecksumMismatch)
}

func TestSpoolRejectsShortSource(t *testing.T) {
	dir := t.TempDir()
	st, err := NewStore(dir)
	require.NoError(t, err)

	src := &remoteSource{data: []byte("short"), size: 64}
	_, err = st.Spool(context.Background(), src)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSpoolOpenError(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	boom := errors.New("asset gone")
	_, err = st.Spool(context.Background(), &remoteSource{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestRemoveAndCancelledOpen(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	sp, err := st.Spool(context.Background(), &remoteSource{data: []byte("zip"), size: 3})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sp.Open(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, sp.Remove())
	_, err = sp.Open(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}
