package temp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrChecksumMismatch indicates the spooled copy changed after download.
var ErrChecksumMismatch = errors.New("spooled asset checksum mismatch")

// Source is the subset of transfer.Source a spool copies from.
type Source interface {
	Name() string
	Size() int64
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Store keeps local copies of remote artifacts so every pass over them reads
// from disk instead of the network.
type Store struct {
	basePath string
}

// NewStore creates a Store rooted at basePath. An empty basePath uses the
// system temp directory.
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "nextmu-uploader")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Store{basePath: basePath}, nil
}

// Spooled is a local copy of a Source.
type Spooled struct {
	name     string
	path     string
	size     int64
	checksum string
}

// Spool copies src to disk once and returns a source backed by the copy.
func (s *Store) Spool(ctx context.Context, src Source) (*Spooled, error) {
	path := filepath.Join(s.basePath, uuid.NewString()+filepath.Ext(src.Name()))
	tmpPath := path + ".partial"

	r, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name(), err)
	}
	defer r.Close()

	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(file, hasher), r)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("copy %s: %w", src.Name(), err)
	}
	if written != src.Size() {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("copy %s: got %d bytes, expected %d", src.Name(), written, src.Size())
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	return &Spooled{
		name:     src.Name(),
		path:     path,
		size:     written,
		checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func (s *Spooled) Name() string { return s.name }

func (s *Spooled) Size() int64 { return s.size }

// Checksum is the SHA-256 of the bytes written while spooling.
func (s *Spooled) Checksum() string { return s.checksum }

// Verify reports an error when hash, a hex SHA-256 computed from a later
// pass over the copy, differs from the digest taken while spooling.
func (s *Spooled) Verify(hash string) error {
	if !strings.EqualFold(hash, s.checksum) {
		return fmt.Errorf("%w: %s spooled as %s, uploaded as %s", ErrChecksumMismatch, s.name, s.checksum, hash)
	}
	return nil
}

func (s *Spooled) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(s.path)
}

// Remove deletes the local copy.
func (s *Spooled) Remove() error {
	return os.Remove(s.path)
}
