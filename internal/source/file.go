package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a local archive. Size is captured when the file is opened for the
// first time so a later change is detected while streaming.
type File struct {
	path string
	size int64
}

// NewFile stats path and returns a File source for it.
func NewFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &File{path: path, size: info.Size()}, nil
}

func (f *File) Name() string { return filepath.Base(f.path) }

func (f *File) Size() int64 { return f.size }

// Open opens the file for one sequential pass.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(f.path)
}
