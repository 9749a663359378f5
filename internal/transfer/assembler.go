package transfer

import (
	"errors"
	"fmt"
	"io"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

// Assembler slices a sequential byte stream into chunks aligned to absolute
// offsets. Every chunk is chunkSize bytes except possibly the last.
type Assembler struct {
	r         io.Reader
	chunkSize int64
	offset    int64
	done      bool
	pool      *bufferPool
}

// NewAssembler creates an Assembler reading from r.
func NewAssembler(r io.Reader, chunkSize int64) (*Assembler, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	return &Assembler{
		r:         r,
		chunkSize: chunkSize,
		pool:      newBufferPool(int(chunkSize)),
	}, nil
}

// Next returns the next chunk, or io.EOF once the stream is exhausted.
// The chunk's Data stays valid until it is passed to Release.
func (a *Assembler) Next() (domain.Chunk, error) {
	if a.done {
		return domain.Chunk{}, io.EOF
	}

	buf := a.pool.get()
	n, err := io.ReadFull(a.r, buf)
	switch {
	case errors.Is(err, io.EOF):
		a.done = true
		a.pool.put(buf)
		return domain.Chunk{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		a.done = true
	case err != nil:
		a.pool.put(buf)
		return domain.Chunk{}, fmt.Errorf("read chunk at offset %d: %w", a.offset, err)
	}

	chunk := domain.Chunk{
		Offset: a.offset,
		Size:   int64(n),
		Data:   buf[:n],
	}
	a.offset += int64(n)
	return chunk, nil
}

// Offset returns the number of bytes consumed so far.
func (a *Assembler) Offset() int64 {
	return a.offset
}

// Release hands a chunk's buffer back for reuse. Safe for concurrent use.
func (a *Assembler) Release(c domain.Chunk) {
	if c.Data != nil {
		a.pool.put(c.Data)
	}
}
