package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

// TransmitStats summarises one upload phase.
type TransmitStats struct {
	Chunks  int
	Sent    int
	Skipped int
	Bytes   int64
}

// Transmitter uploads the chunks of a stream that the service does not
// already hold, with at most parallel uploads in flight.
type Transmitter struct {
	svc      domain.UpdateService
	parallel int
	logger   *slog.Logger
}

// NewTransmitter creates a Transmitter. parallel is clamped to
// [1, domain.MaxParallelChunks].
func NewTransmitter(svc domain.UpdateService, parallel int, logger *slog.Logger) *Transmitter {
	if parallel <= 0 || parallel > domain.MaxParallelChunks {
		parallel = domain.MaxParallelChunks
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transmitter{svc: svc, parallel: parallel, logger: logger}
}

// Transmit reads r sequentially and uploads every chunk missing from the
// session. Each chunk, skipped or sent, adds its size to progress once it
// completes. The first failure cancels the remaining uploads; Transmit always
// waits for in-flight uploads before returning.
func (t *Transmitter) Transmit(ctx context.Context, session *domain.UploadSession, r io.Reader, progress *Progress) (TransmitStats, error) {
	var stats TransmitStats

	asm, err := NewAssembler(r, session.ChunkSize)
	if err != nil {
		return stats, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.parallel)

	var sent atomic.Int64
	var readErr error
	for gctx.Err() == nil {
		chunk, err := asm.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		stats.Chunks++
		stats.Bytes += chunk.Size

		if session.HasChunk(chunk.Offset) {
			asm.Release(chunk)
			stats.Skipped++
			progress.Add(chunk.Size)
			continue
		}

		index, err := domain.ChunkIndex(chunk.Offset, session.ChunkSize)
		if err != nil {
			asm.Release(chunk)
			readErr = err
			break
		}

		// Go blocks while parallel uploads are in flight.
		g.Go(func() error {
			defer asm.Release(chunk)
			err := t.svc.UploadVersionChunk(gctx, domain.UploadChunkRequest{
				UploadID:     session.UploadID,
				ConcurrentID: session.ConcurrentID,
				Offset:       index,
				Data:         chunk.Data,
			})
			if err != nil {
				return fmt.Errorf("upload chunk %d: %w", index, err)
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			progress.Add(chunk.Size)
			sent.Add(1)
			t.logger.Debug("chunk uploaded", "upload_id", session.UploadID, "index", index, "size", chunk.Size)
			return nil
		})
	}

	waitErr := g.Wait()
	stats.Sent = int(sent.Load())

	switch {
	case waitErr != nil:
		return stats, waitErr
	case readErr != nil:
		return stats, readErr
	case ctx.Err() != nil:
		return stats, ctx.Err()
	}
	return stats, nil
}
