package domain

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	KiB int64 = 1024
	MiB       = 1024 * KiB
	GiB       = 1024 * MiB

	MinimumFileSize   = 1 * KiB
	MaximumFileSize   = 5 * GiB
	ChunkSize         = 512 * KiB // client default
	MinChunkSize      = 16 * KiB
	MaxChunkSize      = 512 * KiB
	MaxParallelChunks = 5

	ArtifactType = "application/zip"
	HashLength   = 64
)

// Mode selects which update service an upload targets.
type Mode string

const (
	ModeGame     Mode = "game"
	ModeLauncher Mode = "launcher"
)

// Modes lists every update service the portal knows about.
var Modes = []Mode{ModeGame, ModeLauncher}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !slices.Contains(Modes, m) {
		return "", &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown update service %q", s)}
	}
	return m, nil
}

// ByteRange is the half-open byte interval [Offset, Offset+Size).
type ByteRange struct {
	Offset int64 `json:"offset"`
	Size   int64 `json:"size"`
}

// End returns the first offset past the range.
func (r ByteRange) End() int64 {
	return r.Offset + r.Size
}

// Contains reports whether off falls inside the range.
func (r ByteRange) Contains(off int64) bool {
	return off >= r.Offset && off < r.End()
}

// WireChunk is a chunk range as the update service reports it, in chunk units.
type WireChunk struct {
	Offset uint32 `json:"offset"`
	Size   uint32 `json:"size"`
}

// ChunkRangeFromWire converts a service range from chunk units to bytes.
func ChunkRangeFromWire(c WireChunk, chunkSize int64) ByteRange {
	return ByteRange{
		Offset: int64(c.Offset) * chunkSize,
		Size:   int64(c.Size) * chunkSize,
	}
}

// ChunkIndex converts a byte offset into the chunk index the service expects.
func ChunkIndex(offset, chunkSize int64) (uint32, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	if offset < 0 || offset%chunkSize != 0 {
		return 0, fmt.Errorf("offset %d is not aligned to chunk size %d", offset, chunkSize)
	}
	idx := offset / chunkSize
	if idx > int64(^uint32(0)) {
		return 0, fmt.Errorf("chunk index %d out of range", idx)
	}
	return uint32(idx), nil
}

// TotalChunks returns ceil(size/chunkSize).
func TotalChunks(size, chunkSize int64) int64 {
	if chunkSize <= 0 || size <= 0 {
		return 0
	}
	return (size + chunkSize - 1) / chunkSize
}

// UploadSession is the negotiated state of one upload attempt. It lives in
// memory for the duration of a transfer and is never persisted client-side.
type UploadSession struct {
	UploadID       string
	ConcurrentID   string
	FileSize       int64
	FileHash       string
	ChunkSize      int64
	ExistingChunks []ByteRange // sorted by offset, bytes
}

// HasChunk reports whether the service already holds the chunk starting at offset.
func (s *UploadSession) HasChunk(offset int64) bool {
	for _, r := range s.ExistingChunks {
		if r.Offset > offset {
			return false
		}
		if r.Contains(offset) {
			return true
		}
	}
	return false
}

// Chunk is a contiguous region of the source file.
type Chunk struct {
	Offset int64
	Size   int64
	Data   []byte
}

// StartUploadRequest opens or resumes an upload session on the update service.
type StartUploadRequest struct {
	VersionID string
	Hash      string
	Type      string
	ChunkSize int64
	FileSize  int64
}

// StartUploadResponse is returned by the update service on negotiation.
type StartUploadResponse struct {
	UploadID       string      `json:"uploadId"`
	ConcurrentID   string      `json:"concurrentId"`
	ExistingChunks []WireChunk `json:"existingChunks"`
}

// UploadChunkRequest carries one chunk. Offset is a chunk index.
type UploadChunkRequest struct {
	UploadID     string
	ConcurrentID string
	Offset       uint32
	Data         []byte
}

// UpdateService is the remote ingestion service as seen by the upload core.
type UpdateService interface {
	StartUploadVersion(ctx context.Context, req StartUploadRequest) (*StartUploadResponse, error)
	UploadVersionChunk(ctx context.Context, req UploadChunkRequest) error
}

// Session is an authenticated portal session.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	UserID    string        `json:"userId"`
	Name      string        `json:"name"`
	Roles     []string      `json:"roles"`
	Token     *oauth2.Token `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// HasRole reports whether the session grants role.
func (s *Session) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
