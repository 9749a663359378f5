package transfer

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

// Negotiator opens upload sessions on the update service.
type Negotiator struct {
	svc       domain.UpdateService
	versionID string
}

// NewNegotiator creates a Negotiator uploading artifacts for versionID.
func NewNegotiator(svc domain.UpdateService, versionID string) *Negotiator {
	return &Negotiator{svc: svc, versionID: versionID}
}

// Precheck validates the parameters that do not depend on the content hash.
func (n *Negotiator) Precheck(fileSize, chunkSize int64) error {
	return domain.ValidateUploadTarget(n.versionID, chunkSize, fileSize)
}

// StartUpload declares the file to the service and returns the negotiated
// session, including the chunks the service already holds for fileHash.
// Invalid parameters are rejected before any network call.
func (n *Negotiator) StartUpload(ctx context.Context, fileHash string, fileSize, chunkSize int64) (*domain.UploadSession, error) {
	req := domain.StartUploadRequest{
		VersionID: n.versionID,
		Hash:      fileHash,
		Type:      domain.ArtifactType,
		ChunkSize: chunkSize,
		FileSize:  fileSize,
	}
	if err := domain.ValidateStartUpload(req); err != nil {
		return nil, err
	}

	resp, err := n.svc.StartUploadVersion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start upload: %w", err)
	}
	if resp.UploadID == "" || resp.ConcurrentID == "" {
		return nil, &domain.RemoteError{
			Category: domain.CategoryInternal,
			Message:  "negotiation returned no upload identifiers",
		}
	}

	existing := make([]domain.ByteRange, 0, len(resp.ExistingChunks))
	for _, c := range resp.ExistingChunks {
		r := domain.ChunkRangeFromWire(c, chunkSize)
		if r.Size > 0 {
			existing = append(existing, r)
		}
	}
	slices.SortFunc(existing, func(a, b domain.ByteRange) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	return &domain.UploadSession{
		UploadID:       resp.UploadID,
		ConcurrentID:   resp.ConcurrentID,
		FileSize:       fileSize,
		FileHash:       fileHash,
		ChunkSize:      chunkSize,
		ExistingChunks: existing,
	}, nil
}
