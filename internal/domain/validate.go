package domain

import (
	"fmt"
	"strings"
)

const objectIDLength = 24

// IsObjectID reports whether s is a 24 character hex identifier.
func IsObjectID(s string) bool {
	return len(s) == objectIDLength && isHex(s)
}

// IsContentHash reports whether s is a 64 character hex SHA-256 digest.
func IsContentHash(s string) bool {
	return len(s) == HashLength && isHex(s)
}

// ValidChunkSize reports whether size is an even value in [MinChunkSize, MaxChunkSize].
func ValidChunkSize(size int64) bool {
	return size%2 == 0 && size >= MinChunkSize && size <= MaxChunkSize
}

// ValidateFileSize checks the upload size bounds.
func ValidateFileSize(size int64) error {
	switch {
	case size < MinimumFileSize:
		return &ValidationError{
			Field:  "fileSize",
			Reason: fmt.Sprintf("must be at least %d bytes", MinimumFileSize),
			Err:    ErrFileTooSmall,
		}
	case size > MaximumFileSize:
		return &ValidationError{
			Field:  "fileSize",
			Reason: fmt.Sprintf("must be at most %d bytes", MaximumFileSize),
			Err:    ErrFileTooLarge,
		}
	}
	return nil
}

// ValidateStartUpload returns the first invalid field of req, if any.
func ValidateStartUpload(req StartUploadRequest) error {
	if !IsObjectID(req.VersionID) {
		return &ValidationError{Field: "versionId", Reason: "must be a 24 character hex id"}
	}
	if !IsContentHash(req.Hash) {
		return &ValidationError{Field: "hash", Reason: "must be 64 hex characters"}
	}
	if req.Type != ArtifactType {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("must be %q", ArtifactType)}
	}
	if !ValidChunkSize(req.ChunkSize) {
		return &ValidationError{
			Field:  "chunkSize",
			Reason: fmt.Sprintf("must be a multiple of 2 between %d and %d", MinChunkSize, MaxChunkSize),
		}
	}
	return ValidateFileSize(req.FileSize)
}

// ValidateUploadTarget checks every start-upload field that is known before
// the content hash, in the same order ValidateStartUpload reports them.
func ValidateUploadTarget(versionID string, chunkSize, fileSize int64) error {
	if !IsObjectID(versionID) {
		return &ValidationError{Field: "versionId", Reason: "must be a 24 character hex id"}
	}
	if !ValidChunkSize(chunkSize) {
		return &ValidationError{
			Field:  "chunkSize",
			Reason: fmt.Sprintf("must be a multiple of 2 between %d and %d", MinChunkSize, MaxChunkSize),
		}
	}
	return ValidateFileSize(fileSize)
}

// ValidateUploadChunk returns the first invalid field of req, if any.
func ValidateUploadChunk(req UploadChunkRequest) error {
	if !IsObjectID(req.UploadID) {
		return &ValidationError{Field: "uploadId", Reason: "must be a 24 character hex id"}
	}
	if !IsObjectID(req.ConcurrentID) {
		return &ValidationError{Field: "concurrentId", Reason: "must be a 24 character hex id"}
	}
	if int64(len(req.Data)) > MaxChunkSize {
		return &ValidationError{Field: "data", Reason: fmt.Sprintf("must be at most %d bytes", MaxChunkSize)}
	}
	return nil
}

func isHex(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F')
	}) < 0
}
