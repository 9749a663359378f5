package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkRangeFromWire(t *testing.T) {
	r := ChunkRangeFromWire(WireChunk{Offset: 3, Size: 2}, ChunkSize)
	require.Equal(t, 3*ChunkSize, r.Offset)
	require.Equal(t, 2*ChunkSize, r.Size)
	require.True(t, r.Contains(3*ChunkSize))
	require.True(t, r.Contains(4*ChunkSize))
	require.False(t, r.Contains(5*ChunkSize))
	require.False(t, r.Contains(3*ChunkSize-1))
}

func TestChunkIndex(t *testing.T) {
	idx, err := ChunkIndex(4*ChunkSize, ChunkSize)
	require.NoError(t, err)
	require.Equal(t, uint32(4), idx)

	idx, err = ChunkIndex(0, ChunkSize)
	require.NoError(t, err)
	require.Zero(t, idx)

	_, err = ChunkIndex(ChunkSize+1, ChunkSize)
	require.Error(t, err)

	_, err = ChunkIndex(-ChunkSize, ChunkSize)
	require.Error(t, err)

	_, err = ChunkIndex(10, 0)
	require.Error(t, err)
}

func TestChunkIndexRoundTripsWireOffsets(t *testing.T) {
	for _, wire := range []uint32{0, 1, 7, 10239} {
		r := ChunkRangeFromWire(WireChunk{Offset: wire, Size: 1}, MinChunkSize)
		idx, err := ChunkIndex(r.Offset, MinChunkSize)
		require.NoError(t, err)
		require.Equal(t, wire, idx)
	}
}

func TestTotalChunks(t *testing.T) {
	require.Equal(t, int64(4), TotalChunks(3*ChunkSize+100, ChunkSize))
	require.Equal(t, int64(3), TotalChunks(3*ChunkSize, ChunkSize))
	require.Equal(t, int64(1), TotalChunks(1, ChunkSize))
	require.Zero(t, TotalChunks(0, ChunkSize))
}

func TestUploadSessionHasChunk(t *testing.T) {
	s := &UploadSession{
		ChunkSize: ChunkSize,
		ExistingChunks: []ByteRange{
			{Offset: 0, Size: 2 * ChunkSize},
			{Offset: 4 * ChunkSize, Size: ChunkSize},
		},
	}
	require.True(t, s.HasChunk(0))
	require.True(t, s.HasChunk(ChunkSize))
	require.False(t, s.HasChunk(2*ChunkSize))
	require.False(t, s.HasChunk(3*ChunkSize))
	require.True(t, s.HasChunk(4*ChunkSize))
	require.False(t, s.HasChunk(5*ChunkSize))
}

func TestValidateFileSizeBoundaries(t *testing.T) {
	require.ErrorIs(t, ValidateFileSize(MinimumFileSize-1), ErrFileTooSmall)
	require.NoError(t, ValidateFileSize(MinimumFileSize))
	require.NoError(t, ValidateFileSize(MaximumFileSize))
	require.ErrorIs(t, ValidateFileSize(MaximumFileSize+1), ErrFileTooLarge)

	var verr *ValidationError
	require.ErrorAs(t, ValidateFileSize(0), &verr)
	require.Equal(t, "fileSize", verr.Field)
}

func validStartRequest() StartUploadRequest {
	return StartUploadRequest{
		VersionID: "65f1c0ffee0ddba11c0ffee0",
		Hash:      strings.Repeat("ab", 32),
		Type:      ArtifactType,
		ChunkSize: ChunkSize,
		FileSize:  10 * MiB,
	}
}

func TestValidateStartUpload(t *testing.T) {
	require.NoError(t, ValidateStartUpload(validStartRequest()))

	cases := []struct {
		name   string
		mutate func(*StartUploadRequest)
		field  string
	}{
		{"bad version", func(r *StartUploadRequest) { r.VersionID = "nope" }, "versionId"},
		{"short hash", func(r *StartUploadRequest) { r.Hash = r.Hash[:63] }, "hash"},
		{"non hex hash", func(r *StartUploadRequest) { r.Hash = strings.Repeat("zz", 32) }, "hash"},
		{"wrong type", func(r *StartUploadRequest) { r.Type = "application/octet-stream" }, "type"},
		{"odd chunk", func(r *StartUploadRequest) { r.ChunkSize = 16*KiB + 1 }, "chunkSize"},
		{"chunk too small", func(r *StartUploadRequest) { r.ChunkSize = 8 * KiB }, "chunkSize"},
		{"chunk too large", func(r *StartUploadRequest) { r.ChunkSize = 1 * MiB }, "chunkSize"},
		{"file too small", func(r *StartUploadRequest) { r.FileSize = 10 }, "fileSize"},
		{"first field wins", func(r *StartUploadRequest) { r.Hash = ""; r.FileSize = 0 }, "hash"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validStartRequest()
			tc.mutate(&req)
			var verr *ValidationError
			require.ErrorAs(t, ValidateStartUpload(req), &verr)
			require.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestValidateUploadTarget(t *testing.T) {
	const version = "65f1c0ffee0ddba11c0ffee0"
	require.NoError(t, ValidateUploadTarget(version, ChunkSize, MinimumFileSize))

	cases := []struct {
		version   string
		chunkSize int64
		fileSize  int64
		field     string
	}{
		{"bad", 1000, 0, "versionId"},
		{version, 1000, MinimumFileSize, "chunkSize"},
		{version, MaxChunkSize + 2, MinimumFileSize, "chunkSize"},
		{version, ChunkSize, MaximumFileSize + 1, "fileSize"},
	}
	for _, tc := range cases {
		var verr *ValidationError
		require.ErrorAs(t, ValidateUploadTarget(tc.version, tc.chunkSize, tc.fileSize), &verr)
		require.Equal(t, tc.field, verr.Field)
	}
}

func TestValidateUploadChunk(t *testing.T) {
	req := UploadChunkRequest{
		UploadID:     "65f1c0ffee0ddba11c0ffee0",
		ConcurrentID: "65f1c0ffee0ddba11c0ffee1",
		Data:         make([]byte, 10),
	}
	require.NoError(t, ValidateUploadChunk(req))

	req.Data = make([]byte, MaxChunkSize+1)
	var verr *ValidationError
	require.ErrorAs(t, ValidateUploadChunk(req), &verr)
	require.Equal(t, "data", verr.Field)

	req.ConcurrentID = "x"
	require.ErrorAs(t, ValidateUploadChunk(req), &verr)
	require.Equal(t, "concurrentId", verr.Field)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("launcher")
	require.NoError(t, err)
	require.Equal(t, ModeLauncher, m)

	_, err = ParseMode("server")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "mode", verr.Field)
}

func TestRemoteErrorMatching(t *testing.T) {
	err := error(&RemoteError{Category: CategoryUnavailable, Message: "connection refused"})
	require.ErrorIs(t, err, ErrUnavailable)
	require.NotErrorIs(t, err, ErrUnauthenticated)

	wrapped := errors.Join(errors.New("start upload"), err)
	cat, ok := CategoryOf(wrapped)
	require.True(t, ok)
	require.Equal(t, CategoryUnavailable, cat)
	require.True(t, cat.Transient())
	require.False(t, CategoryPermissionDenied.Transient())

	_, ok = CategoryOf(errors.New("plain"))
	require.False(t, ok)
}
