package updatesvc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

// Messages of the nextmu.v1.UpdateService API, encoded field by field with
// protowire so no generated code is needed.
//
//	StartUploadVersionRequest  { 1 versionId, 2 hash, 3 type, 4 chunkSize uint32, 5 fileSize uint64 }
//	StartUploadVersionResponse { 1 uploadId, 2 concurrentId, 3 repeated ChunkInfo }
//	ChunkInfo                  { 1 offset uint32, 2 size uint32 }
//	UploadVersionChunkRequest  { 1 uploadId, 2 concurrentId, 3 offset uint32, 4 data bytes }
//	UploadVersionChunkResponse {}
type wireMessage interface {
	marshal() []byte
	unmarshal(b []byte) error
}

type startUploadVersionRequest struct {
	domain.StartUploadRequest
}

func (m *startUploadVersionRequest) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.VersionID)
	b = appendString(b, 2, m.Hash)
	b = appendString(b, 3, m.Type)
	b = appendVarint(b, 4, uint64(uint32(m.ChunkSize)))
	b = appendVarint(b, 5, uint64(m.FileSize))
	return b
}

func (m *startUploadVersionRequest) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &m.VersionID)
		case num == 2 && typ == protowire.BytesType:
			return consumeString(b, &m.Hash)
		case num == 3 && typ == protowire.BytesType:
			return consumeString(b, &m.Type)
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.ChunkSize = int64(uint32(v))
			return n, nil
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.FileSize = int64(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

type startUploadVersionResponse struct {
	domain.StartUploadResponse
}

func (m *startUploadVersionResponse) marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.UploadID)
	b = appendString(b, 2, m.ConcurrentID)
	for _, c := range m.ExistingChunks {
		var info []byte
		info = appendVarint(info, 1, uint64(c.Offset))
		info = appendVarint(info, 2, uint64(c.Size))
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, info)
	}
	return b
}

func (m *startUploadVersionResponse) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &m.UploadID)
		case num == 2 && typ == protowire.BytesType:
			return consumeString(b, &m.ConcurrentID)
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			var c domain.WireChunk
			err := walkFields(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if typ != protowire.VarintType || (num != 1 && num != 2) {
					return protowire.ConsumeFieldValue(num, typ, b), nil
				}
				x, n := protowire.ConsumeVarint(b)
				if num == 1 {
					c.Offset = uint32(x)
				} else {
					c.Size = uint32(x)
				}
				return n, nil
			})
			if err != nil {
				return 0, fmt.Errorf("chunk info: %w", err)
			}
			m.ExistingChunks = append(m.ExistingChunks, c)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

type uploadVersionChunkRequest struct {
	domain.UploadChunkRequest
}

func (m *uploadVersionChunkRequest) marshal() []byte {
	b := make([]byte, 0, len(m.Data)+96)
	b = appendString(b, 1, m.UploadID)
	b = appendString(b, 2, m.ConcurrentID)
	b = appendVarint(b, 3, uint64(m.Offset))
	if len(m.Data) > 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	}
	return b
}

func (m *uploadVersionChunkRequest) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &m.UploadID)
		case num == 2 && typ == protowire.BytesType:
			return consumeString(b, &m.ConcurrentID)
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Offset = uint32(v)
			return n, nil
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				m.Data = append([]byte(nil), v...)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

type uploadVersionChunkResponse struct{}

func (*uploadVersionChunkResponse) marshal() []byte { return nil }

func (*uploadVersionChunkResponse) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// walkFields calls fn for every field of b. fn consumes the field value and
// returns the number of bytes read, or a negative protowire error code.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func consumeString(b []byte, dst *string) (int, error) {
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n, nil
}
