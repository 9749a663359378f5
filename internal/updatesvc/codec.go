package updatesvc

import (
	"fmt"

	"google.golang.org/grpc"
)

// codec implements encoding.Codec for the hand-encoded messages in wire.go.
// It registers under the "proto" content subtype so peers built from the
// .proto definition see ordinary protobuf traffic.
type codec struct{}

func (codec) Name() string { return "proto" }

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("updatesvc codec: cannot marshal %T", v)
	}
	return m.marshal(), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("updatesvc codec: cannot unmarshal into %T", v)
	}
	if err := m.unmarshal(data); err != nil {
		return fmt.Errorf("updatesvc codec: decode %T: %w", v, err)
	}
	return nil
}

// ServerCodec makes a grpc.Server decode update service messages.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(codec{})
}
