package wire

import "fmt"

// CodecName is the gRPC content subtype used for mapbridge messages.
const CodecName = "mapbridge"

// Message is implemented by every type carried over the transport.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Codec adapts Message to the gRPC codec interface.
type Codec struct{}

// Marshal encodes v, which must implement Message.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("wire codec cannot marshal %T", v)
	}
	return m.Marshal()
}

// Unmarshal decodes data into v, which must implement Message.
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("wire codec cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

// Name returns CodecName.
func (Codec) Name() string {
	return CodecName
}
