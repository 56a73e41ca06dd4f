package strata

// -----------------------------------------------------------------------------
// Noop codec
// -----------------------------------------------------------------------------

// noopCodec implements Codec with no transformation.
type noopCodec struct{}

// NewNoop creates a noop codec. Data passes through unchanged; this is the
// explicit identity codec.
func NewNoop() Codec {
	return &noopCodec{}
}

func (n *noopCodec) Name() string {
	return "noop"
}

func (n *noopCodec) Encode(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (n *noopCodec) Decode(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (n *noopCodec) FixedSize() bool {
	return true
}

func (n *noopCodec) EncodedSize(decodedSize int64) (int64, error) {
	return decodedSize, nil
}

func (n *noopCodec) Config() CodecConfig {
	return CodecConfig{Name: "noop"}
}

func init() {
	RegisterCodec("noop", func([]byte) (Codec, error) {
		return NewNoop(), nil
	})
}
