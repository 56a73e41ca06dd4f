package strata

import (
	"fmt"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// -----------------------------------------------------------------------------
// Codec interface
// -----------------------------------------------------------------------------

// Codec is a reversible byte-stream transform applied to chunk data.
//
// Codecs are pluggable and orthogonal to storage. A codec instance is
// immutable after construction and safe for concurrent use: each call
// builds its own compression context rather than sharing one.
type Codec interface {
	// Name returns the codec identifier (for example, "zstd" or "gzip").
	Name() string

	// Encode transforms data. A nil result with a nil error means the codec
	// declines to transform this input; the caller stores the raw bytes.
	Encode(data []byte) ([]byte, error)

	// Decode reverses Encode. Corrupt or wrong-codec input fails with
	// ErrCodec, never silently returning partial bytes.
	Decode(data []byte) ([]byte, error)

	// FixedSize reports whether encoding preserves input length.
	FixedSize() bool

	// EncodedSize returns the encoded length for an input of decodedSize.
	// Codecs whose output size depends on content fail with ErrUnsupported.
	EncodedSize(decodedSize int64) (int64, error)

	// Config returns the serializable description of this instance.
	// FromConfig(c.Config()) reconstructs an equal codec.
	Config() CodecConfig
}

// -----------------------------------------------------------------------------
// Codec configuration
// -----------------------------------------------------------------------------

// CodecConfig is the round-trippable JSON description of a codec instance:
//
//	{"name": "zstd", "configuration": {"level": 3, "checksum": true}}
//
// Unknown keys inside Configuration are the codec's own validation
// responsibility.
type CodecConfig struct {
	Name          string              `json:"name"`
	Configuration jsoniter.RawMessage `json:"configuration,omitempty"`
}

// MarshalConfig serializes a codec's configuration document.
func MarshalConfig(c Codec) ([]byte, error) {
	return jsonCodec.Marshal(c.Config())
}

// UnmarshalConfig parses a configuration document and constructs the codec
// it names.
func UnmarshalConfig(data []byte) (Codec, error) {
	var cfg CodecConfig
	if err := jsonCodec.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing codec configuration: %w", ErrConfig)
	}
	return FromConfig(cfg)
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// codecFactory constructs a codec from its configuration block.
type codecFactory func(configuration jsoniter.RawMessage) (Codec, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]codecFactory)
)

// RegisterCodec adds a codec constructor for the given name.
// Later registrations of the same name replace earlier ones.
func RegisterCodec(name string, factory func(configuration []byte) (Codec, error)) {
	registryMu.Lock()
	registry[name] = func(raw jsoniter.RawMessage) (Codec, error) { return factory(raw) }
	registryMu.Unlock()
}

// FromConfig constructs a codec from its configuration.
// Unknown codec names fail with ErrConfig.
func FromConfig(cfg CodecConfig) (Codec, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown codec %q: %w", cfg.Name, ErrConfig)
	}
	return factory(cfg.Configuration)
}

// RegisteredCodecs returns the sorted names of all registered codecs.
func RegisteredCodecs() []string {
	registryMu.RLock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	registryMu.RUnlock()

	sort.Strings(names)
	return names
}
