package strata

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// -----------------------------------------------------------------------------
// Zstd codec
// -----------------------------------------------------------------------------

// MaxZstdLevel is the highest accepted zstd compression level.
const MaxZstdLevel = 22

// zstdCodec implements Codec using Zstandard compression.
type zstdCodec struct {
	level    int
	checksum bool
}

// ZstdConfig holds the configuration block for the zstd codec.
type ZstdConfig struct {
	// Level is the compression level, 0 through 22 inclusive.
	Level int `json:"level"`

	// Checksum appends a content checksum to each frame when true.
	Checksum bool `json:"checksum"`
}

// NewZstd creates a zstd codec.
//
// Levels above 22 fail with ErrConfig. Each Encode and Decode call builds
// a fresh compression context, so a single codec instance is safe for
// concurrent use.
func NewZstd(cfg ZstdConfig) (Codec, error) {
	if cfg.Level < 0 || cfg.Level > MaxZstdLevel {
		return nil, fmt.Errorf("zstd level must be at most %d, got %d: %w", MaxZstdLevel, cfg.Level, ErrConfig)
	}
	return &zstdCodec{level: cfg.Level, checksum: cfg.Checksum}, nil
}

func (z *zstdCodec) Name() string {
	return "zstd"
}

func (z *zstdCodec) Encode(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(z.level)),
		zstd.WithEncoderCRC(z.checksum),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd: creating encoder: %w", err)
	}
	defer closer(enc)()

	return enc.EncodeAll(data, nil), nil
}

func (z *zstdCodec) Decode(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: creating decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %v: %w", err, ErrCodec)
	}
	return out, nil
}

func (z *zstdCodec) FixedSize() bool {
	return false
}

func (z *zstdCodec) EncodedSize(int64) (int64, error) {
	// Compressed size depends on content, not input length.
	return 0, ErrUnsupported
}

func (z *zstdCodec) Config() CodecConfig {
	raw, _ := jsonCodec.Marshal(ZstdConfig{Level: z.level, Checksum: z.checksum})
	return CodecConfig{Name: "zstd", Configuration: raw}
}

func init() {
	RegisterCodec("zstd", func(configuration []byte) (Codec, error) {
		var cfg ZstdConfig
		if len(configuration) > 0 {
			if err := jsonCodec.Unmarshal(configuration, &cfg); err != nil {
				return nil, fmt.Errorf("zstd configuration: %w", ErrConfig)
			}
		}
		return NewZstd(cfg)
	})
}
