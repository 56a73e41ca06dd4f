package strata

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// -----------------------------------------------------------------------------
// LZ4 codec
// -----------------------------------------------------------------------------

// MaxLZ4Level is the highest accepted lz4 compression level.
const MaxLZ4Level = 9

// lz4Codec implements Codec using LZ4 frame compression.
type lz4Codec struct {
	level int
}

// LZ4Config holds the configuration block for the lz4 codec.
type LZ4Config struct {
	// Level is the compression level, 0 (fast) through 9 inclusive.
	Level int `json:"level"`
}

// NewLZ4 creates an lz4 codec. Levels outside 0 through 9 fail with
// ErrConfig.
func NewLZ4(cfg LZ4Config) (Codec, error) {
	if cfg.Level < 0 || cfg.Level > MaxLZ4Level {
		return nil, fmt.Errorf("lz4 level must be at most %d, got %d: %w", MaxLZ4Level, cfg.Level, ErrConfig)
	}
	return &lz4Codec{level: cfg.Level}, nil
}

func (l *lz4Codec) Name() string {
	return "lz4"
}

func (l *lz4Codec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(compressionLevel(l.level))); err != nil {
		return nil, fmt.Errorf("lz4: setting level: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4: compressing: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4: flushing: %w", err)
	}
	return buf.Bytes(), nil
}

func (l *lz4Codec) Decode(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("lz4: %v: %w", err, ErrCodec)
	}
	return out, nil
}

// compressionLevel maps the 0-9 configuration level onto the lz4 frame
// level constants (lz4.Fast, lz4.Level1 .. lz4.Level9).
func compressionLevel(level int) lz4.CompressionLevel {
	if level == 0 {
		return lz4.Fast
	}
	return lz4.CompressionLevel(1 << (8 + level))
}

func (l *lz4Codec) FixedSize() bool {
	return false
}

func (l *lz4Codec) EncodedSize(int64) (int64, error) {
	return 0, ErrUnsupported
}

func (l *lz4Codec) Config() CodecConfig {
	raw, _ := jsonCodec.Marshal(LZ4Config{Level: l.level})
	return CodecConfig{Name: "lz4", Configuration: raw}
}

func init() {
	RegisterCodec("lz4", func(configuration []byte) (Codec, error) {
		var cfg LZ4Config
		if len(configuration) > 0 {
			if err := jsonCodec.Unmarshal(configuration, &cfg); err != nil {
				return nil, fmt.Errorf("lz4 configuration: %w", ErrConfig)
			}
		}
		return NewLZ4(cfg)
	})
}
