package strata

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// -----------------------------------------------------------------------------
// Gzip codec
// -----------------------------------------------------------------------------

// MaxGzipLevel is the highest accepted gzip compression level.
const MaxGzipLevel = gzip.BestCompression

// gzipCodec implements Codec using gzip compression.
type gzipCodec struct {
	level int
}

// GzipConfig holds the configuration block for the gzip codec.
type GzipConfig struct {
	// Level is the compression level, 0 through 9 inclusive.
	Level int `json:"level"`
}

// NewGzip creates a gzip codec. Levels outside 0 through 9 fail with
// ErrConfig.
func NewGzip(cfg GzipConfig) (Codec, error) {
	if cfg.Level < 0 || cfg.Level > MaxGzipLevel {
		return nil, fmt.Errorf("gzip level must be at most %d, got %d: %w", MaxGzipLevel, cfg.Level, ErrConfig)
	}
	return &gzipCodec{level: cfg.Level}, nil
}

func (g *gzipCodec) Name() string {
	return "gzip"
}

func (g *gzipCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, g.level)
	if err != nil {
		return nil, fmt.Errorf("gzip: creating writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip: compressing: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip: flushing: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *gzipCodec) Decode(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %v: %w", err, ErrCodec)
	}
	defer closer(r)()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %v: %w", err, ErrCodec)
	}
	return out, nil
}

func (g *gzipCodec) FixedSize() bool {
	return false
}

func (g *gzipCodec) EncodedSize(int64) (int64, error) {
	return 0, ErrUnsupported
}

func (g *gzipCodec) Config() CodecConfig {
	raw, _ := jsonCodec.Marshal(GzipConfig{Level: g.level})
	return CodecConfig{Name: "gzip", Configuration: raw}
}

func init() {
	RegisterCodec("gzip", func(configuration []byte) (Codec, error) {
		var cfg GzipConfig
		if len(configuration) > 0 {
			if err := jsonCodec.Unmarshal(configuration, &cfg); err != nil {
				return nil, fmt.Errorf("gzip configuration: %w", ErrConfig)
			}
		}
		return NewGzip(cfg)
	})
}
