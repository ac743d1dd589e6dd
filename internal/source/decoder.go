package source

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Decoder handles zstd decompression of raw files.
type Decoder struct {
	zstdDecoder *zstd.Decoder
}

// NewDecoder creates a new decoder.
func NewDecoder() (*Decoder, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Decoder{zstdDecoder: dec}, nil
}

// Close releases decoder resources.
func (d *Decoder) Close() {
	if d.zstdDecoder != nil {
		d.zstdDecoder.Close()
	}
}

// Decompress decodes a zstd frame.
func (d *Decoder) Decompress(data []byte) ([]byte, error) {
	out, err := d.zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
