package trace

import (
	"bytes"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Retained trace files compress extremely well (repetitive JSON keys), so
// archived sessions are stored zstd-compressed.

var (
	// encoder and decoder for zstd are reusable and thread-safe
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Compress compresses a raw trace file body.
func Compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/4))
}

// Decompress restores a compressed trace file body.
func Decompress(data []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(data, nil)
}

// ArchiveFile compresses the trace file at src into dst.
func ArchiveFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, Compress(data), 0644)
}

// ReadArchive decodes the events of an archived (compressed) trace file.
func ReadArchive(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := Decompress(data)
	if err != nil {
		return nil, err
	}
	return ReadAll(bytes.NewReader(raw))
}
