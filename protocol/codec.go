package protocol

import (
	"fmt"
	"strings"
)

// CompressionCodec enumerates codecs under which stored shard records
// may be compressed.
type CompressionCodec int32

const (
	CompressionCodec_INVALID CompressionCodec = iota
	CompressionCodec_NONE
	CompressionCodec_GZIP
	CompressionCodec_ZSTANDARD
	CompressionCodec_SNAPPY
	CompressionCodec_LZ4
)

var CompressionCodec_name = map[CompressionCodec]string{
	CompressionCodec_INVALID:   "INVALID",
	CompressionCodec_NONE:      "NONE",
	CompressionCodec_GZIP:      "GZIP",
	CompressionCodec_ZSTANDARD: "ZSTANDARD",
	CompressionCodec_SNAPPY:    "SNAPPY",
	CompressionCodec_LZ4:       "LZ4",
}

// String returns the name of the CompressionCodec.
func (m CompressionCodec) String() string {
	if n, ok := CompressionCodec_name[m]; ok {
		return n
	}
	return fmt.Sprintf("CompressionCodec(%d)", int32(m))
}

// Validate returns an error if the CompressionCodec is not well-formed.
func (m CompressionCodec) Validate() error {
	if _, ok := CompressionCodec_name[m]; !ok || m == CompressionCodec_INVALID {
		return NewError(InvalidInput, "invalid CompressionCodec (%s)", m)
	}
	return nil
}

// CompressionCodecFromString parses a CompressionCodec name, case-insensitively.
func CompressionCodecFromString(s string) (CompressionCodec, error) {
	for c, n := range CompressionCodec_name {
		if c != CompressionCodec_INVALID && strings.EqualFold(n, s) {
			return c, nil
		}
	}
	return CompressionCodec_INVALID, NewError(InvalidInput, "unrecognized CompressionCodec: %s", s)
}

// ToExtension returns the file extension of the CompressionCodec.
func (m CompressionCodec) ToExtension() string {
	switch m {
	case CompressionCodec_NONE:
		return ".raw"
	case CompressionCodec_GZIP:
		return ".gz"
	case CompressionCodec_ZSTANDARD:
		return ".zst"
	case CompressionCodec_SNAPPY:
		return ".sz"
	case CompressionCodec_LZ4:
		return ".lz4"
	default:
		panic("invalid CompressionCodec")
	}
}

// CompressionCodecFromExtension matches a file extension to its corresponding CompressionCodec.
func CompressionCodecFromExtension(ext string) (CompressionCodec, error) {
	switch strings.ToLower(ext) {
	case ".raw":
		return CompressionCodec_NONE, nil
	case ".gz", ".gzip":
		return CompressionCodec_GZIP, nil
	case ".zst", ".zstandard":
		return CompressionCodec_ZSTANDARD, nil
	case ".sz", ".snappy":
		return CompressionCodec_SNAPPY, nil
	case ".lz4":
		return CompressionCodec_LZ4, nil
	default:
		return CompressionCodec_INVALID, NewError(InvalidInput, "unrecognized compression extension: %s", ext)
	}
}
