package codecs

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	pb "go.manifold.dev/atlas/protocol"
)

// Decompressor is a ReadCloser where Close closes and releases Decompressor
// state, but does not Close or affect the underlying Reader.
type Decompressor io.ReadCloser

// Compressor is a WriteCloser where Close closes and releases Compressor
// state, potentially flushing final content to the underlying Writer,
// but does not Close or otherwise affect the underlying Writer.
type Compressor io.WriteCloser

// NewCodecReader returns a Decompressor of the Reader encoded with CompressionCodec.
func NewCodecReader(r io.Reader, codec pb.CompressionCodec) (Decompressor, error) {
	switch codec {
	case pb.CompressionCodec_NONE:
		return io.NopCloser(r), nil
	case pb.CompressionCodec_GZIP:
		return gzip.NewReader(r)
	case pb.CompressionCodec_SNAPPY:
		return io.NopCloser(snappy.NewReader(r)), nil
	case pb.CompressionCodec_ZSTANDARD:
		var d, err = zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case pb.CompressionCodec_LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, pb.NewError(pb.SerializationError, "unsupported codec %s", codec.String())
	}
}

// NewCodecWriter returns a Compressor wrapping the Writer encoding with CompressionCodec.
func NewCodecWriter(w io.Writer, codec pb.CompressionCodec) (Compressor, error) {
	switch codec {
	case pb.CompressionCodec_NONE:
		return nopWriteCloser{w}, nil
	case pb.CompressionCodec_GZIP:
		return gzip.NewWriter(w), nil
	case pb.CompressionCodec_SNAPPY:
		return snappy.NewBufferedWriter(w), nil
	case pb.CompressionCodec_ZSTANDARD:
		return zstd.NewWriter(w)
	case pb.CompressionCodec_LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, pb.NewError(pb.SerializationError, "unsupported codec %s", codec.String())
	}
}

// Compress returns |data| encoded with CompressionCodec.
func Compress(data []byte, codec pb.CompressionCodec) ([]byte, error) {
	var buf bytes.Buffer

	var cw, err = NewCodecWriter(&buf, codec)
	if err != nil {
		return nil, err
	} else if _, err = cw.Write(data); err != nil {
		return nil, errors.WithMessagef(err, "compressing with %s", codec)
	} else if err = cw.Close(); err != nil {
		return nil, errors.WithMessagef(err, "closing %s compressor", codec)
	}
	return buf.Bytes(), nil
}

// Decompress returns the decoding of |data| under CompressionCodec.
func Decompress(data []byte, codec pb.CompressionCodec) ([]byte, error) {
	var cr, err = NewCodecReader(bytes.NewReader(data), codec)
	if err != nil {
		return nil, err
	}
	defer cr.Close()

	out, err := io.ReadAll(cr)
	if err != nil {
		return nil, pb.WrapError(pb.SerializationError, err, "decompressing "+codec.String())
	}
	return out, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
