package codecs

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	pb "go.manifold.dev/atlas/protocol"
)

func TestCodecRoundTrips(t *testing.T) {
	var data = bytes.Repeat([]byte("atlas shard record "), 1000)

	for _, codec := range []pb.CompressionCodec{
		pb.CompressionCodec_NONE,
		pb.CompressionCodec_GZIP,
		pb.CompressionCodec_ZSTANDARD,
		pb.CompressionCodec_SNAPPY,
		pb.CompressionCodec_LZ4,
	} {
		var enc, err = Compress(data, codec)
		require.NoError(t, err, codec.String())

		if codec != pb.CompressionCodec_NONE {
			require.Less(t, len(enc), len(data), codec.String())
		}
		dec, err := Decompress(enc, codec)
		require.NoError(t, err, codec.String())
		require.Equal(t, data, dec, codec.String())
	}
}

func TestStreamingCodec(t *testing.T) {
	var buf bytes.Buffer
	var w, err = NewCodecWriter(&buf, pb.CompressionCodec_ZSTANDARD)
	require.NoError(t, err)

	for i := 0; i != 10; i++ {
		_, err = w.Write([]byte("chunk of streamed content "))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	r, err := NewCodecReader(&buf, pb.CompressionCodec_ZSTANDARD)
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, bytes.Repeat([]byte("chunk of streamed content "), 10), out)
}

func TestUnsupportedCodec(t *testing.T) {
	var _, err = NewCodecWriter(io.Discard, pb.CompressionCodec_INVALID)
	require.EqualError(t, err, "SerializationError: unsupported codec INVALID")
	_, err = NewCodecReader(bytes.NewReader(nil), pb.CompressionCodec(99))
	require.EqualError(t, err, "SerializationError: unsupported codec CompressionCodec(99)")

	// Case: corrupt input is a SerializationError.
	_, err = Decompress([]byte("not snappy"), pb.CompressionCodec_SNAPPY)
	require.True(t, pb.IsKind(err, pb.SerializationError))
}
