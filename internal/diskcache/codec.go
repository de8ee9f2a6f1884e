// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package diskcache

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/pdiddy/markxiv/pkg/types"
)

// codec compresses blob payloads. The blob file extension names the codec,
// so a store reopened with a different compression setting still reads
// the blobs it wrote earlier.
type codec interface {
	ext() string
	encode(data []byte) ([]byte, error)
	decode(data []byte) ([]byte, error)
}

// zstdEncoder and zstdDecoder are reused across calls. zstd.Encoder and
// zstd.Decoder are safe for concurrent use with EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("diskcache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("diskcache: zstd decoder initialization failed: " + err.Error())
	}
}

type zstdCodec struct{}

func (zstdCodec) ext() string { return "zst" }

func (zstdCodec) encode(data []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(data, nil), nil
}

func (zstdCodec) decode(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// lz4Codec uses the LZ4 frame format, which records its own content size
// and checksum.
type lz4Codec struct{}

func (lz4Codec) ext() string { return "lz4" }

func (lz4Codec) encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Codec) decode(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out, nil
}

var codecs = map[string]codec{
	"zst": zstdCodec{},
	"lz4": lz4Codec{},
}

func codecFor(c types.Compression) (codec, error) {
	switch c {
	case "", types.CompressionZstd:
		return zstdCodec{}, nil
	case types.CompressionLZ4:
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("unknown compression %q (want zstd or lz4)", c)
	}
}

// codecForPath picks the codec from a blob file name.
func codecForPath(p string) (codec, bool) {
	i := strings.LastIndexByte(p, '.')
	if i < 0 {
		return nil, false
	}
	c, ok := codecs[p[i+1:]]
	return c, ok
}
