// Package compress encodes and decodes HTTP bodies.
//
// Fetched finding payloads are decoded according to their Content-Encoding
// header, and API responses are encoded with the best algorithm the client
// accepts. ZSTD and gzip are supported.
//
//	alg := compress.Negotiate(r.Header.Get("Accept-Encoding"))
//	body, err := compress.For(alg).Compress(data)
package compress

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// AlgorithmZSTD is the Zstandard compression algorithm.
	AlgorithmZSTD Algorithm = "zstd"

	// AlgorithmGzip is the gzip compression algorithm.
	AlgorithmGzip Algorithm = "gzip"

	// AlgorithmNone indicates no compression.
	AlgorithmNone Algorithm = "none"
)

// Level represents compression level.
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 3
	LevelBest    Level = 9
)

// MaxDecodedSize bounds the size of a decompressed body.
const MaxDecodedSize = 64 << 20

// MinCompressSize is the smallest response worth compressing.
const MinCompressSize = 1024

// Compressor compresses and decompresses with one algorithm.
type Compressor struct {
	algorithm Algorithm
	level     Level

	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
}

// NewCompressor creates a compressor for algorithm at level.
func NewCompressor(algorithm Algorithm, level Level) *Compressor {
	c := &Compressor{
		algorithm: algorithm,
		level:     level,
	}

	if algorithm == AlgorithmZSTD {
		c.zstdEncoderPool = sync.Pool{
			New: func() any {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(int(level))))
				return enc
			},
		}
		c.zstdDecoderPool = sync.Pool{
			New: func() any {
				dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecodedSize))
				return dec
			},
		}
	}

	return c
}

// Algorithm returns the compression algorithm.
func (c *Compressor) Algorithm() Algorithm {
	return c.algorithm
}

// ContentEncoding returns the HTTP Content-Encoding header value, empty for
// AlgorithmNone.
func (c *Compressor) ContentEncoding() string {
	switch c.algorithm {
	case AlgorithmZSTD, AlgorithmGzip:
		return string(c.algorithm)
	default:
		return ""
	}
}

// Compress compresses data.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZSTD:
		enc := c.zstdEncoderPool.Get().(*zstd.Encoder)
		defer c.zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	case AlgorithmGzip:
		return c.compressGzip(data)
	case AlgorithmNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

// Decompress decompresses data, failing when the result would exceed
// MaxDecodedSize.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZSTD:
		dec := c.zstdDecoderPool.Get().(*zstd.Decoder)
		defer c.zstdDecoderPool.Put(dec)
		if err := dec.Reset(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("zstd reset error: %w", err)
		}
		return readLimited(dec, "zstd")
	case AlgorithmGzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader error: %w", err)
		}
		defer reader.Close()
		return readLimited(reader, "gzip")
	case AlgorithmNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

func (c *Compressor) compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	level := gzip.DefaultCompression
	if c.level <= LevelFastest {
		level = gzip.BestSpeed
	} else if c.level >= LevelBest {
		level = gzip.BestCompression
	}

	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer error: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write error: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close error: %w", err)
	}
	return buf.Bytes(), nil
}

func readLimited(r io.Reader, name string) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, MaxDecodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%s decompress error: %w", name, err)
	}
	if len(out) > MaxDecodedSize {
		return nil, fmt.Errorf("%s decompress error: body exceeds %d bytes", name, MaxDecodedSize)
	}
	return out, nil
}

var (
	defaultZSTD = NewCompressor(AlgorithmZSTD, LevelDefault)
	defaultGzip = NewCompressor(AlgorithmGzip, LevelDefault)
	passthrough = NewCompressor(AlgorithmNone, LevelDefault)
)

// For returns the shared compressor for algorithm. Unknown algorithms map to
// the pass-through compressor.
func For(algorithm Algorithm) *Compressor {
	switch algorithm {
	case AlgorithmZSTD:
		return defaultZSTD
	case AlgorithmGzip:
		return defaultGzip
	default:
		return passthrough
	}
}

// ParseEncoding maps a Content-Encoding header value onto an algorithm.
// Empty and "identity" mean no compression.
func ParseEncoding(contentEncoding string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return AlgorithmNone, nil
	case "zstd":
		return AlgorithmZSTD, nil
	case "gzip", "x-gzip":
		return AlgorithmGzip, nil
	default:
		return AlgorithmNone, fmt.Errorf("unsupported content encoding: %q", contentEncoding)
	}
}

// DecodeBody decodes body according to its Content-Encoding header.
func DecodeBody(contentEncoding string, body []byte) ([]byte, error) {
	alg, err := ParseEncoding(contentEncoding)
	if err != nil {
		return nil, err
	}
	return For(alg).Decompress(body)
}

// Negotiate picks the response algorithm for an Accept-Encoding header,
// preferring zstd over gzip when both are acceptable. Encodings with q=0 are
// refused.
func Negotiate(acceptEncoding string) Algorithm {
	var zstdOK, gzipOK bool
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if qualityZero(params) {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "zstd":
			zstdOK = true
		case "gzip", "x-gzip":
			gzipOK = true
		}
	}
	switch {
	case zstdOK:
		return AlgorithmZSTD
	case gzipOK:
		return AlgorithmGzip
	default:
		return AlgorithmNone
	}
}

func qualityZero(params string) bool {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.TrimSpace(k) != "q" {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil && q == 0
	}
	return false
}
