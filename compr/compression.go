// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package compr selects whole-message compression
// algorithms by name for framed binary XML payloads.
package compr

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"unsafe"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compressor compresses one message at a time.
type Compressor interface {
	// Name is the name of the compression algorithm.
	Name() string
	// Compress appends the compressed contents
	// of src to dst and returns the result.
	Compress(src, dst []byte) []byte
}

// Decompressor decompresses one message at a time.
type Decompressor interface {
	// Name is the name of the compression algorithm.
	// See also Compressor.Name.
	Name() string
	// Decompress appends the decompressed contents
	// of src to dst and returns the result.
	//
	// It must be safe to make multiple
	// calls to Decompress simultaneously
	// from different goroutines.
	Decompress(src, dst []byte) ([]byte, error)
}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func (z zstdCompressor) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

func (z zstdCompressor) Name() string { return "zstd" }

var (
	zstdDecoder     *zstd.Decoder
	zstdFastDecoder *zstd.Decoder
)

func init() {
	z, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = z
	z, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)),
		zstd.IgnoreChecksum(true))
	if err != nil {
		panic(err)
	}
	zstdFastDecoder = z
}

type zstdDecompressor struct {
	dec  *zstd.Decoder
	name string
}

func (z zstdDecompressor) Name() string { return z.name }

func (z zstdDecompressor) Decompress(src, dst []byte) ([]byte, error) {
	return z.dec.DecodeAll(src, dst)
}

type s2Compressor struct{}

func (s2Compressor) Compress(src, dst []byte) []byte {
	tail := dst[len(dst):cap(dst)]
	// s2 requires non-overlapping src and dst
	if overlaps(src, tail) {
		tail = nil
	}
	got := s2.Encode(tail, src)
	if len(dst) == 0 {
		return got
	}
	if len(tail) > 0 && len(got) > 0 && &tail[0] == &got[0] {
		return dst[:len(dst)+len(got)]
	}
	return append(dst, got...)
}

func (s2Compressor) Decompress(src, dst []byte) ([]byte, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return dst, err
	}
	tail := dst[len(dst):cap(dst)]
	inPlace := len(tail) >= n && !overlaps(src, tail[:n])
	if !inPlace {
		tail = make([]byte, n)
	}
	got, err := s2.Decode(tail[:n], src)
	if err != nil {
		return dst, err
	}
	if inPlace {
		return dst[:len(dst)+len(got)], nil
	}
	return append(dst, got...), nil
}

func (s2Compressor) Name() string { return "s2" }

// gzipCompressor implements both gzip (RFC 1952)
// and raw deflate (RFC 1951) framing.
type gzipCompressor struct {
	raw   bool
	level int
}

func (g gzipCompressor) Name() string {
	if g.raw {
		return "deflate"
	}
	return "gzip"
}

// newGzip returns a compressor for the given level,
// or an error if the level is not supported.
func newGzip(raw bool, level int) (gzipCompressor, error) {
	g := gzipCompressor{raw: raw, level: level}
	if _, err := g.writer(io.Discard); err != nil {
		return gzipCompressor{}, err
	}
	return g, nil
}

func (g gzipCompressor) writer(dst io.Writer) (io.WriteCloser, error) {
	if g.raw {
		w, err := flate.NewWriter(dst, g.level)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		return w, nil
	}
	w, err := gzip.NewWriterLevel(dst, g.level)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return w, nil
}

func (g gzipCompressor) Compress(src, dst []byte) []byte {
	buf := bytes.NewBuffer(dst)
	w, err := g.writer(buf)
	if err != nil {
		// the level was checked by newGzip
		panic(err)
	}
	// writes into a bytes.Buffer cannot fail
	w.Write(src)
	w.Close()
	return buf.Bytes()
}

func (g gzipCompressor) Decompress(src, dst []byte) ([]byte, error) {
	r, err := g.reader(bytes.NewReader(src))
	if err != nil {
		return dst, err
	}
	defer r.Close()
	buf := bytes.NewBuffer(dst)
	if _, err := buf.ReadFrom(r); err != nil {
		return dst, fmt.Errorf("%s: %w", g.Name(), err)
	}
	return buf.Bytes(), nil
}

func (g gzipCompressor) reader(src io.Reader) (io.ReadCloser, error) {
	if g.raw {
		return flate.NewReader(src), nil
	}
	zr, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return zr, nil
}

// Compression selects a compression algorithm by name.
// The returned Compressor will return the same value
// for Compressor.Name as the specified name, except
// that "zstd-better" reports "zstd" and "gzip-fast"
// reports "gzip".
func Compression(name string) Compressor {
	switch name {
	case "zstd-better":
		z, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
			zstd.WithEncoderConcurrency(1))
		return zstdCompressor{z}
	case "zstd":
		z, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		return zstdCompressor{z}
	case "s2":
		return s2Compressor{}
	case "gzip", "gzip-fast", "deflate":
		level := gzip.DefaultCompression
		if name == "gzip-fast" {
			level = gzip.BestSpeed
		}
		g, err := newGzip(name == "deflate", level)
		if err != nil {
			return nil
		}
		return g
	default:
		return nil
	}
}

// Decompression selects a decompression algorithm by name.
// It returns nil if the name is not known.
func Decompression(name string) Decompressor {
	switch name {
	case "zstd":
		return zstdDecompressor{zstdDecoder, name}
	case "zstd-nocrc":
		return zstdDecompressor{zstdFastDecoder, name}
	case "s2":
		return s2Compressor{}
	case "gzip":
		return gzipCompressor{}
	case "deflate":
		return gzipCompressor{raw: true}
	default:
		return nil
	}
}

// NewReader returns a reader that decompresses
// the stream src using the named algorithm.
// The s2 block format is not streamable, so
// for "s2" the whole of src is read up front.
func NewReader(name string, src io.Reader) (io.ReadCloser, error) {
	switch name {
	case "zstd", "zstd-nocrc":
		z, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1),
			zstd.IgnoreChecksum(name == "zstd-nocrc"))
		if err != nil {
			return nil, err
		}
		return z.IOReadCloser(), nil
	case "gzip":
		return gzipCompressor{}.reader(src)
	case "deflate":
		return gzipCompressor{raw: true}.reader(src)
	case "s2":
		buf, err := io.ReadAll(src)
		if err != nil {
			return nil, err
		}
		out, err := s2Compressor{}.Decompress(buf, nil)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(out)), nil
	default:
		return nil, fmt.Errorf("compr: unknown algorithm %q", name)
	}
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	a0 := uintptr(unsafe.Pointer(&a[0]))
	a1 := a0 + uintptr(len(a))
	b0 := uintptr(unsafe.Pointer(&b[0]))
	b1 := b0 + uintptr(len(b))
	return a0 < b1 && b0 < a1
}
