// Package compression opens compressed source files. The algorithm is
// chosen from the file name suffix, so "people.csv.zst" reads as a zstd
// stream of "people.csv".
//
// # Basic Usage
//
//	alg, inner := compression.Detect("people.csv.gz") // Gzip, "people.csv"
//	r, err := compression.NewReader(f, alg)
//	defer r.Close()
package compression

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

var suffixes = []struct {
	suffix    string
	algorithm Algorithm
}{
	{".gz", Gzip},
	{".gzip", Gzip},
	{".zst", Zstd},
	{".zstd", Zstd},
	{".lz4", LZ4},
	{".s2", S2},
	{".sz", Snappy},
	{".snappy", Snappy},
}

// Detect returns the algorithm implied by name's suffix and the name with
// that suffix removed. Unknown suffixes give None and name unchanged.
func Detect(name string) (Algorithm, string) {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.algorithm, name[:len(name)-len(s.suffix)]
		}
	}
	return None, name
}

// NewReader wraps r with a decompressor for algorithm. Closing the result
// does not close r.
func NewReader(r io.Reader, algorithm Algorithm) (io.ReadCloser, error) {
	switch algorithm {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return gz, nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return dec.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	}
	return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
}

// NewWriter wraps w with a compressor for algorithm. The caller must Close
// the result to flush it; w itself is not closed.
func NewWriter(w io.Writer, algorithm Algorithm) (io.WriteCloser, error) {
	switch algorithm {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return enc, nil
	case LZ4:
		return lz4.NewWriter(w), nil
	case S2:
		return s2.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	}
	return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
