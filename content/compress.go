package content

import (
	"bytes"
	"compress/gzip"
	"compress/lzw"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Compression identifies how a file body was compressed before encryption.
type Compression uint8

// Compression schemes. The numeric values are stored in file metadata.
const (
	CompressNone Compression = 0
	CompressLZW  Compression = 1
	CompressGZIP Compression = 2
	CompressXZ   Compression = 3
)

// MaxDecompressedSize bounds the output of Decompress (1 GiB).
const MaxDecompressedSize = 1 << 30

func (c Compression) String() string {
	switch c {
	case CompressNone:
		return "none"
	case CompressLZW:
		return "lzw"
	case CompressGZIP:
		return "gzip"
	case CompressXZ:
		return "xz"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Compress compresses data using the specified scheme.
func Compress(data []byte, scheme Compression) ([]byte, error) {
	switch scheme {
	case CompressNone:
		return data, nil
	case CompressLZW:
		return compressWith(data, func(w io.Writer) (io.WriteCloser, error) {
			return lzw.NewWriter(w, lzw.LSB, 8), nil
		})
	case CompressGZIP:
		return compressWith(data, func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		})
	case CompressXZ:
		return compressWith(data, func(w io.Writer) (io.WriteCloser, error) {
			return xz.NewWriter(w)
		})
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, scheme)
	}
}

// Decompress decompresses data using the specified scheme. Output larger
// than MaxDecompressedSize is rejected.
func Decompress(data []byte, scheme Compression) ([]byte, error) {
	return DecompressLimit(data, scheme, MaxDecompressedSize)
}

// DecompressLimit is Decompress with an explicit output limit.
func DecompressLimit(data []byte, scheme Compression, limit int64) ([]byte, error) {
	var r io.Reader
	src := bytes.NewReader(data)

	switch scheme {
	case CompressNone:
		if int64(len(data)) > limit {
			return nil, ErrDecompressedTooLarge
		}
		return data, nil
	case CompressLZW:
		lr := lzw.NewReader(src, lzw.LSB, 8)
		defer func() { _ = lr.Close() }()
		r = lr
	case CompressGZIP:
		gr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		defer func() { _ = gr.Close() }()
		r = gr
	case CompressXZ:
		xr, err := xz.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		r = xr
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, scheme)
	}

	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if int64(len(out)) > limit {
		return nil, ErrDecompressedTooLarge
	}
	return out, nil
}

func compressWith(data []byte, newWriter func(io.Writer) (io.WriteCloser, error)) ([]byte, error) {
	var buf bytes.Buffer
	w, err := newWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
