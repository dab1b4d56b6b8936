package compression

import (
	"compress/gzip"
	"fmt"
	"io"
)

// Magic is the two-byte gzip header.
var Magic = []byte{0x1f, 0x8b}

func Gzip(dst io.Writer, src io.Reader) (int64, error) {
	gz := gzip.NewWriter(dst)

	n, err := io.Copy(gz, src)
	if err != nil {
		_ = gz.Close()
		return n, err
	}

	// gzip writes data on Close.
	if err := gz.Close(); err != nil {
		return n, err
	}

	return n, nil
}

// Gunzip reverses Gzip.
func Gunzip(dst io.Writer, src io.Reader) (int64, error) {
	gr, err := gzip.NewReader(src)
	if err != nil {
		return 0, fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	n, err := io.Copy(dst, gr)
	if err != nil {
		return n, fmt.Errorf("gunzip copy: %w", err)
	}
	return n, nil
}
