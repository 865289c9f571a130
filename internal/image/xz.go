// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package image

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/therootcompany/xz"
)

const xzMagic = "\xfd7zXZ\x00"

// OpenISOImage opens path as a cooked-ISO image, transparently
// decompressing it first if it is XZ-compressed.
func OpenISOImage(path string, blockSize int64) (*ISOImage, error) {
	f, err := openMaybeXZ(path)
	if err != nil {
		return nil, err
	}
	return NewISOImage(f, blockSize)
}

// OpenRawCDImage opens path as a RAW CD image, transparently
// decompressing it first if it is XZ-compressed.
func OpenRawCDImage(path string) (*RawCDImage, error) {
	f, err := openMaybeXZ(path)
	if err != nil {
		return nil, err
	}
	return NewRawCDImage(f)
}

// openMaybeXZ opens path and, if its name ends in ".xz" or its header
// carries the XZ magic, decompresses it in full before returning.
func openMaybeXZ(path string) (ReadSeekCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	header := make([]byte, len(xzMagic))
	n, _ := io.ReadFull(f, header)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	if !isXZCompressed(path, header[:n]) {
		return f, nil
	}
	return decompressXZ(f)
}

// isXZCompressed reports whether path's suffix or header's magic
// indicates an XZ-compressed image.
func isXZCompressed(path string, header []byte) bool {
	if strings.HasSuffix(strings.ToLower(path), ".xz") {
		return true
	}
	return bytes.Equal(header, []byte(xzMagic))
}

// decompressXZ fully decompresses f's XZ stream into memory and
// returns a ReadSeekCloser over the result, closing f in the process.
// XZ's LZMA2 filter chain gives no random access into a compressed
// stream, so unlike every other layer in this package this one cannot
// stay lazy: an optical disc image is read as one unit of work, not a
// streaming source, so one full decompression pass up front is an
// acceptable simplification rather than a scratch-file/streaming
// decoder.
func decompressXZ(f ReadSeekCloser) (ReadSeekCloser, error) {
	defer f.Close()

	zr, err := xz.NewReader(f, xz.DefaultDictMax)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return &memReadSeekCloser{r: bytes.NewReader(data)}, nil
}

type memReadSeekCloser struct {
	r *bytes.Reader
}

func (m *memReadSeekCloser) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *memReadSeekCloser) Seek(offset int64, whence int) (int64, error) {
	return m.r.Seek(offset, whence)
}

func (m *memReadSeekCloser) Close() error { return nil }
