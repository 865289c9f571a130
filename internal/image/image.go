// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package image implements the layered block-addressable reader stack:
// a cooked ISO view or a validated RAW CD view at the base, optionally
// wrapped in an offset shim, a bad-block map, and a ddrescue recovery
// map. Every layer exposes the same block-oriented contract so a
// filesystem decoder never has to know which combination backs it.
package image

import (
	"io"

	"github.com/discutil/discimage/internal/discerr"
	"github.com/discutil/discimage/internal/rawsector"
)

// NoAddress tells a read to continue from the image's current cursor
// rather than seeking to an explicit block address, mirroring the
// source's address=None default.
const NoAddress int64 = -1

// Image is the common contract of every layer in the stack: a
// block-addressable, cursor-advancing source of sector payloads.
type Image interface {
	// ReadBlocks returns count validated data blocks starting at
	// address (or the current cursor if address == NoAddress).
	ReadBlocks(address int64, count int) ([]byte, error)

	// ReadBlocksData is like ReadBlocks but, for RAW images, permits
	// variable-size Mode 2 Form 2 payloads rather than rejecting them.
	ReadBlocksData(address int64, count int) ([]byte, error)

	// ReadBlocksRaw returns the untouched on-disc sectors; only RAW
	// images support it.
	ReadBlocksRaw(address int64, count int) ([]byte, error)

	// CurrentBlock is the address the next implicit (address ==
	// NoAddress) read will start from.
	CurrentBlock() int64

	// BlockSize is the size of one data block as returned by
	// ReadBlocks (always 2048 for the data view).
	BlockSize() int64

	Close() error
}

// ReadSeekCloser is the minimal file-like handle every base layer needs.
type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// ISOImage treats f as a flat array of 2048-byte logical blocks.
type ISOImage struct {
	f         ReadSeekCloser
	blockSize int64
	sectors   int64
}

// NewISOImage opens a cooked-ISO image over f. blockSize defaults to
// 2048 when zero.
func NewISOImage(f ReadSeekCloser, blockSize int64) (*ISOImage, error) {
	if blockSize == 0 {
		blockSize = 2048
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	return &ISOImage{f: f, blockSize: blockSize, sectors: end / blockSize}, nil
}

func (im *ISOImage) Size() int64 { return im.sectors }

func (im *ISOImage) ReadBlocks(address int64, count int) ([]byte, error) {
	if address != NoAddress {
		if _, err := im.f.Seek(address*im.blockSize, io.SeekStart); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, int64(count)*im.blockSize)
	n, err := io.ReadFull(im.f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}

func (im *ISOImage) ReadBlocksData(address int64, count int) ([]byte, error) {
	return im.ReadBlocks(address, count)
}

func (im *ISOImage) ReadBlocksRaw(address int64, count int) ([]byte, error) {
	return nil, discerr.ErrNotSupported
}

func (im *ISOImage) CurrentBlock() int64 {
	pos, _ := im.f.Seek(0, io.SeekCurrent)
	return pos / im.blockSize
}

func (im *ISOImage) BlockSize() int64 { return im.blockSize }

func (im *ISOImage) Close() error { return im.f.Close() }

// RawCDImage treats f as a flat array of 2352-byte raw sectors,
// verifying the EDC/ECC of each one as it is decoded.
//
// See:
// https://github.com/libyal/libodraw/blob/main/documentation/Optical%20disc%20RAW%20format.asciidoc
type RawCDImage struct {
	f             ReadSeekCloser
	currentSector int64
	sectors       int64
}

// NewRawCDImage opens a RAW CD image over f.
func NewRawCDImage(f ReadSeekCloser) (*RawCDImage, error) {
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	return &RawCDImage{f: f, sectors: end / rawsector.RawSectorSize}, nil
}

func (im *RawCDImage) Size() int64 { return im.sectors }

func (im *RawCDImage) readRawSector(address int64) ([]byte, error) {
	if address != NoAddress {
		im.currentSector = address
		if _, err := im.f.Seek(address*rawsector.RawSectorSize, io.SeekStart); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, rawsector.RawSectorSize)
	n, err := io.ReadFull(im.f, buf)
	if n != rawsector.RawSectorSize {
		if err == nil {
			err = discerr.ErrIoShort
		}
		return nil, discerr.ErrIoShort
	}
	im.currentSector++
	return buf, nil
}

func (im *RawCDImage) readSector(strictSize bool, address int64) ([]byte, error) {
	sectorIndex := im.currentSector
	if address != NoAddress {
		sectorIndex = address
	}
	raw, err := im.readRawSector(address)
	if err != nil {
		return nil, err
	}
	data, _, err := rawsector.Decode(raw, sectorIndex, strictSize)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (im *RawCDImage) readBlocks(readOne func(address int64) ([]byte, error), address int64, count int) ([]byte, error) {
	data, err := readOne(address)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), data...)
	for i := 0; i < count-1; i++ {
		data, err := readOne(NoAddress)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

func (im *RawCDImage) ReadBlocks(address int64, count int) ([]byte, error) {
	return im.readBlocks(func(a int64) ([]byte, error) { return im.readSector(true, a) }, address, count)
}

func (im *RawCDImage) ReadBlocksData(address int64, count int) ([]byte, error) {
	return im.readBlocks(func(a int64) ([]byte, error) { return im.readSector(false, a) }, address, count)
}

func (im *RawCDImage) ReadBlocksRaw(address int64, count int) ([]byte, error) {
	return im.readBlocks(im.readRawSector, address, count)
}

func (im *RawCDImage) CurrentBlock() int64 { return im.currentSector }

func (im *RawCDImage) BlockSize() int64 { return rawsector.DataSectorSize }

func (im *RawCDImage) Close() error { return im.f.Close() }

// OffsetedImage subtracts a constant from every explicit address before
// delegating, so the inner image's logical blocks start at virtual
// address offset.
//
// CurrentBlock preserves the source's documented behavior rather than
// its literal (buggy) implementation: the source reads
// "self._image.current_block + offset", referring to an undefined name
// "offset" instead of "self._offset" — here current_block is always
// inner.CurrentBlock() + the shim's own offset.
type OffsetedImage struct {
	inner  Image
	offset int64
}

func NewOffsetedImage(inner Image, offset int64) *OffsetedImage {
	return &OffsetedImage{inner: inner, offset: offset}
}

func (im *OffsetedImage) ReadBlocks(address int64, count int) ([]byte, error) {
	if address != NoAddress {
		address -= im.offset
	}
	return im.inner.ReadBlocks(address, count)
}

func (im *OffsetedImage) ReadBlocksData(address int64, count int) ([]byte, error) {
	if address != NoAddress {
		address -= im.offset
	}
	return im.inner.ReadBlocksData(address, count)
}

func (im *OffsetedImage) ReadBlocksRaw(address int64, count int) ([]byte, error) {
	if address != NoAddress {
		address -= im.offset
	}
	return im.inner.ReadBlocksRaw(address, count)
}

func (im *OffsetedImage) CurrentBlock() int64 { return im.inner.CurrentBlock() + im.offset }

func (im *OffsetedImage) BlockSize() int64 { return im.inner.BlockSize() }

func (im *OffsetedImage) Close() error { return im.inner.Close() }

// BadMapImage rejects any read intersecting a known-bad block address,
// loaded from a text map of one decimal address per non-empty line.
type BadMapImage struct {
	inner     Image
	badBlocks map[int64]struct{}
}

// NewBadMapImage wraps inner with the bad-block set decoded from lines,
// subtracting baseOffset from every parsed address.
func NewBadMapImage(inner Image, lines []string, baseOffset int64) *BadMapImage {
	bad := make(map[int64]struct{})
	for _, line := range lines {
		line = trimSpace(line)
		if line == "" {
			continue
		}
		n := parseDecimal(line)
		bad[n-baseOffset] = struct{}{}
	}
	return &BadMapImage{inner: inner, badBlocks: bad}
}

func (im *BadMapImage) checkBlocks(address int64, count int) error {
	start := address
	if start == NoAddress {
		start = im.inner.CurrentBlock()
	}
	for off := start; off < start+int64(count); off++ {
		if _, bad := im.badBlocks[off]; bad {
			return &discerr.BadBlock{Addr: off}
		}
	}
	return nil
}

func (im *BadMapImage) ReadBlocks(address int64, count int) ([]byte, error) {
	if err := im.checkBlocks(address, count); err != nil {
		return nil, err
	}
	return im.inner.ReadBlocks(address, count)
}

func (im *BadMapImage) ReadBlocksData(address int64, count int) ([]byte, error) {
	if err := im.checkBlocks(address, count); err != nil {
		return nil, err
	}
	return im.inner.ReadBlocksData(address, count)
}

func (im *BadMapImage) ReadBlocksRaw(address int64, count int) ([]byte, error) {
	if err := im.checkBlocks(address, count); err != nil {
		return nil, err
	}
	return im.inner.ReadBlocksRaw(address, count)
}

func (im *BadMapImage) CurrentBlock() int64 { return im.inner.CurrentBlock() }

func (im *BadMapImage) BlockSize() int64 { return im.inner.BlockSize() }

func (im *BadMapImage) Close() error { return im.inner.Close() }

// byteRange is a half-open [start, end) byte range marked unreadable by
// a ddrescue map.
type byteRange struct {
	start, end int64
}

// DDRescueImage overlays a GNU ddrescue recovery map: byte ranges not
// marked finished ('+') fail any read that overlaps them.
type DDRescueImage struct {
	inner    Image
	badAreas []byteRange
}

const (
	statusCopyingNonTried    = '?'
	statusTrimmingNonTried   = '*'
	statusScrapingNonScraped = '/'
	statusRetryingBad        = '-'
	statusFillingSpecified   = 'F'
	statusGeneratingMap      = 'G'
	statusFinished           = '+'
)

var validMapStatuses = map[byte]bool{
	statusCopyingNonTried:    true,
	statusTrimmingNonTried:   true,
	statusScrapingNonScraped: true,
	statusRetryingBad:        true,
	statusFillingSpecified:   true,
	statusGeneratingMap:      true,
	statusFinished:           true,
}

var validBlockStatuses = map[byte]bool{
	statusCopyingNonTried:    true,
	statusTrimmingNonTried:   true,
	statusScrapingNonScraped: true,
	statusRetryingBad:        true,
	statusFinished:           true,
}

// NewDDRescueImage parses a ddrescue map (one logical line per slice
// element; comment lines starting with '#' are skipped by the caller
// or ignored here) and wraps inner.
func NewDDRescueImage(inner Image, lines []string) (*DDRescueImage, error) {
	idx := 0
	var headerFields []string
	for idx < len(lines) {
		line := trimSpace(lines[idx])
		idx++
		if line == "" || line[0] == '#' {
			continue
		}
		headerFields = splitFields(line)
		break
	}
	if len(headerFields) != 3 {
		return nil, discerr.ErrStructureInvalid
	}
	status := headerFields[1]
	if len(status) != 1 || !validMapStatuses[status[0]] {
		return nil, discerr.ErrUnknownVariant
	}

	var bad []byteRange
	for idx < len(lines) {
		line := trimSpace(lines[idx])
		idx++
		if line == "" || line[0] == '#' {
			continue
		}
		fields := splitFields(line)
		if len(fields) != 3 {
			return nil, discerr.ErrStructureInvalid
		}
		status := fields[2]
		if len(status) != 1 || !validBlockStatuses[status[0]] {
			return nil, discerr.ErrUnknownVariant
		}
		start := parseCNumber(fields[0])
		size := parseCNumber(fields[1])
		if status[0] != statusFinished {
			bad = append(bad, byteRange{start: start, end: start + size})
		}
	}

	return &DDRescueImage{inner: inner, badAreas: bad}, nil
}

func (im *DDRescueImage) checkBlocks(address int64, count int) error {
	blockSize := im.inner.BlockSize()
	start := address
	if start == NoAddress {
		start = im.inner.CurrentBlock()
	}
	start *= blockSize
	end := start + int64(count)*blockSize
	for _, area := range im.badAreas {
		if area.start < end && start < area.end {
			return &discerr.BadBlock{Addr: area.start}
		}
	}
	return nil
}

func (im *DDRescueImage) ReadBlocks(address int64, count int) ([]byte, error) {
	if err := im.checkBlocks(address, count); err != nil {
		return nil, err
	}
	return im.inner.ReadBlocks(address, count)
}

func (im *DDRescueImage) ReadBlocksData(address int64, count int) ([]byte, error) {
	if err := im.checkBlocks(address, count); err != nil {
		return nil, err
	}
	return im.inner.ReadBlocksData(address, count)
}

func (im *DDRescueImage) ReadBlocksRaw(address int64, count int) ([]byte, error) {
	return nil, discerr.ErrNotSupported
}

func (im *DDRescueImage) CurrentBlock() int64 { return im.inner.CurrentBlock() }

func (im *DDRescueImage) BlockSize() int64 { return im.inner.BlockSize() }

func (im *DDRescueImage) Close() error { return im.inner.Close() }
