// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package disc

import (
	"context"
	"encoding/binary"
	"log/slog"
	"testing"

	"github.com/discutil/discimage/internal/discerr"
)

type memImage struct {
	data      []byte
	blockSize int64
}

func (m *memImage) ReadBlocks(address int64, count int) ([]byte, error) {
	start := address * m.blockSize
	end := start + int64(count)*m.blockSize
	if end > int64(len(m.data)) {
		return nil, discerr.ErrIoShort
	}
	return m.data[start:end], nil
}

func (m *memImage) ReadBlocksData(address int64, count int) ([]byte, error) {
	return m.ReadBlocks(address, count)
}

func (m *memImage) ReadBlocksRaw(address int64, count int) ([]byte, error) {
	return nil, discerr.ErrNotSupported
}

func (m *memImage) CurrentBlock() int64 { return 0 }
func (m *memImage) BlockSize() int64    { return m.blockSize }
func (m *memImage) Close() error        { return nil }

func TestProbeNoRecognizedFilesystem(t *testing.T) {
	img := &memImage{data: make([]byte, 64*2048), blockSize: 2048}

	var warnings int
	logger := slog.New(&countingHandler{count: &warnings})

	d := Probe(img, 0, logger)
	if len(d.Partitions) != 0 {
		t.Errorf("Partitions = %d, want 0 for an image with no recognizable filesystem", len(d.Partitions))
	}
	if warnings != 2 {
		t.Errorf("warnings logged = %d, want 2 (one per probe)", warnings)
	}
}

func TestProbeFindsHFSPartition(t *testing.T) {
	img := &memImage{data: buildHFSImage(t), blockSize: 512}

	d := Probe(img, 0, nil)
	if len(d.Partitions) != 1 {
		t.Fatalf("Partitions = %d, want 1", len(d.Partitions))
	}
	if got, want := d.Partitions[0].Type(), "applehfs"; got != want {
		t.Errorf("Type() = %q, want %q", got, want)
	}
}

// countingHandler is a slog.Handler that just counts Handle calls.
type countingHandler struct{ count *int }

func (h *countingHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (h *countingHandler) Handle(_ context.Context, _ slog.Record) error {
	*h.count++
	return nil
}
func (h *countingHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(_ string) slog.Handler      { return h }

const apmBlockSize = 512
const btreeNodeSize = 512

func putPaddedString(dst []byte, s string) {
	copy(dst, s)
	for i := len(s); i < len(dst); i++ {
		dst[i] = 0
	}
}

func putNodeOffsets(node []byte, boundaries []int) {
	for j, b := range boundaries {
		pos := btreeNodeSize - 2*(j+1)
		binary.BigEndian.PutUint16(node[pos:pos+2], uint16(b))
	}
}

func putCatalogRecord(buf []byte, offset int, parentID uint32, name string, val []byte) int {
	keyLen := 6 + len(name)
	buf[offset] = byte(keyLen)
	binary.BigEndian.PutUint32(buf[offset+2:offset+6], parentID)
	buf[offset+6] = byte(len(name))
	copy(buf[offset+7:], name)
	cut := (keyLen + 2) &^ 1
	copy(buf[offset+cut:], val)
	return offset + cut + len(val)
}

// buildHFSImage assembles the same Apple Partition Map + one-volume
// HFS layout as internal/hfs's own test fixture, just enough to let
// the disc orchestrator's HFS probe succeed: a root directory "Root"
// with no children.
func buildHFSImage(t *testing.T) []byte {
	t.Helper()

	const totalBlocks = 16
	img := make([]byte, totalBlocks*apmBlockSize)

	ddr := img[0:apmBlockSize]
	copy(ddr, "ER")
	binary.BigEndian.PutUint16(ddr[2:4], apmBlockSize)
	binary.BigEndian.PutUint32(ddr[4:8], totalBlocks)

	pm := img[apmBlockSize : 2*apmBlockSize]
	copy(pm, "PM")
	binary.BigEndian.PutUint32(pm[4:8], 1)
	binary.BigEndian.PutUint32(pm[8:12], 2)
	binary.BigEndian.PutUint32(pm[12:16], 14)
	putPaddedString(pm[16:48], "TestDisk")
	putPaddedString(pm[48:80], "Apple_HFS")

	mdb := img[4*apmBlockSize : 5*apmBlockSize]
	copy(mdb, "BD")
	binary.BigEndian.PutUint32(mdb[20:24], apmBlockSize)
	binary.BigEndian.PutUint16(mdb[28:30], 6)
	binary.BigEndian.PutUint32(mdb[146:150], 1024)
	binary.BigEndian.PutUint16(mdb[150:152], 0)
	binary.BigEndian.PutUint16(mdb[152:154], 2)

	header := img[8*apmBlockSize : 9*apmBlockSize]
	binary.BigEndian.PutUint16(header[10:12], 1)
	binary.BigEndian.PutUint32(header[14+10:14+14], 1)
	binary.BigEndian.PutUint32(header[14+14:14+18], 1)
	putNodeOffsets(header, []int{14, 14 + 106})

	leaf := img[9*apmBlockSize : 10*apmBlockSize]
	binary.BigEndian.PutUint16(leaf[10:12], 1)
	dirVal := make([]byte, 0x46)
	dirVal[0] = 1
	binary.BigEndian.PutUint32(dirVal[6:10], 2)
	end := putCatalogRecord(leaf, 14, 1, "Root", dirVal)
	putNodeOffsets(leaf, []int{14, end})

	return img
}
