// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package hfs

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/discutil/discimage/internal/discerr"
)

// memImage is a minimal image.Image double over a flat buffer of
// 512-byte Apple blocks, enough to drive New and a catalog walk.
type memImage struct {
	data []byte
}

func (m *memImage) ReadBlocks(address int64, count int) ([]byte, error) {
	start := address * apmBlockSize
	end := start + int64(count)*apmBlockSize
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
func (m *memImage) BlockSize() int64    { return apmBlockSize }
func (m *memImage) Close() error        { return nil }

func putPaddedString(dst []byte, s string) {
	copy(dst, s)
	for i := len(s); i < len(dst); i++ {
		dst[i] = 0
	}
}

// putCatalogRecord writes one catalog leaf record (key + data) into
// buf at offset, returning the offset just past it. keyLen follows the
// real on-disk convention: 1 (reserved) + 4 (parentID) + 1 (nameLen) +
// len(name).
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

func putNodeHeader(node []byte, numRecords uint16) {
	binary.BigEndian.PutUint16(node[10:12], numRecords)
}

// putNodeOffsets writes the trailing record-offset table: boundaries
// holds len(records)+1 values, boundaries[0] the first record's start
// and the last entry the free-space offset, stored in reverse order
// from the end of the node (the real on-disk layout).
func putNodeOffsets(node []byte, boundaries []int) {
	for j, b := range boundaries {
		pos := btreeNodeSize - 2*(j+1)
		binary.BigEndian.PutUint16(node[pos:pos+2], uint16(b))
	}
}

// buildImage assembles a full Apple Partition Map + one HFS volume
// containing a root directory "Root" (cnid 2) with one child file
// "File" (cnid 3, data "hello"), laid out as described in the hfs
// package's field-offset comments.
func buildImage(t *testing.T) []byte {
	t.Helper()

	const totalBlocks = 32
	img := make([]byte, totalBlocks*apmBlockSize)

	// Block 0: Driver Descriptor Record.
	ddr := img[0:apmBlockSize]
	copy(ddr, "ER")
	binary.BigEndian.PutUint16(ddr[2:4], apmBlockSize)
	binary.BigEndian.PutUint32(ddr[4:8], totalBlocks)

	// Block 1: partition entry, partition-relative blocks start at
	// image block 2 and run for 30 blocks.
	pm := img[apmBlockSize : 2*apmBlockSize]
	copy(pm, "PM")
	binary.BigEndian.PutUint32(pm[4:8], 1)
	binary.BigEndian.PutUint32(pm[8:12], 2)
	binary.BigEndian.PutUint32(pm[12:16], 30)
	putPaddedString(pm[16:48], "TestDisk")
	putPaddedString(pm[48:80], "Apple_HFS")

	// Image block 4 = partition-relative block 2: Master Directory Block.
	mdb := img[4*apmBlockSize : 5*apmBlockSize]
	copy(mdb, "BD")
	binary.BigEndian.PutUint32(mdb[20:24], apmBlockSize) // allocation block size == 512
	binary.BigEndian.PutUint16(mdb[28:30], 6)            // extents start block (partition-relative)
	binary.BigEndian.PutUint32(mdb[146:150], 1024)       // catalog file size: 2 allocation blocks
	binary.BigEndian.PutUint16(mdb[150:152], 0)          // catalog extent 0: start
	binary.BigEndian.PutUint16(mdb[152:154], 2)          // catalog extent 0: count

	// Allocation block 0 (image block 8): catalog B-tree header node.
	header := img[8*apmBlockSize : 9*apmBlockSize]
	putNodeHeader(header, 1)
	binary.BigEndian.PutUint32(header[14+10:14+14], 1) // firstLeafNode
	binary.BigEndian.PutUint32(header[14+14:14+18], 1) // lastLeafNode
	putNodeOffsets(header, []int{14, 14 + 106})

	// Allocation block 1 (image block 9): catalog B-tree leaf node,
	// holding the root directory record and its one file's record.
	leaf := img[9*apmBlockSize : 10*apmBlockSize]
	putNodeHeader(leaf, 2)

	dirVal := make([]byte, 0x46)
	dirVal[0] = 1
	binary.BigEndian.PutUint32(dirVal[6:10], 2) // cnid

	fileVal := make([]byte, 0x66)
	fileVal[0] = 2
	binary.BigEndian.PutUint32(fileVal[0x14:0x18], 3) // cnid
	binary.BigEndian.PutUint32(fileVal[0x1a:0x1e], 5) // data fork size: len("hello")
	binary.BigEndian.PutUint16(fileVal[0x4a:0x4c], 2) // data extent 0: start (allocation block 2)
	binary.BigEndian.PutUint16(fileVal[0x4c:0x4e], 1) // data extent 0: count

	off := 14
	off = putCatalogRecord(leaf, off, 1, "Root", dirVal)
	end := putCatalogRecord(leaf, off, 2, "File", fileVal)
	putNodeOffsets(leaf, []int{14, off, end})

	// Allocation block 2 (image block 10): the file's data fork.
	copy(img[10*apmBlockSize:], "hello")

	return img
}

func TestHFSVolumeRootAndFile(t *testing.T) {
	m, err := New(&memImage{data: buildImage(t)}, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	parts := m.Partitions()
	if len(parts) != 1 {
		t.Fatalf("Partitions() = %d, want 1", len(parts))
	}

	if got, want := parts[0].Label(), "Root"; got != want {
		t.Errorf("Label() = %q, want %q", got, want)
	}

	root := parts[0].RootDirectory()
	if root == nil {
		t.Fatalf("RootDirectory() = nil")
	}
	if len(root.Directories()) != 0 {
		t.Errorf("Directories() = %d, want 0", len(root.Directories()))
	}

	files := root.Files()
	if len(files) != 1 {
		t.Fatalf("Files() = %d, want 1", len(files))
	}
	if got, want := files[0].Name(), "File"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}

	rc, err := files[0].GetContent(0)
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("content = %q, want %q", content, "hello")
	}
}

func TestHFSVolumeDump(t *testing.T) {
	m, err := New(&memImage{data: buildImage(t)}, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := m.Dump(0)
	if out == "" {
		t.Errorf("Dump() returned empty string")
	}
}
