// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package hfs decodes an Apple Partition Map and the plain HFS
// (1985-vintage Hierarchical File System, not HFS+) volumes it
// contains.
package hfs

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/discutil/discimage/internal/discerr"
	"github.com/discutil/discimage/internal/diskfs"
	"github.com/discutil/discimage/internal/image"
)

const apmBlockSize = 512

// volume is the Apple block0 driver descriptor plus the addressing
// logic every partition entry reads through: Apple partition maps
// always address in fixed 512-byte blocks regardless of the
// underlying image's native block size.
type volume struct {
	img        image.Image
	baseOffset int64
	blockCount uint32
	deviceType uint16
	deviceID   uint16
}

// Map is a decoded Apple Partition Map: block0's driver descriptor
// plus every partition entry block1 announces.
type Map struct {
	vol        *volume
	partitions []*entry
}

// New reads the driver descriptor at block0 and the partition map
// entries starting at block1, per
// https://en.wikipedia.org/wiki/Apple_Partition_Map.
func New(img image.Image, baseOffset int64) (*Map, error) {
	vol := &volume{img: img, baseOffset: baseOffset}

	block0, err := vol.readBlocks(0, 1)
	if err != nil {
		return nil, err
	}
	if string(block0[0:2]) != "ER" {
		return nil, fmt.Errorf("apple driver descriptor: %w", discerr.ErrSignatureInvalid)
	}
	if blockSize := beUint16(block0[2:4]); blockSize != apmBlockSize {
		return nil, fmt.Errorf("apple driver descriptor: block size %d: %w", blockSize, discerr.ErrStructureInvalid)
	}
	vol.blockCount = beUint32(block0[4:8])
	vol.deviceType = beUint16(block0[8:10])
	vol.deviceID = beUint16(block0[10:12])

	first, err := parseEntry(vol, 1)
	if err != nil {
		return nil, err
	}

	m := &Map{vol: vol, partitions: []*entry{first}}
	for i := uint32(1); i < first.partitionCount; i++ {
		e, err := parseEntry(vol, int64(1+i))
		if err != nil {
			return nil, err
		}
		m.partitions = append(m.partitions, e)
	}
	return m, nil
}

// readBlocks reads count fixed 512-byte Apple blocks starting at
// address, translating through the underlying image's own (possibly
// larger) native block size.
func (v *volume) readBlocks(address int64, count int) ([]byte, error) {
	imgBlockSize := v.img.BlockSize()
	blockIndex := (address * apmBlockSize) / imgBlockSize
	blockOffset := (address * apmBlockSize) % imgBlockSize

	data, err := v.img.ReadBlocksData(v.baseOffset+blockIndex, 1)
	if err != nil {
		return nil, err
	}
	data = data[blockOffset:]
	want := int64(count) * apmBlockSize
	for int64(len(data)) < want {
		blockIndex++
		more, err := v.img.ReadBlocksData(v.baseOffset+blockIndex, 1)
		if err != nil {
			return nil, err
		}
		data = append(data, more...)
	}
	return data[:want], nil
}

// entry is one parsed partition map block (block1 onward): the
// shared fields present in every Apple_* partition entry.
type entry struct {
	vol            *volume
	partitionCount uint32
	startBlock     uint32
	blockCount     uint32
	name           string
	partitionType  string
	logicalStart   uint32
	logicalCount   uint32
	flags          uint32
}

func parseEntry(vol *volume, block int64) (*entry, error) {
	data, err := vol.readBlocks(block, 1)
	if err != nil {
		return nil, err
	}
	if string(data[0:2]) != "PM" {
		return nil, fmt.Errorf("apple partition entry at block %d: %w", block, discerr.ErrSignatureInvalid)
	}

	e := &entry{
		vol:            vol,
		partitionCount: beUint32(data[4:8]),
		startBlock:     beUint32(data[8:12]),
		blockCount:     beUint32(data[12:16]),
		name:           trimNulASCII(data[16:48]),
		partitionType:  trimNulASCII(data[48:80]),
		logicalStart:   beUint32(data[80:84]),
		logicalCount:   beUint32(data[84:88]),
		flags:          beUint32(data[88:92]),
	}
	return e, nil
}

// readBlocks reads count 512-byte blocks at a partition-relative
// address.
func (e *entry) readBlocks(address int64, count int) ([]byte, error) {
	return e.vol.readBlocks(int64(e.startBlock)+address, count)
}

func trimNulASCII(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func beUint16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Partitions returns every recognized filesystem partition found on
// the map (currently, Apple_HFS only — other Apple_* types such as
// Apple_Free, Apple_Driver, or Apple_partition_map itself carry no
// filesystem and are silently skipped, mirroring how the ISO 9660
// decoder only surfaces descriptors implementing diskfs.Partition).
// An Apple_HFS entry whose volume fails to parse is rejected and
// logged at Warn rather than dropped without trace.
func (m *Map) Partitions() []diskfs.Partition {
	var out []diskfs.Partition
	for _, e := range m.partitions {
		if e.partitionType != "Apple_HFS" {
			continue
		}
		p, err := newHFSVolume(e)
		if err != nil {
			slog.Default().Warn("malformed Apple_HFS partition entry rejected",
				"name", e.name, "startBlock", e.startBlock, "err", err)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Dump renders the partition map and every partition it found.
func (m *Map) Dump(indent int) string {
	out := diskfs.Indent(indent) + "ApplePartitionMap:\n"
	out += diskfs.Indent(indent+1) + fmt.Sprintf("- Block Count: %d\n", m.vol.blockCount)
	out += diskfs.Indent(indent+1) + fmt.Sprintf("- Device Type: %d\n", m.vol.deviceType)
	out += diskfs.Indent(indent+1) + fmt.Sprintf("- Device Id: %d\n", m.vol.deviceID)
	out += diskfs.Indent(indent+1) + "- Partitions:\n"
	for _, e := range m.partitions {
		out += diskfs.Indent(indent+2) + fmt.Sprintf("%s (%s): start=%d count=%d\n",
			e.name, e.partitionType, e.startBlock, e.blockCount)
	}
	return out
}
