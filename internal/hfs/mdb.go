// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package hfs

import (
	"fmt"
	"time"

	"github.com/discutil/discimage/internal/discerr"
	"github.com/discutil/discimage/internal/diskfs"
)

// macEpoch is the classic Mac OS timestamp epoch: seconds since
// midnight, January 1 1904, always stored as local time with the
// timezone itself discarded. Reproduced here as UTC, since the
// original timezone can never be recovered.
var macEpoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

func macTime(field []byte) time.Time {
	return macEpoch.Add(time.Duration(beUint32(field)) * time.Second)
}

// hfsVolume is a plain HFS volume (the "HFSPartition" of the Apple
// Partition Map): the Master Directory Block plus the catalog and
// extents-overflow B-trees it anchors.
type hfsVolume struct {
	entry *entry

	allocationBlockSize  uint32
	allocationBlocks     uint16
	extentsStartBlock    uint16
	nextCatalogNodeID    uint32
	volumeCreation       time.Time
	volumeModification   time.Time
	rootDirectoryFiles   uint16
	rootDirectoryFolders uint16
	totalFiles           uint32
	totalDirectories     uint32

	extentsOverflow *extentGroup
	catalog         *catalogFile
}

// newHFSVolume reads the boot blocks (skipped) and the Master
// Directory Block at partition-relative block 2, then materializes
// the extents-overflow and catalog B-trees it points to.
func newHFSVolume(e *entry) (*hfsVolume, error) {
	data, err := e.readBlocks(2, 1)
	if err != nil {
		return nil, err
	}
	if string(data[0:2]) != "BD" {
		return nil, fmt.Errorf("hfs master directory block: %w", discerr.ErrSignatureInvalid)
	}

	v := &hfsVolume{entry: e}
	v.volumeCreation = macTime(data[2:6])
	v.volumeModification = macTime(data[6:10])
	v.rootDirectoryFiles = beUint16(data[12:14])
	v.allocationBlocks = beUint16(data[18:20])
	v.allocationBlockSize = beUint32(data[20:24])
	v.extentsStartBlock = beUint16(data[28:30])
	v.nextCatalogNodeID = beUint32(data[30:34])
	v.rootDirectoryFolders = beUint16(data[82:84])
	v.totalFiles = beUint32(data[84:88])
	v.totalDirectories = beUint32(data[88:92])

	if v.allocationBlockSize%apmBlockSize != 0 {
		return nil, fmt.Errorf("hfs allocation block size %d: %w", v.allocationBlockSize, discerr.ErrStructureInvalid)
	}

	overflowExtents := parseThreeExtents(data[134:146])
	v.extentsOverflow = newExtentGroup(v, overflowExtents)

	catalogExtents := parseThreeExtents(data[150:162])
	catalogFileSize := beUint32(data[146:150])
	catalogGroup := newExtentGroup(v, catalogExtents)
	if uint64(catalogFileSize) != catalogGroup.size()*uint64(v.allocationBlockSize) {
		return nil, fmt.Errorf("hfs catalog file size mismatch: %w", discerr.ErrStructureInvalid)
	}

	v.catalog = newCatalogFile(v, catalogGroup)

	return v, nil
}

// readAllocationBlocks reads count allocation blocks starting at the
// given allocation-block index, translated through the volume's
// extents start block and the underlying partition's 512-byte
// addressing.
func (v *hfsVolume) readAllocationBlocks(index, count uint32) ([]byte, error) {
	blocksPer := v.allocationBlockSize / apmBlockSize
	address := int64(v.extentsStartBlock) + int64(index)*int64(blocksPer)
	return v.entry.readBlocks(address, int(count)*int(blocksPer))
}

func (v *hfsVolume) Type() string { return "applehfs" }

func (v *hfsVolume) Label() string {
	root := v.catalog.rootDirectory()
	if root == nil {
		return ""
	}
	return root.name
}

func (v *hfsVolume) RootDirectory() diskfs.Directory {
	root := v.catalog.rootDirectory()
	if root == nil {
		return nil
	}
	return &hfsDirectory{record: root, catalog: v.catalog}
}

func (v *hfsVolume) Dump(indent int) string {
	out := diskfs.Indent(indent) + fmt.Sprintf("HFSVolume (%s):\n", v.entry.name)
	out += diskfs.Indent(indent+1) + fmt.Sprintf("- Volume Creation: %s\n", v.volumeCreation.Format(time.RFC3339))
	out += diskfs.Indent(indent+1) + fmt.Sprintf("- Volume Modification: %s\n", v.volumeModification.Format(time.RFC3339))
	out += diskfs.Indent(indent+1) + fmt.Sprintf("- Allocation Blocks: %d\n", v.allocationBlocks)
	out += diskfs.Indent(indent+1) + fmt.Sprintf("- Allocation Block Size: %d\n", v.allocationBlockSize)
	out += diskfs.Indent(indent+1) + fmt.Sprintf("- Files: %d\n", v.totalFiles)
	out += diskfs.Indent(indent+1) + fmt.Sprintf("- Directories: %d\n", v.totalDirectories)
	if root := v.catalog.rootDirectory(); root != nil {
		out += (&hfsDirectory{record: root, catalog: v.catalog}).Dump(indent + 1)
	}
	return out
}
