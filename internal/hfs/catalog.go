// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package hfs

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/discutil/discimage/internal/diskfs"
)

// catalogRecord is one parsed entry from the catalog B-tree: a
// directory or a file. Thread records exist on disk purely to let a
// point lookup walk from CNID back to parent+name; since this
// decoder builds its parent/child maps from a full scan instead (see
// readBTreeLeafRecords), thread records are parsed only far enough to
// be skipped.
type catalogRecord struct {
	isDirectory bool
	parentID    uint32
	name        string
	cnid        uint32
	modified    time.Time

	dataExtents     *extentGroup
	dataSize        uint32
	resourceExtents *extentGroup
	resourceSize    uint32
}

// catalogFile wraps the parsed catalog B-tree into the two maps an
// HFS directory tree needs: CNID to entry, and parent CNID to
// children. Catalog records can appear in any order relative to
// their parent, so both maps are built in one pass before anything
// is linked together — the same "children can come before parents"
// approach a flat-scan HFS reader needs.
type catalogFile struct {
	byCNID   map[uint32]*catalogRecord
	children map[uint32][]*catalogRecord
}

func newCatalogFile(vol *hfsVolume, group *extentGroup) *catalogFile {
	cf := &catalogFile{
		byCNID:   make(map[uint32]*catalogRecord),
		children: make(map[uint32][]*catalogRecord),
	}

	overflowBytes, err := vol.extentsOverflow.readAllBlocks()
	if err != nil {
		return cf
	}
	overflow := parseExtentsOverflow(overflowBytes)

	catalogBytes, err := group.readAllBlocks()
	if err != nil {
		return cf
	}
	leafRecords, err := readBTreeLeafRecords(catalogBytes)
	if err != nil {
		return cf
	}

	for _, rec := range leafRecords {
		parsed, ok := parseCatalogRecord(vol, rec, overflow)
		if !ok {
			continue
		}
		cf.byCNID[parsed.cnid] = parsed
		cf.children[parsed.parentID] = append(cf.children[parsed.parentID], parsed)
	}

	return cf
}

// rootDirectory returns the catalog record for CNID 1's sole
// directory child: the volume root, named after the volume itself.
func (cf *catalogFile) rootDirectory() *catalogRecord {
	for _, c := range cf.children[1] {
		if c.isDirectory {
			return c
		}
	}
	return nil
}

func (cf *catalogFile) directories(parent uint32) []*catalogRecord {
	var out []*catalogRecord
	for _, c := range cf.children[parent] {
		if c.isDirectory {
			out = append(out, c)
		}
	}
	return out
}

func (cf *catalogFile) files(parent uint32) []*catalogRecord {
	var out []*catalogRecord
	for _, c := range cf.children[parent] {
		if !c.isDirectory {
			out = append(out, c)
		}
	}
	return out
}

// parseExtentsOverflow flattens the extents-overflow B-tree into a
// lookup from (fileID, fork, blocks already consumed) to the next
// batch of extents. The key structure mirrors xkrKeyLen (always 7 for
// the CNID+fork+startBlock key on a plain HFS volume).
func parseExtentsOverflow(tree []byte) map[extentOverflowKey][]threeExtent {
	out := make(map[extentOverflowKey][]threeExtent)
	leafRecords, err := readBTreeLeafRecords(tree)
	if err != nil {
		return out
	}
	for _, rec := range leafRecords {
		if len(rec) < 20 || rec[0] != 7 {
			continue
		}
		key := extentOverflowKey{
			isResource:     rec[1] == 0xff,
			cnid:           beUint32(rec[2:6]),
			blocksConsumed: beUint16(rec[6:8]),
		}
		out[key] = parseThreeExtents(rec[8:20])
	}
	return out
}

// parseCatalogRecord decodes one catalog B-tree leaf record into a
// directory or file entry. Thread records (types 3 and 4) carry no
// fork or child information useful to this decoder's flat-scan
// traversal, so they're rejected along with malformed records.
//
// Field offsets below are the fixed, documented layout of the
// classic Mac OS catalog directory/file record (Inside Macintosh:
// Files), counted from the start of the data record that follows the
// key (after alignment padding to an even offset).
func parseCatalogRecord(vol *hfsVolume, rec []byte, overflow map[extentOverflowKey][]threeExtent) (*catalogRecord, bool) {
	if len(rec) < 8 {
		return nil, false
	}
	keyLen := int(rec[0])
	cut := (keyLen + 2) &^ 1
	if cut+8 > len(rec) {
		return nil, false
	}
	parentID := beUint32(rec[2:6])
	nameLen := int(rec[6])
	if 7+nameLen > cut {
		return nil, false
	}
	name := decodeMacRoman(rec[7 : 7+nameLen])
	name = strings.ReplaceAll(name, "/", ":")

	val := rec[cut:]
	if len(val) < 2 {
		return nil, false
	}

	switch val[0] {
	case 1: // directory
		if len(val) < 0x46 {
			return nil, false
		}
		return &catalogRecord{
			isDirectory: true,
			parentID:    parentID,
			name:        name,
			cnid:        beUint32(val[6:10]),
			modified:    macTime(val[0x0e:0x12]),
		}, true

	case 2: // file
		if len(val) < 0x66 {
			return nil, false
		}
		cnid := beUint32(val[0x14:0x18])
		dataSize := beUint32(val[0x1a:0x1e])
		resourceSize := beUint32(val[0x24:0x28])

		dataExtents := newExtentGroup(vol, parseThreeExtents(val[0x4a:0x56])).chaseOverflow(overflow, cnid, false)
		resourceExtents := newExtentGroup(vol, parseThreeExtents(val[0x56:0x62])).chaseOverflow(overflow, cnid, true)

		return &catalogRecord{
			isDirectory:     false,
			parentID:        parentID,
			name:            name,
			cnid:            cnid,
			modified:        macTime(val[0x30:0x34]),
			dataExtents:     dataExtents,
			dataSize:        dataSize,
			resourceExtents: resourceExtents,
			resourceSize:    resourceSize,
		}, true

	default: // thread records (3, 4): not needed by a flat-scan traversal
		return nil, false
	}
}

// hfsDirectory implements diskfs.Directory over one catalog record.
type hfsDirectory struct {
	record  *catalogRecord
	catalog *catalogFile
}

func (d *hfsDirectory) Name() string { return d.record.name }

func (d *hfsDirectory) Directories() []diskfs.Directory {
	var out []diskfs.Directory
	for _, c := range d.catalog.directories(d.record.cnid) {
		out = append(out, &hfsDirectory{record: c, catalog: d.catalog})
	}
	return out
}

func (d *hfsDirectory) Files() []diskfs.File {
	var out []diskfs.File
	for _, c := range d.catalog.files(d.record.cnid) {
		out = append(out, &hfsFile{record: c})
	}
	return out
}

func (d *hfsDirectory) Dump(indent int) string {
	out := diskfs.Indent(indent) + fmt.Sprintf("Directory: %s (cnid=%d)\n", d.record.name, d.record.cnid)
	for _, c := range d.Directories() {
		out += c.Dump(indent + 1)
	}
	for _, f := range d.Files() {
		out += f.Dump(indent + 1)
	}
	return out
}

// hfsFile implements diskfs.File over one catalog file record. Fork 0
// is the data fork, fork 1 is the resource fork; an empty fork is
// simply absent from Streams().
type hfsFile struct {
	record *catalogRecord
}

func (f *hfsFile) Name() string { return f.record.name }

func (f *hfsFile) Streams() []int {
	var out []int
	if f.record.dataSize > 0 {
		out = append(out, 0)
	}
	if f.record.resourceSize > 0 {
		out = append(out, 1)
	}
	return out
}

func (f *hfsFile) GetContent(stream int) (io.ReadCloser, error) {
	switch stream {
	case 0:
		if f.record.dataSize == 0 {
			return diskfs.NewByteContent(nil), nil
		}
		b, err := f.record.dataExtents.readClipped(f.record.dataSize)
		if err != nil {
			return nil, err
		}
		return diskfs.NewByteContent(b), nil
	case 1:
		if f.record.resourceSize == 0 {
			return diskfs.NewByteContent(nil), nil
		}
		b, err := f.record.resourceExtents.readClipped(f.record.resourceSize)
		if err != nil {
			return nil, err
		}
		return diskfs.NewByteContent(b), nil
	default:
		return nil, fmt.Errorf("hfs file stream %d: unknown stream", stream)
	}
}

func (f *hfsFile) Dump(indent int) string {
	return diskfs.Indent(indent) + fmt.Sprintf("File: %s (cnid=%d, data=%d, rsrc=%d)\n",
		f.record.name, f.record.cnid, f.record.dataSize, f.record.resourceSize)
}
