// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package iso9660 decodes an ISO 9660 volume descriptor set (including
// the Joliet supplementary variant), its directory records, and path
// tables.
//
// See: https://wiki.osdev.org/ISO_9660
package iso9660

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
	"unicode/utf16"

	"github.com/discutil/discimage/internal/discerr"
	"github.com/discutil/discimage/internal/diskfs"
	"github.com/discutil/discimage/internal/image"
)

const blockSize = 2048

// ISO9660 holds the full volume descriptor set read from one image.
type ISO9660 struct {
	img        image.Image
	baseOffset int64
	descs      []VolumeDescriptor
}

// New reads the system area (skipped) and then decodes volume
// descriptors from block 16 onward until a Terminator appears.
func New(img image.Image, baseOffset int64) (*ISO9660, error) {
	fs := &ISO9660{img: img, baseOffset: baseOffset}

	if _, err := fs.readBlocks(baseOffset, 16); err != nil {
		return nil, err
	}

	for index := int64(0); ; index++ {
		sector, err := fs.readBlocks(baseOffset+16+index, 1)
		if err != nil {
			return nil, err
		}
		vd, err := parseVolumeDescriptor(sector, fs)
		if err != nil {
			return nil, err
		}
		fs.descs = append(fs.descs, vd)
		if _, ok := vd.(*terminatorDescriptor); ok {
			break
		}
	}

	return fs, nil
}

func (fs *ISO9660) readBlocks(address int64, count int) ([]byte, error) {
	return fs.img.ReadBlocks(address, count)
}

// readExtent reads ceil(size/blockSize) blocks at address and trims
// the result to exactly size bytes.
func (fs *ISO9660) readExtent(address int64, size int64) ([]byte, error) {
	count := int(size / blockSize)
	if size%blockSize != 0 {
		count++
	}
	data, err := fs.readBlocks(address, count)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) < size {
		return nil, discerr.ErrIoShort
	}
	return data[:size], nil
}

// readExtentAsRaw reads size/blockSize raw 2352-byte sectors at
// address; size must be a whole number of blocks.
func (fs *ISO9660) readExtentAsRaw(address int64, size int64) ([]byte, error) {
	if size%blockSize != 0 {
		return nil, discerr.ErrStructureInvalid
	}
	return fs.img.ReadBlocksRaw(address, int(size/blockSize))
}

// Partitions returns every Primary/Supplementary descriptor, in the
// order they appeared in the descriptor set.
func (fs *ISO9660) Partitions() []diskfs.Partition {
	var out []diskfs.Partition
	for _, vd := range fs.descs {
		if p, ok := vd.(diskfs.Partition); ok {
			out = append(out, p)
		}
	}
	return out
}

func (fs *ISO9660) Dump(indent int) string {
	out := diskfs.Indent(indent) + "ISO9660:\n"
	out += diskfs.Indent(indent) + "- Volume Descriptors:\n"
	for _, vd := range fs.descs {
		out += vd.Dump(indent + 1)
	}
	return out
}

// VolumeDescriptor is any entry in the descriptor set.
type VolumeDescriptor interface {
	diskfs.Dumpable
}

// descriptorConstructors dispatches on the descriptor type tag — the
// tagged-table replacement for the source's subclass registry.
var descriptorConstructors = map[byte]func(identifier []byte, version byte, data []byte, fs *ISO9660) (VolumeDescriptor, error){
	0:   newBootRecordDescriptor,
	1:   newPrimaryVolumeDescriptor,
	2:   newSupplementaryVolumeDescriptor,
	3:   newVolumePartitionDescriptor,
	255: newTerminatorDescriptor,
}

func parseVolumeDescriptor(sector []byte, fs *ISO9660) (VolumeDescriptor, error) {
	if len(sector) < 2048 {
		return nil, discerr.ErrIoShort
	}
	typ := sector[0]
	identifier := sector[1:6]
	version := sector[6]
	data := sector[7:2048]

	ctor, ok := descriptorConstructors[typ]
	if !ok {
		return nil, discerr.ErrUnknownVariant
	}
	return ctor(identifier, version, data, fs)
}

type bootRecordDescriptor struct {
	bootSystemIdentifier, bootIdentifier []byte
	custom                                []byte
}

func newBootRecordDescriptor(identifier []byte, version byte, data []byte, fs *ISO9660) (VolumeDescriptor, error) {
	if !bytes.Equal(identifier, []byte("CD001")) {
		return nil, discerr.ErrSignatureInvalid
	}
	if version != 1 {
		return nil, discerr.ErrStructureInvalid
	}
	return &bootRecordDescriptor{
		bootSystemIdentifier: data[0:32],
		bootIdentifier:       data[32:64],
		custom:               data[64:],
	}, nil
}

func (d *bootRecordDescriptor) Dump(indent int) string {
	return diskfs.Indent(indent) + "BootRecordVolumeDescriptor:\n"
}

type volumePartitionDescriptor struct{}

func newVolumePartitionDescriptor(identifier []byte, version byte, data []byte, fs *ISO9660) (VolumeDescriptor, error) {
	return &volumePartitionDescriptor{}, nil
}

func (d *volumePartitionDescriptor) Dump(indent int) string {
	return diskfs.Indent(indent) + "VolumePartitionDescriptor\n"
}

type terminatorDescriptor struct{}

func newTerminatorDescriptor(identifier []byte, version byte, data []byte, fs *ISO9660) (VolumeDescriptor, error) {
	return &terminatorDescriptor{}, nil
}

func (d *terminatorDescriptor) Dump(indent int) string {
	return diskfs.Indent(indent) + "VolumeDescriptorSetTerminator\n"
}

// partitionVolumeDescriptor is the shared field layout of Primary and
// Supplementary descriptors.
type partitionVolumeDescriptor struct {
	fs       *ISO9660
	kind     string
	encoding string

	systemIdentifier, volumeIdentifier                          string
	volumeSpaceSize, volumeSetSize, volumeSequenceNumber         uint32
	logicalBlockSize                                             uint32
	pathTableSize                                                uint32
	typeLPathTable, typeMPathTable                               []*PathTableEntry
	rootDirectoryRecord                                          *DirectoryRecord
	volumeSetIdentifier, publisherIdentifier, dataPreparerIdentifier, applicationIdentifier string
	copyrightFileIdentifier, abstractFileIdentifier, bibliographicFileIdentifier            string
	volumeCreateDate, volumeModificationDate                                                time.Time
	volumeExpirationDate, volumeEffectiveDate                                               *time.Time
}

func parsePartitionVolumeDescriptor(encoding, kind string, data []byte, fs *ISO9660) (*partitionVolumeDescriptor, error) {
	r := bytes.NewReader(data)
	var (
		volumeFlags                                                byte
		systemIdentifier, volumeIdentifier                         [32]byte
		unused1                                                    [8]byte
		volumeSpaceSize, volumeSpaceSizeMSB                        uint32
		escapeSequences                                            [32]byte
		volumeSetSize, volumeSetSizeMSB                            uint16
		volumeSequenceNumber, volumeSequenceNumberMSB              uint16
		logicalBlockSize, logicalBlockSizeMSB                      uint16
		pathTableSize, pathTableSizeMSB                            uint32
		typeLLoc, typeLOptLoc, typeMLoc, typeMOptLoc               uint32
		rootDirectoryEntry                                         [34]byte
		volumeSetIdentifier, publisherIdentifier                   [128]byte
		dataPreparerIdentifier, applicationIdentifier               [128]byte
		copyrightFileIdentifier, abstractFileIdentifier              [37]byte
		bibliographicFileIdentifier                                 [37]byte
		volumeCreationDatetime, volumeModificationDatetime           [17]byte
		volumeExpirationDatetime, volumeEffectiveDatetime            [17]byte
		fileStructureVersion, unused4                               byte
		applicationData                                             [512]byte
		reserved                                                    [653]byte
	)
	for _, f := range []struct {
		order binary.ByteOrder
		v     any
	}{
		{nil, &volumeFlags},
		{nil, &systemIdentifier},
		{nil, &volumeIdentifier},
		{nil, &unused1},
		{binary.LittleEndian, &volumeSpaceSize},
		{binary.BigEndian, &volumeSpaceSizeMSB},
		{nil, &escapeSequences},
		{binary.LittleEndian, &volumeSetSize},
		{binary.BigEndian, &volumeSetSizeMSB},
		{binary.LittleEndian, &volumeSequenceNumber},
		{binary.BigEndian, &volumeSequenceNumberMSB},
		{binary.LittleEndian, &logicalBlockSize},
		{binary.BigEndian, &logicalBlockSizeMSB},
		{binary.LittleEndian, &pathTableSize},
		{binary.BigEndian, &pathTableSizeMSB},
		{binary.LittleEndian, &typeLLoc},
		{binary.LittleEndian, &typeLOptLoc},
		{binary.BigEndian, &typeMLoc},
		{binary.BigEndian, &typeMOptLoc},
		{nil, &rootDirectoryEntry},
		{nil, &volumeSetIdentifier},
		{nil, &publisherIdentifier},
		{nil, &dataPreparerIdentifier},
		{nil, &applicationIdentifier},
		{nil, &copyrightFileIdentifier},
		{nil, &abstractFileIdentifier},
		{nil, &bibliographicFileIdentifier},
		{nil, &volumeCreationDatetime},
		{nil, &volumeModificationDatetime},
		{nil, &volumeExpirationDatetime},
		{nil, &volumeEffectiveDatetime},
		{nil, &fileStructureVersion},
		{nil, &unused4},
		{nil, &applicationData},
		{nil, &reserved},
	} {
		order := f.order
		if order == nil {
			order = binary.LittleEndian // irrelevant for byte arrays and single bytes
		}
		if err := binary.Read(r, order, f.v); err != nil {
			return nil, discerr.ErrStructureInvalid
		}
	}

	switch volumeFlags {
	case 0x00, 0x01:
	default:
		return nil, discerr.ErrStructureInvalid
	}
	additionalEscapeSequences := volumeFlags == 0x01

	if unused1 != ([8]byte{}) {
		return nil, discerr.ErrStructureInvalid
	}
	if volumeSpaceSize != volumeSpaceSizeMSB {
		return nil, discerr.ErrStructureInvalid
	}
	if uint32(volumeSetSize) != uint32(volumeSetSizeMSB) {
		return nil, discerr.ErrStructureInvalid
	}
	if uint32(volumeSequenceNumber) != uint32(volumeSequenceNumberMSB) {
		return nil, discerr.ErrStructureInvalid
	}
	if uint32(logicalBlockSize) != uint32(logicalBlockSizeMSB) {
		return nil, discerr.ErrStructureInvalid
	}
	if pathTableSize != pathTableSizeMSB {
		return nil, discerr.ErrStructureInvalid
	}
	if fileStructureVersion != 1 {
		return nil, discerr.ErrStructureInvalid
	}
	if unused4 != 0 {
		return nil, discerr.ErrStructureInvalid
	}

	pvd := &partitionVolumeDescriptor{
		fs:                   fs,
		kind:                 kind,
		encoding:             encoding,
		volumeSpaceSize:      volumeSpaceSize,
		volumeSetSize:        uint32(volumeSetSize),
		volumeSequenceNumber: uint32(volumeSequenceNumber),
		logicalBlockSize:     uint32(logicalBlockSize),
		pathTableSize:        pathTableSize,
	}

	switch encoding {
	case encodingAscii:
		if additionalEscapeSequences {
			return nil, discerr.ErrStructureInvalid
		}
		if escapeSequences != ([32]byte{}) {
			return nil, discerr.ErrStructureInvalid
		}
	case encodingUTF16BE:
		if additionalEscapeSequences {
			return nil, discerr.ErrNotSupported
		}
		if !validJolietEscape(escapeSequences[:]) {
			return nil, discerr.ErrNotSupported
		}
	}

	pvd.systemIdentifier = toString(systemIdentifier[:], encoding)
	pvd.volumeIdentifier = toString(volumeIdentifier[:], encoding)

	var err error
	pvd.typeLPathTable, err = pvd.readPathTable(true, int64(typeLLoc), pathTableSize)
	if err != nil {
		return nil, err
	}
	pvd.typeMPathTable, err = pvd.readPathTable(false, int64(typeMLoc), pathTableSize)
	if err != nil {
		return nil, err
	}

	pvd.rootDirectoryRecord, err = parseDirectoryRecord(rootDirectoryEntry[:], encoding)
	if err != nil {
		return nil, err
	}

	pvd.volumeSetIdentifier = toString(volumeSetIdentifier[:], encoding)
	pvd.publisherIdentifier = toString(publisherIdentifier[:], encoding)
	pvd.dataPreparerIdentifier = toString(dataPreparerIdentifier[:], encoding)
	pvd.applicationIdentifier = toString(applicationIdentifier[:], encoding)
	pvd.copyrightFileIdentifier = toString(copyrightFileIdentifier[:], encoding)
	pvd.abstractFileIdentifier = toString(abstractFileIdentifier[:], encoding)
	pvd.bibliographicFileIdentifier = toString(bibliographicFileIdentifier[:], encoding)

	pvd.volumeCreateDate, err = parseDateTime(volumeCreationDatetime[:])
	if err != nil {
		return nil, err
	}
	pvd.volumeModificationDate, err = parseDateTime(volumeModificationDatetime[:])
	if err != nil {
		return nil, err
	}
	if volumeExpirationDatetime != ([17]byte{}) {
		t, err := parseDateTime(volumeExpirationDatetime[:])
		if err != nil {
			return nil, err
		}
		pvd.volumeExpirationDate = &t
	}
	if volumeEffectiveDatetime != ([17]byte{}) {
		t, err := parseDateTime(volumeEffectiveDatetime[:])
		if err != nil {
			return nil, err
		}
		pvd.volumeEffectiveDate = &t
	}

	_ = typeLOptLoc // optional path table locations are not consulted; the primary ones suffice
	_ = typeMOptLoc
	_ = applicationData
	_ = reserved

	return pvd, nil
}

const (
	encodingAscii   = "ascii"
	encodingUTF16BE = "utf-16be"
)

var jolietEscapes = [][]byte{
	append([]byte{0x25, 0x2f, 0x40}, make([]byte, 29)...),
	append([]byte{0x25, 0x2f, 0x43}, make([]byte, 29)...),
	append([]byte{0x25, 0x2f, 0x45}, make([]byte, 29)...),
}

func validJolietEscape(seq []byte) bool {
	for _, e := range jolietEscapes {
		if bytes.Equal(seq, e) {
			return true
		}
	}
	return false
}

func toString(buf []byte, encoding string) string {
	switch encoding {
	case encodingUTF16BE:
		u16 := make([]uint16, 0, len(buf)/2)
		for i := 0; i+1 < len(buf); i += 2 {
			u16 = append(u16, uint16(buf[i])<<8|uint16(buf[i+1]))
		}
		return trimTrailingSpace(string(utf16.Decode(u16)))
	default:
		return trimTrailingSpace(string(bytes.TrimRight(buf, "\x00")))
	}
}

func trimTrailingSpace(s string) string {
	for len(s) > 0 && (s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	for len(s) > 0 && (s[0] == ' ') {
		s = s[1:]
	}
	return s
}

func parseDateTime(data []byte) (time.Time, error) {
	if len(data) != 17 {
		return time.Time{}, discerr.ErrStructureInvalid
	}
	s := string(bytes.TrimRight(data[:14], "\x00"))
	t, err := time.Parse("20060102150405", s)
	if err != nil {
		return time.Time{}, discerr.ErrStructureInvalid
	}
	return t, nil
}

func (pvd *partitionVolumeDescriptor) readPathTable(lsb bool, location int64, size uint32) ([]*PathTableEntry, error) {
	data, err := pvd.fs.readExtent(location, int64(size))
	if err != nil {
		return nil, err
	}
	var entries []*PathTableEntry
	for len(data) > 0 && data[0] > 0 {
		entry, consumed, err := parsePathTableEntry(lsb, data, pvd.encoding)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		data = data[consumed:]
	}
	return entries, nil
}

func (pvd *partitionVolumeDescriptor) Type() string { return pvd.kind }

func (pvd *partitionVolumeDescriptor) Label() string { return pvd.volumeIdentifier }

func (pvd *partitionVolumeDescriptor) RootDirectory() diskfs.Directory {
	return &Directory{record: pvd.rootDirectoryRecord, fs: pvd.fs}
}

func (pvd *partitionVolumeDescriptor) Dump(indent int) string {
	out := diskfs.Indent(indent) + fmt.Sprintf("%s (%s):\n", pvd.kind, pvd.kind)
	out += diskfs.Indent(indent) + fmt.Sprintf("- System Identifier: %q\n", pvd.systemIdentifier)
	out += diskfs.Indent(indent) + fmt.Sprintf("- Volume Identifier: %q\n", pvd.volumeIdentifier)
	out += diskfs.Indent(indent) + fmt.Sprintf("- Volume Space Size: %d blocks\n", pvd.volumeSpaceSize)
	out += diskfs.Indent(indent) + fmt.Sprintf("- Logical Block Size: %d bytes\n", pvd.logicalBlockSize)
	out += diskfs.Indent(indent) + "- Root Directory Entry:\n"
	out += pvd.rootDirectoryRecord.Dump(indent + 1)
	return out
}

type primaryVolumeDescriptor struct {
	*partitionVolumeDescriptor
}

func newPrimaryVolumeDescriptor(identifier []byte, version byte, data []byte, fs *ISO9660) (VolumeDescriptor, error) {
	if !bytes.Equal(identifier, []byte("CD001")) {
		return nil, discerr.ErrSignatureInvalid
	}
	if version != 1 {
		return nil, discerr.ErrStructureInvalid
	}
	pvd, err := parsePartitionVolumeDescriptor(encodingAscii, "iso9660", data, fs)
	if err != nil {
		return nil, err
	}
	return &primaryVolumeDescriptor{pvd}, nil
}

type supplementaryVolumeDescriptor struct {
	*partitionVolumeDescriptor
}

func newSupplementaryVolumeDescriptor(identifier []byte, version byte, data []byte, fs *ISO9660) (VolumeDescriptor, error) {
	if !bytes.Equal(identifier, []byte("CD001")) {
		return nil, discerr.ErrSignatureInvalid
	}
	if version != 1 {
		return nil, discerr.ErrStructureInvalid
	}
	pvd, err := parsePartitionVolumeDescriptor(encodingUTF16BE, "joliet", data, fs)
	if err != nil {
		return nil, err
	}
	return &supplementaryVolumeDescriptor{pvd}, nil
}

// PathTableEntry is one record of an ISO 9660 path table.
type PathTableEntry struct {
	Identifier  string
	Extent      uint32
	ParentIndex uint16
}

func parsePathTableEntry(lsb bool, data []byte, encoding string) (*PathTableEntry, int, error) {
	if len(data) < 8 {
		return nil, 0, discerr.ErrIoShort
	}
	order := binary.ByteOrder(binary.BigEndian)
	if lsb {
		order = binary.LittleEndian
	}
	identLen := data[0]
	extent := order.Uint32(data[2:6])
	parentIndex := order.Uint16(data[6:8])

	total := 8 + int(identLen)
	if identLen&1 != 0 {
		total++
	}
	if len(data) < total {
		return nil, 0, discerr.ErrIoShort
	}

	return &PathTableEntry{
		Identifier:  toString(data[8:8+int(identLen)], encoding),
		Extent:      extent,
		ParentIndex: parentIndex,
	}, total, nil
}

func (e *PathTableEntry) Dump(indent int) string {
	out := diskfs.Indent(indent) + "PathTableEntry:\n"
	out += diskfs.Indent(indent) + fmt.Sprintf("- Identifier: %s\n", e.Identifier)
	out += diskfs.Indent(indent) + fmt.Sprintf("- Extent Location: %d\n", e.Extent)
	out += diskfs.Indent(indent) + fmt.Sprintf("- Parent Directory Index: %d\n", e.ParentIndex)
	return out
}

// DirectoryRecord decodes one variable-length ISO 9660 directory
// record: extent, data length, recording date, flags, identifier.
type DirectoryRecord struct {
	length, extendedAttributesLength int
	extent                           uint32
	dataLength                       uint32
	recordingDateTime                time.Time
	flags                            byte
	fileUnitSize, interleaveGapSize  byte
	volumeSequenceNumber             uint16
	identifier                       []byte
	encoding                         string
}

func parseDirectoryRecord(data []byte, encoding string) (*DirectoryRecord, error) {
	if len(data) < 33 {
		return nil, discerr.ErrIoShort
	}
	length := int(data[0])
	eaLength := int(data[1])
	extent := binary.LittleEndian.Uint32(data[2:6])
	extentMSB := binary.BigEndian.Uint32(data[6:10])
	dataLength := binary.LittleEndian.Uint32(data[10:14])
	dataLengthMSB := binary.BigEndian.Uint32(data[14:18])
	year, month, day := data[18], data[19], data[20]
	hour, minute, second, tz := data[21], data[22], data[23], data[24]
	flags := data[25]
	fileUnitSize := data[26]
	interleaveGapSize := data[27]
	volSeq := binary.LittleEndian.Uint16(data[28:30])
	volSeqMSB := binary.BigEndian.Uint16(data[30:32])
	identLength := int(data[32])

	if length == 0 {
		return nil, discerr.ErrStructureInvalid
	}
	if length+eaLength > len(data) {
		return nil, discerr.ErrStructureInvalid
	}
	if extent != extentMSB {
		return nil, discerr.ErrStructureInvalid
	}
	if dataLength != dataLengthMSB {
		return nil, discerr.ErrStructureInvalid
	}
	if volSeq != volSeqMSB {
		return nil, discerr.ErrStructureInvalid
	}
	if 33+identLength > len(data) {
		return nil, discerr.ErrIoShort
	}

	_ = tz
	rec := time.Date(int(year)+1900, time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)

	return &DirectoryRecord{
		length:                length,
		extendedAttributesLength: eaLength,
		extent:                extent,
		dataLength:            dataLength,
		recordingDateTime:     rec,
		flags:                 flags,
		fileUnitSize:          fileUnitSize,
		interleaveGapSize:     interleaveGapSize,
		volumeSequenceNumber:  volSeq,
		identifier:            append([]byte(nil), data[33:33+identLength]...),
		encoding:              encoding,
	}, nil
}

func (r *DirectoryRecord) isHidden() bool          { return r.flags&0x01 != 0 }
func (r *DirectoryRecord) isDirectory() bool       { return r.flags&0x02 != 0 }
func (r *DirectoryRecord) isAssociatedFile() bool  { return r.flags&0x04 != 0 }
func (r *DirectoryRecord) hasFormatInfo() bool     { return r.flags&0x08 != 0 }
func (r *DirectoryRecord) hasPermissions() bool    { return r.flags&0x10 != 0 }
func (r *DirectoryRecord) isFinal() bool           { return r.flags&0x80 != 0 }

// Name strips the ";N" version suffix and decodes the identifier in
// the descriptor's encoding. Joliet identifiers are UTF-16-BE, so the
// suffix is split on the two-byte sequence 00 3B rather than a single
// ASCII ';' byte (the source splits on a single byte, which is
// ambiguous whenever a Joliet character's low byte happens to be 0x3B).
func (r *DirectoryRecord) Name() string {
	ident := r.identifier
	if r.encoding == encodingUTF16BE {
		if i := bytes.Index(ident, []byte{0x00, 0x3b}); i >= 0 && i%2 == 0 {
			ident = ident[:i]
		}
	} else {
		if i := bytes.IndexByte(ident, ';'); i >= 0 {
			ident = ident[:i]
		}
	}
	return toString(ident, r.encoding)
}

func (fs *ISO9660) getChildren(rec *DirectoryRecord) ([]*DirectoryRecord, error) {
	if !rec.isDirectory() {
		return nil, discerr.ErrStructureInvalid
	}
	data, err := fs.readExtent(int64(rec.extent), int64(rec.dataLength))
	if err != nil {
		return nil, err
	}

	// Skip the "." and ".." entries.
	for i := 0; i < 2; i++ {
		if len(data) < 2 {
			return nil, discerr.ErrStructureInvalid
		}
		skip := int(data[0])
		if skip == 0 {
			return nil, discerr.ErrStructureInvalid
		}
		data = data[skip:]
	}

	var children []*DirectoryRecord
	for len(data) > 0 && data[0] > 0 {
		record, err := parseDirectoryRecord(data, rec.encoding)
		if err != nil {
			return nil, err
		}
		children = append(children, record)
		if record.isFinal() {
			break
		}
		data = data[record.length+record.extendedAttributesLength:]
	}
	return children, nil
}

func (fs *ISO9660) getContent(rec *DirectoryRecord, stream int) ([]byte, error) {
	if rec.isDirectory() {
		return nil, discerr.ErrStructureInvalid
	}
	if stream != 0 {
		return nil, discerr.ErrNotSupported
	}

	data, err := fs.readExtent(int64(rec.extent), int64(rec.dataLength))
	if err == nil {
		return data, nil
	}

	// Fall back to a RIFF/CDXA wrap for Mode 2 Form 2 (audio/video) files.
	raw, rawErr := fs.readExtentAsRaw(int64(rec.extent), int64(rec.dataLength))
	if rawErr != nil {
		return nil, err
	}
	return wrapCDXA(raw), nil
}

func wrapCDXA(data []byte) []byte {
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(data)))
	copy(header[8:12], "CDXA")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 0)
	binary.LittleEndian.PutUint16(header[22:24], 0)
	binary.LittleEndian.PutUint16(header[24:26], 0x1111)
	copy(header[26:28], "XA")
	header[28] = 1
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(data)))
	return append(header, data...)
}

func (r *DirectoryRecord) Dump(indent int) string {
	out := diskfs.Indent(indent) + "DirectoryRecord:\n"
	out += diskfs.Indent(indent) + fmt.Sprintf("- Identifier: %s\n", r.Name())
	out += diskfs.Indent(indent) + fmt.Sprintf("- Extent Location: %d\n", r.extent)
	out += diskfs.Indent(indent) + fmt.Sprintf("- Data Length: %d\n", r.dataLength)
	out += diskfs.Indent(indent) + fmt.Sprintf("- Recorded: %s\n", r.recordingDateTime.Format(time.RFC3339))
	out += diskfs.Indent(indent) + fmt.Sprintf("- Directory: %v\n", r.isDirectory())
	out += diskfs.Indent(indent) + fmt.Sprintf("- Final: %v\n", r.isFinal())
	return out
}

// Directory adapts a directory record + image into the diskfs.Directory surface.
type Directory struct {
	record *DirectoryRecord
	fs     *ISO9660
}

func (d *Directory) Name() string { return d.record.Name() }

func (d *Directory) children(wantDirectories bool) []*DirectoryRecord {
	records, err := d.fs.getChildren(d.record)
	if err != nil {
		return nil
	}
	var out []*DirectoryRecord
	for _, r := range records {
		if r.isDirectory() == wantDirectories {
			out = append(out, r)
		}
	}
	return out
}

func (d *Directory) Directories() []diskfs.Directory {
	var out []diskfs.Directory
	for _, r := range d.children(true) {
		out = append(out, &Directory{record: r, fs: d.fs})
	}
	return out
}

func (d *Directory) Files() []diskfs.File {
	var out []diskfs.File
	for _, r := range d.children(false) {
		out = append(out, &File{record: r, fs: d.fs})
	}
	return out
}

func (d *Directory) Dump(indent int) string { return d.record.Dump(indent) }

// File adapts a directory record + image into the diskfs.File surface.
// ISO 9660 files always have exactly one stream, stream 0.
type File struct {
	record *DirectoryRecord
	fs     *ISO9660
}

func (f *File) Name() string { return f.record.Name() }

func (f *File) Streams() []int { return []int{0} }

func (f *File) GetContent(stream int) (io.ReadCloser, error) {
	data, err := f.fs.getContent(f.record, stream)
	if err != nil {
		return nil, err
	}
	return diskfs.NewByteContent(data), nil
}

func (f *File) Dump(indent int) string { return f.record.Dump(indent) }
