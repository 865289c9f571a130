// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package rawsector decodes 2352-byte raw CD-ROM sectors (Mode 0, Mode 1,
// and Mode 2 Form 1/Form 2), verifying the EDC and P/Q ECC along the way.
//
// See:
// https://github.com/libyal/libodraw/blob/main/documentation/Optical%20disc%20RAW%20format.asciidoc
// https://psx-spx.consoledev.net/cdromdrive/#cdrom-sector-encoding
package rawsector

import (
	"bytes"
	"encoding/binary"

	"github.com/discutil/discimage/internal/discerr"
	"github.com/discutil/discimage/internal/edcecc"
)

const (
	RawSectorSize  = 2352
	DataSectorSize = 2048
)

var sync = []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

var (
	edc edcecc.EDC
	ecc edcecc.ECC
)

// Mode reports the decoded sector's on-disc mode/form, for callers
// (like the ISO 9660 CDXA fallback) that need to tell Form 2 apart
// from a plain 2048-byte payload.
type Mode int

const (
	Mode0 Mode = iota
	Mode1
	Mode2Form1
	Mode2Form2
)

// Decode parses one 2352-byte raw sector and returns its user-data
// payload. strictSize rejects Mode 2 Form 2 sectors, whose payload is
// 2324 bytes rather than the usual 2048 — callers that need a fixed
// block size (the data view used by filesystem decoders) set this;
// callers happy with a variable-size data view (read_blocks_data) don't.
func Decode(sector []byte, sectorIndex int64, strictSize bool) ([]byte, Mode, error) {
	if len(sector) != RawSectorSize {
		return nil, 0, discerr.ErrIoShort
	}

	sectorSync := sector[0:12]
	offset := sector[12:15]
	mode := sector[15]
	payload := sector[16:2352]

	if !bytes.Equal(sectorSync, sync) {
		return nil, 0, &discerr.SyncInvalid{Sector: sectorIndex}
	}

	switch mode {
	case 0:
		return make([]byte, DataSectorSize), Mode0, nil

	case 1:
		data := payload[0:2048]
		edcField := binary.LittleEndian.Uint32(payload[2048:2052])
		eccField := payload[2060:2336]

		wantEdc := edc.Compute(concat(sectorSync, offset, []byte{mode}, data))
		if edcField != wantEdc {
			return nil, 0, &discerr.EdcInvalid{Sector: sectorIndex}
		}

		// The ECC P/Q region is 2064 bytes (header+data+edc padded with the
		// 8 reserved zero bytes that sit between the EDC and the ECC itself).
		var edcLE [4]byte
		binary.LittleEndian.PutUint32(edcLE[:], edcField)
		wantEcc := ecc.Compute(concat(offset, []byte{mode}, data, edcLE[:], make([]byte, 8)))
		if !bytes.Equal(eccField, wantEcc) {
			return nil, 0, &discerr.EccInvalid{Sector: sectorIndex}
		}
		return append([]byte(nil), data...), Mode1, nil

	case 2:
		subheader := payload[0:8]
		if subheader[2] != subheader[6] {
			return nil, 0, &discerr.ModeInvalid{Sector: sectorIndex, Reason: "submode flags do not match"}
		}

		rest := payload[8:2336]
		form2 := subheader[2]&0x20 != 0

		if !form2 {
			data := rest[0:2048]
			edcField := binary.LittleEndian.Uint32(rest[2048:2052])
			eccField := rest[2052:2328]

			var edcLE [4]byte
			binary.LittleEndian.PutUint32(edcLE[:], edcField)
			wantEcc := ecc.Compute(concat(make([]byte, 4), subheader, data, edcLE[:]))
			if !bytes.Equal(eccField, wantEcc) {
				return nil, 0, &discerr.EccInvalid{Sector: sectorIndex}
			}

			wantEdc := edc.Compute(concat(subheader, data))
			if edcField != wantEdc {
				return nil, 0, &discerr.EdcInvalid{Sector: sectorIndex}
			}
			return append([]byte(nil), data...), Mode2Form1, nil
		}

		data := rest[0:2324]
		edcField := binary.LittleEndian.Uint32(rest[2324:2328])

		wantEdc := edc.Compute(concat(subheader, data))
		if edcField != wantEdc {
			return nil, 0, &discerr.EdcInvalid{Sector: sectorIndex}
		}

		if strictSize {
			return nil, 0, &discerr.ModeInvalid{Sector: sectorIndex, Reason: "mode 2 form 2 sector found"}
		}
		return append([]byte(nil), data...), Mode2Form2, nil

	default:
		return nil, 0, &discerr.ModeInvalid{Sector: sectorIndex, Reason: "unrecognized mode byte"}
	}
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
