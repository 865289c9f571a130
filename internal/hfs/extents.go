// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package hfs

// threeExtent is one (start, count) allocation-block range, as they
// appear fixed three-to-a-record in the Master Directory Block and
// in every catalog file/directory record.
type threeExtent struct {
	start uint16
	count uint16
}

// parseThreeExtents reads the three fixed (start,count) pairs from a
// 12-byte extent data record, dropping any trailing zero-count
// entries.
func parseThreeExtents(data []byte) []threeExtent {
	var out []threeExtent
	for i := 0; i+4 <= len(data); i += 4 {
		start := beUint16(data[i:])
		count := beUint16(data[i+2:])
		if count == 0 {
			break
		}
		out = append(out, threeExtent{start: start, count: count})
	}
	return out
}

// extentGroup is the full set of allocation-block extents backing
// one fork of one file (or, embedded in the Master Directory Block,
// the catalog file or the extents-overflow file itself), after any
// continuation extents from the extents-overflow B-tree have been
// appended.
type extentGroup struct {
	vol     *hfsVolume
	extents []threeExtent
}

func newExtentGroup(vol *hfsVolume, extents []threeExtent) *extentGroup {
	return &extentGroup{vol: vol, extents: extents}
}

// size returns the extent group's total length in allocation blocks.
func (g *extentGroup) size() uint64 {
	var n uint64
	for _, e := range g.extents {
		n += uint64(e.count)
	}
	return n
}

// readAllBlocks reads every allocation block the group covers, in
// order, concatenated into one buffer. Catalog and extents-overflow
// files are always small enough that this is the simplest correct
// approach, mirroring how the ISO 9660 decoder always fully
// materializes a directory extent before parsing it.
func (g *extentGroup) readAllBlocks() ([]byte, error) {
	var out []byte
	for _, e := range g.extents {
		b, err := g.vol.readAllocationBlocks(uint32(e.start), uint32(e.count))
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// readClipped is like readAllBlocks, but truncates the result to
// logicalSize bytes — a fork's extents are sized in whole allocation
// blocks, always rounding up past the fork's actual logical length.
func (g *extentGroup) readClipped(logicalSize uint32) ([]byte, error) {
	b, err := g.readAllBlocks()
	if err != nil {
		return nil, err
	}
	if uint32(len(b)) > logicalSize {
		b = b[:logicalSize]
	}
	return b, nil
}

// blocksSoFar returns how many allocation blocks this group already
// covers, used to look up the extents-overflow B-tree's continuation
// key for "the next batch of extents after this many blocks".
func (g *extentGroup) blocksSoFar() uint16 {
	var n uint16
	for _, e := range g.extents {
		n += e.count
	}
	return n
}

// chaseOverflow appends continuation extents from the
// extents-overflow B-tree (keyed by CNID, fork, and the block count
// already consumed) until no further continuation exists.
func (g *extentGroup) chaseOverflow(overflow map[extentOverflowKey][]threeExtent, cnid uint32, isResource bool) *extentGroup {
	for {
		key := extentOverflowKey{cnid: cnid, blocksConsumed: g.blocksSoFar(), isResource: isResource}
		more, ok := overflow[key]
		if !ok {
			return g
		}
		g.extents = append(g.extents, more...)
	}
}

// extentOverflowKey identifies one extents-overflow B-tree record:
// the file it continues, which fork, and how many allocation blocks
// were already covered by the extents that came before it.
type extentOverflowKey struct {
	cnid           uint32
	blocksConsumed uint16
	isResource     bool
}
