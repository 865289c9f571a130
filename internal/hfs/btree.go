// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package hfs

import (
	"fmt"

	"github.com/discutil/discimage/internal/discerr"
)

// btreeNodeSize is fixed at 512 bytes for every B-tree on a plain HFS
// volume (HFS+ allows larger nodes; this format predates that).
const btreeNodeSize = 512

// readBTreeLeafRecords walks a fully materialized B-tree file (the
// catalog file or the extents-overflow file) and returns every record
// stored in its leaf nodes, in leaf-chain order.
//
// Rather than performing an indexed descent from the root the way a
// real B-tree lookup would, every leaf is visited by following the
// header node's first-leaf/last-leaf linked list and every record is
// collected into one flat slice. Catalog and extents-overflow files
// on a plain HFS volume are small enough that a full scan, followed
// by an ordinary Go map lookup, is simpler than reimplementing
// B-tree descent and costs nothing in practice.
func readBTreeLeafRecords(tree []byte) ([][]byte, error) {
	if len(tree) < btreeNodeSize {
		return nil, fmt.Errorf("hfs b-tree header node: %w", discerr.ErrIoShort)
	}
	header, err := readBTreeNode(tree[:btreeNodeSize])
	if err != nil {
		return nil, err
	}
	if len(header) < 1 || len(header[0]) < 18 {
		return nil, fmt.Errorf("hfs b-tree header record: %w", discerr.ErrStructureInvalid)
	}

	firstLeaf := beUint32(header[0][10:14])
	lastLeaf := beUint32(header[0][14:18])

	var records [][]byte
	seen := make(map[uint32]bool)
	i := firstLeaf
	for {
		if seen[i] {
			return nil, fmt.Errorf("hfs b-tree leaf chain: %w", discerr.ErrStructureInvalid)
		}
		seen[i] = true

		offset := int64(i) * btreeNodeSize
		if offset+btreeNodeSize > int64(len(tree)) {
			return nil, fmt.Errorf("hfs b-tree node %d: %w", i, discerr.ErrIoShort)
		}
		node := tree[offset : offset+btreeNodeSize]

		recs, err := readBTreeNode(node)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)

		if i == lastLeaf {
			break
		}
		i = beUint32(node[0:4])
	}
	return records, nil
}

// readBTreeNode splits one 512-byte node into its records, using the
// offset table stored backward from the end of the node.
func readBTreeNode(node []byte) ([][]byte, error) {
	count := beUint16(node[10:12])
	if count > 248 {
		return nil, fmt.Errorf("hfs b-tree node: %d records: %w", count, discerr.ErrStructureInvalid)
	}

	records := make([][]byte, 0, count)
	for i := uint16(0); i < count; i++ {
		start := beUint16(node[btreeNodeSize-2-2*int(i):])
		end := beUint16(node[btreeNodeSize-4-2*int(i):])
		if start > end || int(end) > len(node) {
			return nil, fmt.Errorf("hfs b-tree node record %d: %w", i, discerr.ErrStructureInvalid)
		}
		records = append(records, node[start:end])
	}
	return records, nil
}
