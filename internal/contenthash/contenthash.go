// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package contenthash computes streaming xxhash digests of extracted
// file content and of cached image blocks.
package contenthash

import (
	"io"

	"github.com/cespare/xxhash/v2"
)

// Sum64 hashes a single byte slice, for the block cache's deduplication
// of identical blocks.
func Sum64(b []byte) uint64 {
	var h xxhash.Digest
	h.Write(b)
	return h.Sum64()
}

// Digest is a streaming content hash, written to as a file's content is
// copied out during extraction so the CLI can print a verification
// line without buffering the whole file a second time.
type Digest struct {
	h xxhash.Digest
}

func New() *Digest { return &Digest{} }

func (d *Digest) Write(p []byte) (int, error) { return d.h.Write(p) }

// Sum64 returns the running digest. Calling it mid-stream and
// continuing to Write is valid, matching hash.Hash64's contract.
func (d *Digest) Sum64() uint64 { return d.h.Sum64() }

var _ io.Writer = (*Digest)(nil)
