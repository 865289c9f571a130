// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package blockcache wraps an image.Image with a bounded in-memory
// cache backed by an embedded on-disk overflow store, so repeatedly
// walked directories and repeatedly read B-tree nodes don't re-hit the
// backing file. It is an optional decorator: no filesystem decoder
// depends on it, every filesystem decoder only ever sees image.Image.
package blockcache

import (
	"encoding/binary"
	"hash/maphash"
	"os"

	"github.com/cockroachdb/pebble/v2"
	"github.com/dgryski/go-tinylfu"

	"github.com/discutil/discimage/internal/contenthash"
	"github.com/discutil/discimage/internal/image"
)

// key identifies one cached single-block read.
type key struct {
	address int64
}

var seed = maphash.MakeSeed()

func hashKey(k key) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(k.address))
	return maphash.Bytes(seed, buf[:])
}

// Image decorates an image.Image with a two-tier cache of single-block
// reads: a bounded in-memory tinylfu tier, and a pebble-backed overflow
// store on disk for images too large to keep hot entirely in memory.
// Blocks are deduplicated in the overflow store by content hash, since
// optical disc images routinely contain long runs of identically-zeroed
// or identically-padded blocks.
type Image struct {
	inner image.Image
	hot   *tinylfu.T[key, []byte]
	db    *pebble.DB
}

// New wraps inner. hotBlocks bounds the in-memory tier's block count.
// dbDir is a directory pebble may use for its overflow store; it is
// created if missing. Close closes the store but leaves dbDir and its
// contents on disk.
func New(inner image.Image, hotBlocks int, dbDir string) (*Image, error) {
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(dbDir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Image{
		inner: inner,
		hot:   tinylfu.New[key, []byte](hotBlocks, hotBlocks*10, hashKey),
		db:    db,
	}, nil
}

// addrKey and blobKey namespace the two kinds of entry pebble holds:
// address -> content hash, and content hash -> block bytes. The second
// indirection is what lets identical blocks share one on-disk copy.
func addrKey(address int64) []byte {
	buf := make([]byte, 9)
	buf[0] = 'a'
	binary.BigEndian.PutUint64(buf[1:], uint64(address))
	return buf
}

func blobKey(sum uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = 'b'
	binary.BigEndian.PutUint64(buf[1:], sum)
	return buf
}

func (c *Image) readCached(address int64) ([]byte, error) {
	k := key{address: address}
	if b, ok := c.hot.Get(k); ok {
		return b, nil
	}

	if sumBytes, closer, err := c.db.Get(addrKey(address)); err == nil {
		sum := binary.BigEndian.Uint64(sumBytes)
		closer.Close()
		if blob, closer, err := c.db.Get(blobKey(sum)); err == nil {
			data := append([]byte(nil), blob...)
			closer.Close()
			c.hot.Add(k, data)
			return data, nil
		}
	}

	data, err := c.inner.ReadBlocks(address, 1)
	if err != nil {
		return nil, err
	}

	sum := contenthash.Sum64(data)
	var sumBuf [8]byte
	binary.BigEndian.PutUint64(sumBuf[:], sum)
	_ = c.db.Set(addrKey(address), sumBuf[:], pebble.NoSync)
	_ = c.db.Set(blobKey(sum), data, pebble.NoSync)

	c.hot.Add(k, data)
	return data, nil
}

func (c *Image) ReadBlocks(address int64, count int) ([]byte, error) {
	if address == image.NoAddress || count != 1 {
		return c.inner.ReadBlocks(address, count)
	}
	return c.readCached(address)
}

func (c *Image) ReadBlocksData(address int64, count int) ([]byte, error) {
	return c.inner.ReadBlocksData(address, count)
}

func (c *Image) ReadBlocksRaw(address int64, count int) ([]byte, error) {
	return c.inner.ReadBlocksRaw(address, count)
}

func (c *Image) CurrentBlock() int64 { return c.inner.CurrentBlock() }

func (c *Image) BlockSize() int64 { return c.inner.BlockSize() }

func (c *Image) Close() error {
	dbErr := c.db.Close()
	if innerErr := c.inner.Close(); innerErr != nil {
		return innerErr
	}
	return dbErr
}

var _ image.Image = (*Image)(nil)
