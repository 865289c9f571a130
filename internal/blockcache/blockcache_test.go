// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package blockcache

import (
	"path/filepath"
	"testing"

	"github.com/discutil/discimage/internal/discerr"
	"github.com/discutil/discimage/internal/image"
)

// countingImage is a minimal image.Image double over a flat buffer of
// 2048-byte blocks that counts how many times ReadBlocks actually
// reached the backing store.
type countingImage struct {
	data  []byte
	reads int
}

const blockSize = 2048

func (m *countingImage) ReadBlocks(address int64, count int) ([]byte, error) {
	m.reads++
	start := address * blockSize
	end := start + int64(count)*blockSize
	if end > int64(len(m.data)) {
		return nil, discerr.ErrIoShort
	}
	return m.data[start:end], nil
}

func (m *countingImage) ReadBlocksData(address int64, count int) ([]byte, error) {
	return m.ReadBlocks(address, count)
}

func (m *countingImage) ReadBlocksRaw(address int64, count int) ([]byte, error) {
	return nil, discerr.ErrNotSupported
}

func (m *countingImage) CurrentBlock() int64 { return 0 }
func (m *countingImage) BlockSize() int64    { return blockSize }
func (m *countingImage) Close() error        { return nil }

func TestCacheAvoidsRereads(t *testing.T) {
	data := make([]byte, blockSize*4)
	for i := range data {
		data[i] = byte(i)
	}
	inner := &countingImage{data: data}

	c, err := New(inner, 16, filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		got, err := c.ReadBlocks(1, 1)
		if err != nil {
			t.Fatalf("ReadBlocks: %v", err)
		}
		want := data[blockSize : blockSize*2]
		if string(got) != string(want) {
			t.Fatalf("iteration %d: payload mismatch", i)
		}
	}

	if inner.reads != 1 {
		t.Errorf("inner.reads = %d, want 1 (cache should absorb repeat reads)", inner.reads)
	}
}

func TestCacheBypassesMultiBlockAndRaw(t *testing.T) {
	data := make([]byte, blockSize*4)
	inner := &countingImage{data: data}
	c, err := New(inner, 16, filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, err := c.ReadBlocks(0, 2); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if _, err := c.ReadBlocksRaw(0, 1); err == nil || err != discerr.ErrNotSupported {
		t.Errorf("ReadBlocksRaw: expected ErrNotSupported passthrough, got %v", err)
	}
	if inner.reads != 1 {
		t.Errorf("inner.reads = %d, want 1 (multi-block reads bypass the cache)", inner.reads)
	}
}

var _ image.Image = (*Image)(nil)
