package image

import (
	"bytes"
	"testing"

	"github.com/discutil/discimage/internal/discerr"
)

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func newMemFile(data []byte) ReadSeekCloser {
	return memFile{bytes.NewReader(data)}
}

func TestISOImageReadBlocks(t *testing.T) {
	data := make([]byte, 2048*4)
	for i := range data {
		data[i] = byte(i)
	}
	im, err := NewISOImage(newMemFile(data), 0)
	if err != nil {
		t.Fatalf("NewISOImage: %v", err)
	}
	got, err := im.ReadBlocks(1, 2)
	if err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if !bytes.Equal(got, data[2048:2048*3]) {
		t.Fatalf("payload mismatch")
	}
	if im.CurrentBlock() != 3 {
		t.Fatalf("current block = %d, want 3", im.CurrentBlock())
	}
}

func TestISOImageSequentialCursor(t *testing.T) {
	data := make([]byte, 2048*3)
	im, err := NewISOImage(newMemFile(data), 0)
	if err != nil {
		t.Fatalf("NewISOImage: %v", err)
	}
	if _, err := im.ReadBlocks(0, 1); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if _, err := im.ReadBlocks(NoAddress, 1); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if im.CurrentBlock() != 2 {
		t.Fatalf("current block = %d, want 2", im.CurrentBlock())
	}
}

func buildRawMode0Sector() []byte {
	sector := make([]byte, 2352)
	copy(sector[0:12], []byte{0, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0})
	return sector
}

func TestRawCDImageMode0(t *testing.T) {
	data := buildRawMode0Sector()
	im, err := NewRawCDImage(newMemFile(data))
	if err != nil {
		t.Fatalf("NewRawCDImage: %v", err)
	}
	got, err := im.ReadBlocks(0, 1)
	if err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if len(got) != 2048 {
		t.Fatalf("len(got) = %d, want 2048", len(got))
	}
	for i, b := range got {
		if b != 0 {
			t.Fatalf("got[%d] = %#x, want 0", i, b)
		}
	}
}

func TestRawCDImageRaw(t *testing.T) {
	data := buildRawMode0Sector()
	im, err := NewRawCDImage(newMemFile(data))
	if err != nil {
		t.Fatalf("NewRawCDImage: %v", err)
	}
	got, err := im.ReadBlocksRaw(0, 1)
	if err != nil {
		t.Fatalf("ReadBlocksRaw: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("raw sector mismatch")
	}
}

func TestOffsetedImageSubtractsAddress(t *testing.T) {
	data := make([]byte, 2048*4)
	inner, err := NewISOImage(newMemFile(data), 0)
	if err != nil {
		t.Fatalf("NewISOImage: %v", err)
	}
	shim := NewOffsetedImage(inner, 10)
	if _, err := shim.ReadBlocks(11, 1); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if inner.CurrentBlock() != 2 {
		t.Fatalf("inner current block = %d, want 2", inner.CurrentBlock())
	}
	if shim.CurrentBlock() != 12 {
		t.Fatalf("shim current block = %d, want 12", shim.CurrentBlock())
	}
}

func TestBadMapImageBlocksIntersectingRead(t *testing.T) {
	data := make([]byte, 2048*4)
	inner, _ := NewISOImage(newMemFile(data), 0)
	overlay := NewBadMapImage(inner, []string{"2"}, 0)

	if _, err := overlay.ReadBlocks(0, 1); err != nil {
		t.Fatalf("ReadBlocks(0): %v", err)
	}
	_, err := overlay.ReadBlocks(1, 2)
	var badBlock *discerr.BadBlock
	if !errorsAsBadBlock(err, &badBlock) {
		t.Fatalf("err = %v, want *discerr.BadBlock", err)
	}
}

func TestDDRescueImageWholeFileGood(t *testing.T) {
	data := make([]byte, 2048*4)
	inner, _ := NewISOImage(newMemFile(data), 0)
	lines := []string{
		"0x00000000  +  1",
		"0x00000000  0x00002000  +",
	}
	overlay, err := NewDDRescueImage(inner, lines)
	if err != nil {
		t.Fatalf("NewDDRescueImage: %v", err)
	}
	if _, err := overlay.ReadBlocks(0, 4); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
}

func TestDDRescueImageBadRangeBlocksRead(t *testing.T) {
	data := make([]byte, 2048*8)
	inner, _ := NewISOImage(newMemFile(data), 0)
	lines := []string{
		"0x00000000 + 1",
		"0x00000000 0x00002000 +",
		"0x00002000 0x00000200 -",
		"0x00002200 0x00001e00 +",
	}
	overlay, err := NewDDRescueImage(inner, lines)
	if err != nil {
		t.Fatalf("NewDDRescueImage: %v", err)
	}
	if _, err := overlay.ReadBlocks(0, 1); err != nil {
		t.Fatalf("ReadBlocks(block 0): %v", err)
	}
	_, err = overlay.ReadBlocks(4, 1)
	var badBlock *discerr.BadBlock
	if !errorsAsBadBlock(err, &badBlock) {
		t.Fatalf("err = %v, want *discerr.BadBlock", err)
	}
}

func errorsAsBadBlock(err error, target **discerr.BadBlock) bool {
	e, ok := err.(*discerr.BadBlock)
	if ok {
		*target = e
	}
	return ok
}
