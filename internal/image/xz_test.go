// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package image

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsXZCompressed(t *testing.T) {
	cases := []struct {
		path   string
		header []byte
		want   bool
	}{
		{"disc.iso", []byte("\x00\x00\x00\x00"), false},
		{"disc.ISO.XZ", []byte("\x00\x00\x00\x00"), true},
		{"disc.img", []byte(xzMagic), true},
		{"disc", nil, false},
	}
	for _, c := range cases {
		if got := isXZCompressed(c.path, c.header); got != c.want {
			t.Errorf("isXZCompressed(%q, %q) = %v, want %v", c.path, c.header, got, c.want)
		}
	}
}

func TestOpenISOImagePlain(t *testing.T) {
	data := make([]byte, 2048*4)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "disc.iso")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	im, err := OpenISOImage(path, 0)
	if err != nil {
		t.Fatalf("OpenISOImage: %v", err)
	}
	defer im.Close()

	got, err := im.ReadBlocks(1, 1)
	if err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if string(got) != string(data[2048:4096]) {
		t.Fatalf("payload mismatch")
	}
}
