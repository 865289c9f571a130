// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package discimage composes the image-access stack and filesystem
// decoders behind one entry point, for use by the command-line
// front-ends in cmd/discdump and cmd/discextract.
package discimage

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/discutil/discimage/internal/blockcache"
	"github.com/discutil/discimage/internal/disc"
	"github.com/discutil/discimage/internal/diskfs"
	"github.com/discutil/discimage/internal/image"
)

// Config is the plain, explicitly-constructed configuration shared by
// both front-ends: which image kind to open, which overlays to apply,
// and where cached blocks and logs go. No ambient globals are
// consulted; every field here is set by flag parsing and threaded
// through to the constructors that need it.
type Config struct {
	// ImagePath is the disc image file to open. A ".xz" suffix or
	// leading XZ magic is decompressed transparently.
	ImagePath string

	// Raw selects the RAW 2352-byte-per-sector image form instead of
	// the cooked 2048-byte-per-block ISO form.
	Raw bool

	// BaseOffset is the block address at which the filesystems start
	// on the image. Each filesystem decoder adds it to the addresses it
	// reads from (the ISO 9660 decoder only to the system area and the
	// volume descriptors), and it is subtracted from every address in
	// the bad-sector map.
	BaseOffset int64

	// BadMapPath, if non-empty, names a bad-sector map (spec.md §6)
	// applied on top of the base image.
	BadMapPath string

	// DDRescueMapPath, if non-empty, names a GNU ddrescue map applied
	// on top of the base image (and on top of BadMapPath, if both are
	// given).
	DDRescueMapPath string

	// CacheDir, if non-empty, wraps the assembled image in a
	// block cache backed by a pebble store rooted at this directory.
	CacheDir string

	// CacheHotBlocks bounds the block cache's in-memory tier. Ignored
	// when CacheDir is empty.
	CacheHotBlocks int

	// Logger receives the filesystem probe warnings of OpenDisc.
	// Defaults to slog.Default() when nil.
	Logger *slog.Logger
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\n"), nil
}

// OpenImage assembles the image-access stack described by c: the base
// ISO or RAW reader, optionally XZ-decompressed, then the bad-map and
// ddrescue overlays in that order, then an optional block cache.
func (c *Config) OpenImage() (image.Image, error) {
	var base image.Image
	if c.Raw {
		im, err := image.OpenRawCDImage(c.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("opening raw image: %w", err)
		}
		base = im
	} else {
		im, err := image.OpenISOImage(c.ImagePath, 0)
		if err != nil {
			return nil, fmt.Errorf("opening iso image: %w", err)
		}
		base = im
	}

	// BaseOffset is handed directly to the bad-map overlay and to the
	// filesystem decoders (internal/disc.Probe), rather than via a
	// separate OffsetedImage shim: both already accept it as an
	// explicit parameter, so composing Offset in between would shift
	// addresses twice.
	img := base
	if c.BadMapPath != "" {
		lines, err := readLines(c.BadMapPath)
		if err != nil {
			return nil, fmt.Errorf("reading bad-sector map: %w", err)
		}
		img = image.NewBadMapImage(img, lines, c.BaseOffset)
	}

	if c.DDRescueMapPath != "" {
		lines, err := readLines(c.DDRescueMapPath)
		if err != nil {
			return nil, fmt.Errorf("reading ddrescue map: %w", err)
		}
		img, err = image.NewDDRescueImage(img, lines)
		if err != nil {
			return nil, fmt.Errorf("parsing ddrescue map: %w", err)
		}
	}

	if c.CacheDir != "" {
		hot := c.CacheHotBlocks
		if hot == 0 {
			hot = 4096
		}
		cached, err := blockcache.New(img, hot, c.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("opening block cache: %w", err)
		}
		img = cached
	}

	return img, nil
}

// OpenDisc opens the image and probes it for every known filesystem,
// per internal/disc.Probe.
func (c *Config) OpenDisc() (*diskfs.Disc, image.Image, error) {
	img, err := c.OpenImage()
	if err != nil {
		return nil, nil, err
	}
	d := disc.Probe(img, c.BaseOffset, c.logger())
	return d, img, nil
}
