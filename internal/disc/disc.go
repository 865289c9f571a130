// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package disc probes one image for every filesystem this module
// understands and aggregates whatever it finds into a diskfs.Disc.
package disc

import (
	"log/slog"

	"github.com/discutil/discimage/internal/diskfs"
	"github.com/discutil/discimage/internal/hfs"
	"github.com/discutil/discimage/internal/image"
	"github.com/discutil/discimage/internal/iso9660"
)

// Probe tries each known filesystem decoder against img at
// baseOffset. A decoder that fails to recognize its signature is not
// an error for the disc as a whole: the failure is logged at Warn and
// that decoder simply contributes no partitions, since a single image
// may legally hold any combination of filesystems (or none).
//
// logger defaults to slog.Default() when nil.
func Probe(img image.Image, baseOffset int64, logger *slog.Logger) *diskfs.Disc {
	if logger == nil {
		logger = slog.Default()
	}

	d := &diskfs.Disc{}

	if fs, err := iso9660.New(img, baseOffset); err != nil {
		logger.Warn("filesystem probe failed", "probe", "iso9660", "err", err)
	} else {
		d.Partitions = append(d.Partitions, fs.Partitions()...)
	}

	if apm, err := hfs.New(img, baseOffset); err != nil {
		logger.Warn("filesystem probe failed", "probe", "apple_partition_map", "err", err)
	} else {
		d.Partitions = append(d.Partitions, apm.Partitions()...)
	}

	return d
}
