// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Command discextract opens a disc image, probes it for every known
// filesystem, and writes each partition's directory tree to a host
// output directory, per the extraction contract: a host directory per
// logical directory, and a file per stream (the primary stream as
// <name>, any extra stream s as <name>.<s>).
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/discutil/discimage"
	"github.com/discutil/discimage/internal/contenthash"
	"github.com/discutil/discimage/internal/diskfs"
)

func main() {
	var (
		raw        = flag.Bool("r", false, "treat the image as RAW (2352-byte sectors) instead of cooked ISO")
		badMap     = flag.String("b", "", "bad-sector map file")
		ddrMap     = flag.String("m", "", "ddrescue map file")
		baseOffset = flag.Int64("o", 0, "base block offset")
		cacheDir   = flag.String("cache", "", "block cache directory (disabled if empty)")
		outDir     = flag.String("out", ".", "output directory")
		glob       = flag.String("glob", "", "include only paths matching this doublestar pattern")
		exclude    = flag.String("exclude", "", "exclude paths matching this doublestar pattern")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <image>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := &discimage.Config{
		ImagePath:       flag.Arg(0),
		Raw:             *raw,
		BaseOffset:      *baseOffset,
		BadMapPath:      *badMap,
		DDRescueMapPath: *ddrMap,
		CacheDir:        *cacheDir,
	}

	d, img, err := cfg.OpenDisc()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer img.Close()

	e := &extractor{outDir: *outDir, glob: *glob, exclude: *exclude}
	for _, p := range d.Partitions {
		partDir := filepath.Join(*outDir, p.Label())
		if err := os.MkdirAll(partDir, 0o755); err != nil {
			slog.Error("creating partition directory failed", "partition", p.Label(), "err", err)
			continue
		}
		e.walk(p.RootDirectory(), partDir, p.Label())
	}
}

type extractor struct {
	outDir, glob, exclude string
}

func (e *extractor) included(path string) bool {
	if e.exclude != "" {
		if ok, err := doublestar.Match(e.exclude, path); err == nil && ok {
			return false
		}
	}
	if e.glob == "" {
		return true
	}
	ok, err := doublestar.Match(e.glob, path)
	return err == nil && ok
}

// walk extracts dir into hostDir. logicalPath is dir's path within the
// partition, which the glob filters are matched against.
func (e *extractor) walk(dir diskfs.Directory, hostDir, logicalPath string) {
	for _, f := range dir.Files() {
		path := logicalPath + "/" + f.Name()
		if !e.included(path) {
			continue
		}
		e.extractFile(f, hostDir)
	}

	for _, sub := range dir.Directories() {
		path := logicalPath + "/" + sub.Name()
		subHostDir := filepath.Join(hostDir, sub.Name())
		if err := os.MkdirAll(subHostDir, 0o755); err != nil {
			slog.Error("creating directory failed", "path", path, "err", err)
			continue
		}
		e.walk(sub, subHostDir, path)
	}
}

func (e *extractor) extractFile(f diskfs.File, hostDir string) {
	for _, stream := range f.Streams() {
		name := f.Name()
		if stream != 0 {
			name = fmt.Sprintf("%s.%d", f.Name(), stream)
		}
		hostPath := filepath.Join(hostDir, name)

		if err := e.extractStream(f, stream, hostPath); err != nil {
			slog.Error("extracting file failed", "path", hostPath, "err", err)
		}
	}
}

func (e *extractor) extractStream(f diskfs.File, stream int, hostPath string) error {
	rc, err := f.GetContent(stream)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(hostPath)
	if err != nil {
		return err
	}
	defer out.Close()

	digest := contenthash.New()
	if _, err := io.Copy(out, io.TeeReader(rc, digest)); err != nil {
		return err
	}

	slog.Info("extracted", "path", hostPath, "xxhash64", fmt.Sprintf("%016x", digest.Sum64()))
	return nil
}
