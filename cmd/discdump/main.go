// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Command discdump opens a disc image, probes it for every known
// filesystem, and prints each partition's textual dump followed by a
// breadth-first tree of its directory structure.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/discutil/discimage"
	"github.com/discutil/discimage/internal/diskfs"
)

func main() {
	var (
		raw        = flag.Bool("r", false, "treat the image as RAW (2352-byte sectors) instead of cooked ISO")
		badMap     = flag.String("b", "", "bad-sector map file")
		ddrMap     = flag.String("m", "", "ddrescue map file")
		baseOffset = flag.Int64("o", 0, "base block offset")
		cacheDir   = flag.String("cache", "", "block cache directory (disabled if empty)")
		glob       = flag.String("glob", "", "restrict the printed tree to paths matching this doublestar pattern")
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

	if len(d.Partitions) == 0 {
		slog.Warn("no recognized filesystem found on image", "path", cfg.ImagePath)
	}

	for _, p := range d.Partitions {
		fmt.Print(p.Dump(0))
		printTree(p.RootDirectory(), p.RootDirectory().Name(), *glob)
	}
}

// printTree walks dir breadth-first, printing each path that matches
// pattern (or every path, when pattern is empty).
func printTree(dir diskfs.Directory, prefix, pattern string) {
	type queued struct {
		dir  diskfs.Directory
		path string
	}
	queue := []queued{{dir, prefix}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, f := range cur.dir.Files() {
			path := cur.path + "/" + f.Name()
			if matches(pattern, path) {
				fmt.Println(path)
			}
		}
		for _, sub := range cur.dir.Directories() {
			path := cur.path + "/" + sub.Name()
			if matches(pattern, path) {
				fmt.Println(path + "/")
			}
			queue = append(queue, queued{sub, path})
		}
	}
}

func matches(pattern, path string) bool {
	if pattern == "" {
		return true
	}
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
