// Command mkdisk builds a flat disk image for this kernel's in-memory
// filesystem (spec.md section 6 names a real filesystem an external
// collaborator, out of this kernel's own scope): a fixed-size directory
// table at offset 0 followed by a data region, written
// with raw Pwrite/Ftruncate the way the teacher's mkfs builds a disk
// image ahead of boot (biscuit mkfs/mkfs.go drives ufs.MkDisk the same
// way: truncate to size, then write structures at fixed offsets).
// Unlike the teacher's inode/log-structured ufs, this image only needs
// to satisfy fs.MemFS.Put (a flat path->bytes map), so the layout is
// correspondingly simpler: one directory entry per file, then each
// file's bytes back to back in the data region.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"kernelcore/util"
)

// BSIZE matches the teacher's block granularity (biscuit fs.BSIZE); the
// data region starts at the first BSIZE boundary after the directory
// table.
const BSIZE = 512

// MaxFiles bounds the directory table the same way proc.MaxProcs bounds
// the process table: a fixed-capacity array, not a growable structure.
const MaxFiles = 256

// dirEntrySize is the serialized size of one directory entry: a
// 60-byte name, a uint32 offset, and a uint32 length.
const dirEntrySize = 60 + 4 + 4

func usage() {
	fmt.Fprintf(os.Stderr, "usage: mkdisk <output image> <skel dir>\n")
	os.Exit(1)
}

func main() {
	if len(os.Args) != 3 {
		usage()
	}
	image, skelDir := os.Args[1], os.Args[2]

	var names []string
	var payloads [][]byte
	err := filepath.WalkDir(skelDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(skelDir, path)
		if rerr != nil {
			return rerr
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		names = append(names, rel)
		payloads = append(payloads, data)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkdisk: %v\n", err)
		os.Exit(1)
	}
	if len(names) > MaxFiles {
		fmt.Fprintf(os.Stderr, "mkdisk: %d files exceeds MaxFiles (%d)\n", len(names), MaxFiles)
		os.Exit(1)
	}

	dirTableSize := int64(MaxFiles * dirEntrySize)
	dataStart := util.Roundup(dirTableSize, int64(BSIZE))

	fd, err := unix.Open(image, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkdisk: open: %v\n", err)
		os.Exit(1)
	}
	defer unix.Close(fd)

	total := dataStart
	for _, p := range payloads {
		total += int64(len(p))
	}
	if err := unix.Ftruncate(fd, total); err != nil {
		fmt.Fprintf(os.Stderr, "mkdisk: ftruncate: %v\n", err)
		os.Exit(1)
	}

	offset := dataStart
	for i, name := range names {
		entry := make([]byte, dirEntrySize)
		copy(entry[:60], name)
		binary.LittleEndian.PutUint32(entry[60:64], uint32(offset))
		binary.LittleEndian.PutUint32(entry[64:68], uint32(len(payloads[i])))
		if _, err := unix.Pwrite(fd, entry, int64(i*dirEntrySize)); err != nil {
			fmt.Fprintf(os.Stderr, "mkdisk: pwrite dirent: %v\n", err)
			os.Exit(1)
		}
		if _, err := unix.Pwrite(fd, payloads[i], offset); err != nil {
			fmt.Fprintf(os.Stderr, "mkdisk: pwrite data: %v\n", err)
			os.Exit(1)
		}
		offset += int64(len(payloads[i]))
	}

	fmt.Printf("mkdisk: wrote %d files, %d bytes to %s\n", len(names), total, image)
}
