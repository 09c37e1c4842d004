// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mkxv6fs formats a fresh disk image for xv6god: it writes the
// superblock, zeroes the log region, and seeds a root directory inode
// (spec §6 "On-disk layout"). It runs before any kernel exists, so it
// talks to the image file directly rather than through the buffer
// cache, log, or inode table those need a running Cpu/Proc to drive.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/xv6go/kernel/internal/fs"
)

func main() {
	var (
		image   = pflag.StringP("image", "i", "xv6go.img", "path of the disk image to create")
		nblocks = pflag.Uint32P("blocks", "b", 2000, "total block count")
		ninodes = pflag.Uint32P("inodes", "n", 200, "inode count")
	)
	pflag.Parse()

	if err := format(*image, *nblocks, *ninodes); err != nil {
		fmt.Fprintf(os.Stderr, "mkxv6fs: %v\n", err)
		os.Exit(1)
	}
}

// layout mirrors fs.Superblock's field order: boot block, superblock,
// log region, inode blocks packed fs.IPB per block, bitmap blocks,
// then data blocks.
type layout struct {
	sb    fs.Superblock
	nmeta uint32 // blocks before the first data block
}

func computeLayout(nblocks, ninodes uint32) layout {
	const nlog = fs.LogMaxOpBlocks*3 + 1

	inodeBlocks := (ninodes + fs.IPB - 1) / fs.IPB
	// Bitmap sizing is self-referential (the bitmap must also cover
	// its own blocks); one pass is enough since BPB >> nmeta in any
	// image size this tool is meant for.
	bmapBlocks := (nblocks + fs.BPB - 1) / fs.BPB
	nmeta := 2 + nlog + inodeBlocks + bmapBlocks // boot + superblock + log + inodes + bitmap

	return layout{
		nmeta: nmeta,
		sb: fs.Superblock{
			Magic:      fs.SuperblockMagic,
			Size:       nblocks,
			NBlocks:    nblocks - nmeta,
			NInodes:    ninodes,
			NLog:       nlog,
			LogStart:   2,
			InodeStart: 2 + nlog,
			BmapStart:  2 + nlog + inodeBlocks,
		},
	}
}

func format(image string, nblocks, ninodes uint32) error {
	if nblocks < 32 {
		return fmt.Errorf("block count %d too small for a usable image", nblocks)
	}
	l := computeLayout(nblocks, ninodes)

	f, err := os.Create(image)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(int64(nblocks) * fs.BSIZE); err != nil {
		return err
	}

	zero := make([]byte, fs.BSIZE)
	for b := uint32(0); b < nblocks; b++ {
		if err := writeBlock(f, b, zero); err != nil {
			return err
		}
	}

	var sbBuf [fs.BSIZE]byte
	l.sb.Marshal(&sbBuf)
	if err := writeBlock(f, 1, sbBuf[:]); err != nil {
		return err
	}

	rootBlock := l.nmeta // first data block, holds "." and ".."
	if err := writeRootInode(f, &l, rootBlock); err != nil {
		return err
	}
	if err := writeRootDirBlock(f, rootBlock); err != nil {
		return err
	}
	// Mark every meta block plus the root directory's one data block
	// allocated so balloc never hands either back out (spec §4.9
	// balloc scans the bitmap from block 0).
	if err := markAllocated(f, &l.sb, l.nmeta+1); err != nil {
		return err
	}

	fmt.Printf("mkxv6fs: %s: %d blocks (%d meta, %d data), %d inodes\n",
		image, nblocks, l.nmeta, l.sb.NBlocks, ninodes)
	return nil
}

func writeBlock(f *os.File, blk uint32, data []byte) error {
	_, err := f.WriteAt(data[:fs.BSIZE], int64(blk)*fs.BSIZE)
	return err
}

func writeRootInode(f *os.File, l *layout, rootBlock uint32) error {
	blk := fs.IBlock(fs.RootIno, &l.sb)
	buf := make([]byte, fs.BSIZE)
	if _, err := f.ReadAt(buf, int64(blk)*fs.BSIZE); err != nil {
		return err
	}

	di := fs.DInode{Type: fs.TypeDir, Nlink: 1, Size: 2 * fs.DirentSize}
	di.Addrs[0] = rootBlock

	off := (fs.RootIno % fs.IPB) * fs.DInodeSize
	di.Marshal(buf[off : off+fs.DInodeSize])
	return writeBlock(f, blk, buf)
}

func writeRootDirBlock(f *os.File, rootBlock uint32) error {
	buf := make([]byte, fs.BSIZE)

	dot := dirent(fs.RootIno, ".")
	dotdot := dirent(fs.RootIno, "..")
	dot.Marshal(buf[0*fs.DirentSize:])
	dotdot.Marshal(buf[1*fs.DirentSize:])
	return writeBlock(f, rootBlock, buf)
}

func dirent(inum uint32, name string) fs.Dirent {
	de := fs.Dirent{Inum: uint16(inum)}
	copy(de.Name[:], name)
	return de
}

// markAllocated sets the bitmap bit for block numbers [0, used).
func markAllocated(f *os.File, sb *fs.Superblock, used uint32) error {
	buf := make([]byte, fs.BSIZE)
	var curBlk uint32
	loaded := false

	flush := func() error {
		if loaded {
			return writeBlock(f, curBlk, buf)
		}
		return nil
	}

	for b := uint32(0); b < used; b++ {
		bblk := fs.BBlock(b, sb)
		if !loaded || bblk != curBlk {
			if err := flush(); err != nil {
				return err
			}
			if _, err := f.ReadAt(buf, int64(bblk)*fs.BSIZE); err != nil {
				return err
			}
			curBlk = bblk
			loaded = true
		}
		bi := b % fs.BPB
		buf[bi/8] |= 1 << (bi % 8)
	}
	return flush()
}
