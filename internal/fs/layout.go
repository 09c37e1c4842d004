// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fs is the crash-consistent file-system stack of spec §2:
// buffer cache, write-ahead log, inode layer, directory and path
// resolution, and the open-file table, all over a single
// device.BlockDevice.
package fs

import "encoding/binary"

// BSIZE is the fixed block size (spec §3, §6); kept distinct from
// device.BlockSize even though the two are numerically equal, because
// this package's layout math is about the file system's notion of a
// block, not the device's.
const BSIZE = 1024

const (
	// NDIRECT is the count of direct block pointers an inode carries.
	NDIRECT = 12
	// NINDIRECT is the count of block pointers one indirect block holds.
	NINDIRECT = BSIZE / 4
	// MAXFILE is the largest file size in blocks (spec §3).
	MAXFILE = NDIRECT + NINDIRECT

	// NAMELEN is the fixed name length of a directory entry (spec §3).
	NAMELEN = 14

	// IPB is inodes packed per block.
	IPB = BSIZE / DInodeSize
	// BPB is bitmap bits per block.
	BPB = BSIZE * 8

	// LogMaxOpBlocks bounds how many distinct blocks one file-system
	// syscall may log (spec §4.8 "MAX_OP_BLOCKS").
	LogMaxOpBlocks = 10

	// RootIno is the inode number of "/".
	RootIno = 1

	// TypeFree, TypeFile, TypeDir, TypeDevice are the on-disk inode
	// type tags (spec §3: "0 = free; non-zero chosen from {file,
	// directory, device}").
	TypeFree   = 0
	TypeFile   = 1
	TypeDir    = 2
	TypeDevice = 3
)

// DInodeSize is the fixed on-disk footprint of one DInode record: 2
// bytes each of Type/Major/Minor/Nlink, 4 of Size, 4 per direct+1
// indirect pointer.
const DInodeSize = 2*2 + 2 + 2 + 4 + 4*(NDIRECT+1)

// Superblock is the on-disk layout header (spec §3, §6): magic number
// (checked at mount; mismatch is fatal), total block count, data
// block count, inode count, log geometry, and the start blocks of
// each region.
type Superblock struct {
	Magic      uint32
	Size       uint32 // total blocks on this device
	NBlocks    uint32 // data blocks
	NInodes    uint32
	NLog       uint32 // log blocks, including the header
	LogStart   uint32
	InodeStart uint32
	BmapStart  uint32
}

// SuperblockMagic is the expected Magic value; a mismatch at mount is
// fatal (spec §7 "superblock magic mismatch").
const SuperblockMagic = 0x10203040

// Marshal/Unmarshal write and read a Superblock as the first
// SBFieldCount*4 bytes of a block, little-endian, the same fixed-field wire shape as
// the on-disk inode and directory entry below.
const SBFieldCount = 8

func (sb *Superblock) Marshal(buf *[BSIZE]byte) {
	fields := [SBFieldCount]uint32{sb.Magic, sb.Size, sb.NBlocks, sb.NInodes, sb.NLog, sb.LogStart, sb.InodeStart, sb.BmapStart}
	for i, f := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:], f)
	}
}

func (sb *Superblock) Unmarshal(buf *[BSIZE]byte) {
	var fields [SBFieldCount]uint32
	for i := range fields {
		fields[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	sb.Magic, sb.Size, sb.NBlocks, sb.NInodes, sb.NLog = fields[0], fields[1], fields[2], fields[3], fields[4]
	sb.LogStart, sb.InodeStart, sb.BmapStart = fields[5], fields[6], fields[7]
}

// IBlock returns the block number holding inode inum, given the
// superblock's InodeStart.
func IBlock(inum uint32, sb *Superblock) uint32 {
	return inum/IPB + sb.InodeStart
}

// BBlock returns the bitmap block covering data block b.
func BBlock(b uint32, sb *Superblock) uint32 {
	return b/BPB + sb.BmapStart
}

// DInode is the fixed-size on-disk inode record (spec §3, §6): type
// (0 = free), device major/minor, link count, byte size, NDIRECT
// direct block numbers, and one trailing indirect block number.
type DInode struct {
	Type  uint16
	Major uint16
	Minor uint16
	Nlink uint16
	Size  uint32
	Addrs [NDIRECT + 1]uint32
}

func (d *DInode) Marshal(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:], d.Type)
	binary.LittleEndian.PutUint16(buf[2:], d.Major)
	binary.LittleEndian.PutUint16(buf[4:], d.Minor)
	binary.LittleEndian.PutUint16(buf[6:], d.Nlink)
	binary.LittleEndian.PutUint32(buf[8:], d.Size)
	off := 12
	for _, a := range d.Addrs {
		binary.LittleEndian.PutUint32(buf[off:], a)
		off += 4
	}
}

func (d *DInode) Unmarshal(buf []byte) {
	d.Type = binary.LittleEndian.Uint16(buf[0:])
	d.Major = binary.LittleEndian.Uint16(buf[2:])
	d.Minor = binary.LittleEndian.Uint16(buf[4:])
	d.Nlink = binary.LittleEndian.Uint16(buf[6:])
	d.Size = binary.LittleEndian.Uint32(buf[8:])
	off := 12
	for i := range d.Addrs {
		d.Addrs[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
}

// Dirent is one fixed-size directory entry (spec §3, §6): a 16-bit
// inode number (0 marks a free slot) plus a zero-padded fixed-length
// name.
type Dirent struct {
	Inum uint16
	Name [NAMELEN]byte
}

// DirentSize is the on-disk footprint of one Dirent.
const DirentSize = 2 + NAMELEN

func (de *Dirent) Marshal(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:], de.Inum)
	copy(buf[2:], de.Name[:])
}

func (de *Dirent) Unmarshal(buf []byte) {
	de.Inum = binary.LittleEndian.Uint16(buf[0:])
	copy(de.Name[:], buf[2:2+NAMELEN])
}

func (de *Dirent) nameString() string {
	n := 0
	for n < NAMELEN && de.Name[n] != 0 {
		n++
	}
	return string(de.Name[:n])
}

func setName(name string) [NAMELEN]byte {
	var b [NAMELEN]byte
	copy(b[:], name)
	return b
}

// Stat is the payload shape of spec §6 stat/fstat: conventional xv6
// fields, named concretely here since spec.md only names the syscall
// (SPEC_FULL §4 supplement).
type Stat struct {
	Dev   uint32
	Ino   uint32
	Type  uint16
	Nlink uint16
	Size  uint64
}

// StatSize is the marshaled wire size of Stat.
const StatSize = 4 + 4 + 2 + 2 + 8

// Marshal writes st to buf in the fixed field order above.
func (st *Stat) Marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], st.Dev)
	binary.LittleEndian.PutUint32(buf[4:], st.Ino)
	binary.LittleEndian.PutUint16(buf[8:], st.Type)
	binary.LittleEndian.PutUint16(buf[10:], st.Nlink)
	binary.LittleEndian.PutUint64(buf[12:], st.Size)
}
