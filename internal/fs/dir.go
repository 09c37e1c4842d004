// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/kernel"
	"github.com/xv6go/kernel/internal/klog"
)

// Dirlookup implements spec §4.10 dirlookup(dp, name): scan dp's
// directory content for name, returning the referenced inode (via
// Iget, not locked) and the byte offset of its entry. dp must already
// be locked and verified a directory.
func (t *InodeTable) Dirlookup(cp *kernel.Cpu, caller *kernel.Proc, dp *Inode, name string) (*Inode, uint32) {
	if dp.Type != TypeDir {
		klog.Panic("dirlookup: not a directory")
	}
	var de Dirent
	var buf [DirentSize]byte
	for off := uint32(0); off < dp.Size; off += DirentSize {
		n, _ := t.Readi(cp, caller, dp, buf[:], off)
		if n != DirentSize {
			break
		}
		de.Unmarshal(buf[:])
		if de.Inum != 0 && de.nameString() == name {
			return t.Iget(cp, uint32(de.Inum)), off
		}
	}
	return nil, 0
}

// Dirlink implements spec §4.10 dirlink(dp, name, inum): refuse a
// duplicate name, reuse the first free slot, or append (relying on
// Writei to extend dp's size).
func (t *InodeTable) Dirlink(cp *kernel.Cpu, caller *kernel.Proc, dp *Inode, name string, inum uint32) errno.Errno {
	if existing, _ := t.Dirlookup(cp, caller, dp, name); existing != nil {
		t.Iput(cp, caller, existing)
		return errno.Exists
	}

	var de Dirent
	var buf [DirentSize]byte
	off := dp.Size
	for o := uint32(0); o < dp.Size; o += DirentSize {
		n, _ := t.Readi(cp, caller, dp, buf[:], o)
		if n != DirentSize {
			break
		}
		de.Unmarshal(buf[:])
		if de.Inum == 0 {
			off = o
			break
		}
	}

	de = Dirent{Inum: uint16(inum), Name: setName(name)}
	de.Marshal(buf[:])
	if n, _ := t.Writei(cp, caller, dp, buf[:], off); n != DirentSize {
		return errno.NoSpace
	}
	return errno.Ok
}

// DirIsEmpty reports whether dp (a locked directory) has no entries
// besides "." and "..".
func (t *InodeTable) DirIsEmpty(cp *kernel.Cpu, caller *kernel.Proc, dp *Inode) bool {
	var de Dirent
	var buf [DirentSize]byte
	for off := uint32(2 * DirentSize); off < dp.Size; off += DirentSize {
		n, _ := t.Readi(cp, caller, dp, buf[:], off)
		if n != DirentSize {
			break
		}
		de.Unmarshal(buf[:])
		if de.Inum != 0 {
			return false
		}
	}
	return true
}
