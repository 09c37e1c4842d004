// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/kernel"
	"github.com/xv6go/kernel/internal/klog"
)

// Open flags (SPEC_FULL §4 supplement: spec.md names open() but not
// its flag bits), the conventional xv6 set.
const (
	ORdOnly = iota
	OWrOnly
	ORdWr
	OCreate = 0x200
)

// create is the shared implementation behind Open(OCreate), Mkdir,
// and Mknod (modeled on xv6's sysfile.c create()): resolve path's
// parent, refuse an existing entry of the wrong type, allocate a
// fresh inode of typ, link it into the parent, and seed "."/".." for
// directories. Caller must already be inside a log transaction.
func (fsys *FS) create(cp *kernel.Cpu, caller *kernel.Proc, path string, typ uint16, major, minor uint16) (*Inode, errno.Errno) {
	dp, name, err := fsys.Inodes.NameiParent(cp, caller, path)
	if err != errno.Ok {
		return nil, err
	}
	fsys.Inodes.Ilock(cp, caller, dp)

	if ip, _ := fsys.Inodes.Dirlookup(cp, caller, dp, name); ip != nil {
		fsys.Inodes.Iunlock(cp, dp)
		fsys.Inodes.Iput(cp, caller, dp)
		fsys.Inodes.Ilock(cp, caller, ip)
		if typ == TypeFile && ip.Type == TypeFile {
			return ip, errno.Ok
		}
		fsys.Inodes.Iunlock(cp, ip)
		fsys.Inodes.Iput(cp, caller, ip)
		return nil, errno.Exists
	}

	ip, err := fsys.Inodes.Ialloc(cp, caller, typ)
	if err != errno.Ok {
		fsys.Inodes.Iunlock(cp, dp)
		fsys.Inodes.Iput(cp, caller, dp)
		return nil, err
	}
	fsys.Inodes.Ilock(cp, caller, ip)
	ip.Major, ip.Minor, ip.Nlink = major, minor, 1
	fsys.Inodes.Iupdate(cp, caller, ip)

	if typ == TypeDir {
		dp.Nlink++
		fsys.Inodes.Iupdate(cp, caller, dp)
		if e := fsys.Inodes.Dirlink(cp, caller, ip, ".", ip.Inum); e != errno.Ok {
			goto fail
		}
		if e := fsys.Inodes.Dirlink(cp, caller, ip, "..", dp.Inum); e != errno.Ok {
			goto fail
		}
	}
	if e := fsys.Inodes.Dirlink(cp, caller, dp, name, ip.Inum); e != errno.Ok {
		goto fail
	}

	fsys.Inodes.Iunlock(cp, dp)
	fsys.Inodes.Iput(cp, caller, dp)
	return ip, errno.Ok

fail:
	ip.Nlink = 0
	fsys.Inodes.Iupdate(cp, caller, ip)
	fsys.Inodes.Iunlock(cp, ip)
	fsys.Inodes.Iput(cp, caller, ip)
	fsys.Inodes.Iunlock(cp, dp)
	fsys.Inodes.Iput(cp, caller, dp)
	return nil, errno.NoSpace
}

// Open implements spec §6 open(): resolve path (creating it first if
// OCreate is set), verify a directory is only ever opened read-only,
// and return a ready *File.
func (fsys *FS) Open(cp *kernel.Cpu, caller *kernel.Proc, path string, flags int) (*File, errno.Errno) {
	var ip *Inode
	var err errno.Errno

	if flags&OCreate != 0 {
		fsys.Log.BeginOp(cp, caller)
		ip, err = fsys.create(cp, caller, path, TypeFile, 0, 0)
		fsys.Log.EndOp(cp, caller)
		if err != errno.Ok {
			return nil, err
		}
	} else {
		ip, err = fsys.Inodes.Namei(cp, caller, path)
		if err != errno.Ok {
			return nil, err
		}
		fsys.Inodes.Ilock(cp, caller, ip)
		if ip.Type == TypeDir && flags != ORdOnly {
			fsys.Inodes.Iunlock(cp, ip)
			fsys.Inodes.Iput(cp, caller, ip)
			return nil, errno.NotADirectory
		}
	}

	kind := KindInode
	major := uint16(0)
	if ip.Type == TypeDevice {
		kind = KindDevice
		major = ip.Major
	}
	accessMode := flags &^ OCreate
	f := &File{
		kind: kind, ip: ip, major: major, fsys: fsys, ref: 1,
		readable: accessMode == ORdOnly || accessMode == ORdWr,
		writable: accessMode == OWrOnly || accessMode == ORdWr,
	}
	fsys.Inodes.Iunlock(cp, ip)
	return f, errno.Ok
}

// Mkdir implements spec §6 mkdir().
func (fsys *FS) Mkdir(cp *kernel.Cpu, caller *kernel.Proc, path string) errno.Errno {
	fsys.Log.BeginOp(cp, caller)
	defer fsys.Log.EndOp(cp, caller)
	ip, err := fsys.create(cp, caller, path, TypeDir, 0, 0)
	if err != errno.Ok {
		return err
	}
	fsys.Inodes.IunlockPut(cp, caller, ip)
	return errno.Ok
}

// Mknod implements spec §6 mknod(): create a device-type inode
// carrying major/minor (SPEC_FULL §4 supplement).
func (fsys *FS) Mknod(cp *kernel.Cpu, caller *kernel.Proc, path string, major, minor uint16) errno.Errno {
	fsys.Log.BeginOp(cp, caller)
	defer fsys.Log.EndOp(cp, caller)
	ip, err := fsys.create(cp, caller, path, TypeDevice, major, minor)
	if err != errno.Ok {
		return err
	}
	fsys.Inodes.IunlockPut(cp, caller, ip)
	return errno.Ok
}

// Link implements spec §6 link(old, new): bump old's nlink, link new
// into its parent directory; on failure, nlink is restored (spec §8
// "link(a, b); unlink(a); read(b)" round-trip depends on this).
func (fsys *FS) Link(cp *kernel.Cpu, caller *kernel.Proc, oldpath, newpath string) errno.Errno {
	fsys.Log.BeginOp(cp, caller)
	defer fsys.Log.EndOp(cp, caller)

	ip, err := fsys.Inodes.Namei(cp, caller, oldpath)
	if err != errno.Ok {
		return err
	}
	fsys.Inodes.Ilock(cp, caller, ip)
	if ip.Type == TypeDir {
		fsys.Inodes.IunlockPut(cp, caller, ip)
		return errno.NotADirectory
	}
	ip.Nlink++
	fsys.Inodes.Iupdate(cp, caller, ip)
	fsys.Inodes.Iunlock(cp, ip)

	dp, name, err := fsys.Inodes.NameiParent(cp, caller, newpath)
	if err != errno.Ok {
		fsys.undoLink(cp, caller, ip)
		return err
	}
	fsys.Inodes.Ilock(cp, caller, dp)
	if dp.Inum == ip.Inum || fsys.Inodes.Dirlink(cp, caller, dp, name, ip.Inum) != errno.Ok {
		fsys.Inodes.IunlockPut(cp, caller, dp)
		fsys.undoLink(cp, caller, ip)
		return errno.Exists
	}
	fsys.Inodes.IunlockPut(cp, caller, dp)
	fsys.Inodes.Iput(cp, caller, ip)
	return errno.Ok
}

func (fsys *FS) undoLink(cp *kernel.Cpu, caller *kernel.Proc, ip *Inode) {
	fsys.Inodes.Ilock(cp, caller, ip)
	ip.Nlink--
	fsys.Inodes.Iupdate(cp, caller, ip)
	fsys.Inodes.IunlockPut(cp, caller, ip)
}

// Unlink implements spec §6 unlink(): remove the directory entry and
// drop the target's nlink; the inode itself is only actually freed
// once its last reference is Iput (spec §4.9), so a process with it
// still open or another hard link keeps it alive (spec §8 scenario 6
// "aliased-path deadlock absence").
func (fsys *FS) Unlink(cp *kernel.Cpu, caller *kernel.Proc, path string) errno.Errno {
	fsys.Log.BeginOp(cp, caller)
	defer fsys.Log.EndOp(cp, caller)

	dp, name, err := fsys.Inodes.NameiParent(cp, caller, path)
	if err != errno.Ok {
		return err
	}
	fsys.Inodes.Ilock(cp, caller, dp)

	if name == "." || name == ".." {
		fsys.Inodes.IunlockPut(cp, caller, dp)
		return errno.Exists
	}
	ip, off := fsys.Inodes.Dirlookup(cp, caller, dp, name)
	if ip == nil {
		fsys.Inodes.IunlockPut(cp, caller, dp)
		return errno.NoSuchFile
	}
	fsys.Inodes.Ilock(cp, caller, ip)
	if ip.Nlink < 1 {
		klog.Panic("unlink: nlink < 1")
	}
	if ip.Type == TypeDir && !fsys.Inodes.DirIsEmpty(cp, caller, ip) {
		fsys.Inodes.IunlockPut(cp, caller, ip)
		fsys.Inodes.IunlockPut(cp, caller, dp)
		return errno.Exists
	}

	var zero [DirentSize]byte
	fsys.Inodes.Writei(cp, caller, dp, zero[:], off)
	if ip.Type == TypeDir {
		dp.Nlink--
		fsys.Inodes.Iupdate(cp, caller, dp)
	}
	fsys.Inodes.IunlockPut(cp, caller, dp)

	ip.Nlink--
	fsys.Inodes.Iupdate(cp, caller, ip)
	fsys.Inodes.IunlockPut(cp, caller, ip)
	return errno.Ok
}

// Chdir resolves path to a directory inode, suitable for installing
// as the caller's cwd (spec §6 chdir()); the syscall layer is
// responsible for releasing the previous cwd.
func (fsys *FS) Chdir(cp *kernel.Cpu, caller *kernel.Proc, path string) (*Inode, errno.Errno) {
	ip, err := fsys.Inodes.Namei(cp, caller, path)
	if err != errno.Ok {
		return nil, err
	}
	fsys.Inodes.Ilock(cp, caller, ip)
	if ip.Type != TypeDir {
		fsys.Inodes.IunlockPut(cp, caller, ip)
		return nil, errno.NotADirectory
	}
	fsys.Inodes.Iunlock(cp, ip)
	return ip, errno.Ok
}

// OpenPipe creates a connected pair of pipe-backed Files (spec §3
// "Open-file object" variant pipe).
func (fsys *FS) OpenPipe() (read, write *File) {
	p := NewPipe()
	return &File{kind: KindPipe, pipe: p, readable: true, ref: 1, fsys: fsys},
		&File{kind: KindPipe, pipe: p, writable: true, ref: 1, fsys: fsys}
}
