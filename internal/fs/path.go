// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"strings"

	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/kernel"
)

// skipelem strips one leading path component from path, returning the
// component, the remaining path (with duplicate slashes collapsed),
// and false once nothing is left to strip.
func skipelem(path string) (elem, rest string, ok bool) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return "", "", false
	}
	i := strings.IndexByte(path, '/')
	if i < 0 {
		return path, "", true
	}
	return path[:i], strings.TrimLeft(path[i:], "/"), true
}

// namex implements spec §4.10 namex(path, want_parent, out_name):
// walk path one component at a time starting from root (absolute) or
// the caller's cwd (relative), holding at most one inode sleep lock
// at a time. The current directory is released only after the next
// reference is obtained but before it is locked, which is what
// prevents the aliased-path deadlock (spec §4.10).
func (t *InodeTable) namex(cp *kernel.Cpu, caller *kernel.Proc, path string, wantParent bool) (*Inode, string, errno.Errno) {
	var ip *Inode
	if strings.HasPrefix(path, "/") {
		ip = t.Iget(cp, RootIno)
	} else if cwd, ok := caller.Cwd().(*Inode); ok && cwd != nil {
		ip = t.Idup(cp, cwd)
	} else {
		ip = t.Iget(cp, RootIno)
	}

	rest := path
	for {
		elem, next, ok := skipelem(rest)
		if !ok {
			break
		}
		rest = next

		t.Ilock(cp, caller, ip)
		if ip.Type != TypeDir {
			t.IunlockPut(cp, caller, ip)
			return nil, "", errno.NotADirectory
		}
		if wantParent && rest == "" {
			t.Iunlock(cp, ip)
			return ip, elem, errno.Ok
		}
		child, _ := t.Dirlookup(cp, caller, ip, elem)
		if child == nil {
			t.IunlockPut(cp, caller, ip)
			return nil, "", errno.NoSuchFile
		}
		t.IunlockPut(cp, caller, ip)
		ip = child
	}

	if wantParent {
		t.Iput(cp, caller, ip)
		return nil, "", errno.NoSuchFile
	}
	return ip, "", errno.Ok
}

// Namei resolves path to its inode (unlocked, referenced).
func (t *InodeTable) Namei(cp *kernel.Cpu, caller *kernel.Proc, path string) (*Inode, errno.Errno) {
	ip, _, err := t.namex(cp, caller, path, false)
	return ip, err
}

// NameiParent resolves path's parent directory (unlocked, referenced)
// and returns the final component's name.
func (t *InodeTable) NameiParent(cp *kernel.Cpu, caller *kernel.Proc, path string) (*Inode, string, errno.Errno) {
	return t.namex(cp, caller, path, true)
}
