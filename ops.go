// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package regionfs

import (
	"os"
	"time"

	"github.com/jacobsa/timeutil"
)

// FS is the operation surface from spec.md §4.5: one method per host-facing
// filesystem call. It carries no region - every method takes the region
// it should operate on as its first argument - so a single FS value (or the
// zero value) can serve any number of regions, sequentially, exactly as the
// host's external lock requires.
type FS struct {
	// Clock stamps inode timestamps. A nil Clock behaves as
	// timeutil.RealClock().
	Clock timeutil.Clock
}

// NewFS returns an FS that stamps timestamps with clock. Passing a nil
// clock is equivalent to timeutil.RealClock(); tests inject a
// timeutil.SimulatedClock to make timestamp assertions deterministic, the
// same way samples/memfs's test suite drives its clock.
func NewFS(clock timeutil.Clock) *FS {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	return &FS{Clock: clock}
}

func (f *FS) bind(region []byte) (*Handle, Errno) {
	return bind(region, f.Clock)
}

// Attr is the getattr result: a stat-like summary of one inode.
type Attr struct {
	Mode  os.FileMode
	Nlink uint32
	Size  uint64
	Atime time.Time
	Mtime time.Time
	Uid   uint32
	Gid   uint32
}

// StatFS is the statfs result.
type StatFS struct {
	BlockSize  uint64
	Blocks     uint64
	BlocksFree uint64
	NameMax    uint64
}

// requirePath rejects any path not beginning with '/' before an operation
// does anything else (spec.md §4.5: "All paths must begin with '/'").
func requirePath(path string) Errno {
	if len(path) == 0 || path[0] != '/' {
		return EINVAL
	}
	return errnoNone
}

// Getattr implements the getattr operation.
func (f *FS) Getattr(region []byte, path string, uid, gid uint32) (Attr, Errno) {
	if errno := requirePath(path); errno != errnoNone {
		return Attr{}, errno
	}
	h, errno := f.bind(region)
	if errno != errnoNone {
		return Attr{}, errno
	}

	off, errno := h.resolve(path)
	if errno != errnoNone {
		return Attr{}, ENOENT
	}

	in := getRawInode(h.Region, off)
	mode := os.FileMode(0755)
	nlink := uint32(1)
	if in.isDir {
		mode |= os.ModeDir
		nlink = uint32(in.childCount) + 2
	}

	return Attr{
		Mode:  mode,
		Nlink: nlink,
		Size:  in.payloadSize,
		Atime: inodeATime(in),
		Mtime: inodeMTime(in),
		Uid:   uid,
		Gid:   gid,
	}, errnoNone
}

// Readdir implements the readdir operation, returning child names
// (excluding "." and "..") in on-disk order.
func (f *FS) Readdir(region []byte, path string) ([]string, Errno) {
	if errno := requirePath(path); errno != errnoNone {
		return nil, errno
	}
	h, errno := f.bind(region)
	if errno != errnoNone {
		return nil, errno
	}

	off, errno := h.resolve(path)
	if errno != errnoNone {
		return nil, ENOENT
	}

	in := getRawInode(h.Region, off)
	if !in.isDir {
		return nil, ENOTDIR
	}

	payload, errno := h.readPayload(off)
	if errno != errnoNone {
		return nil, EINVAL
	}

	return listChildNames(payload), errnoNone
}

// Mknod implements the mknod operation: create an empty regular file.
func (f *FS) Mknod(region []byte, path string) Errno {
	if errno := requirePath(path); errno != errnoNone {
		return errno
	}
	h, errno := f.bind(region)
	if errno != errnoNone {
		return errno
	}

	parentPath, name, ok := splitParentChild(path)
	if !ok {
		return EINVAL
	}
	parentOff, errno := h.resolve(parentPath)
	if errno != errnoNone {
		return ENOENT
	}

	_, errno = h.fileNew(parentOff, name)
	return remapNotDir(errno)
}

// Unlink implements the unlink operation: remove a regular file.
func (f *FS) Unlink(region []byte, path string) Errno {
	if errno := requirePath(path); errno != errnoNone {
		return errno
	}
	h, errno := f.bind(region)
	if errno != errnoNone {
		return errno
	}

	parentPath, name, ok := splitParentChild(path)
	if !ok {
		return ENOENT // unlinking "/" itself
	}
	parentOff, errno := h.resolve(parentPath)
	if errno != errnoNone {
		return ENOENT
	}
	childOff, errno := h.lookupChild(parentOff, name)
	if errno != errnoNone {
		return ENOENT
	}

	child := getRawInode(h.Region, childOff)
	if child.isDir {
		return EINVAL
	}

	return h.childRemove(parentOff, name, childOff)
}

// Mkdir implements the mkdir operation: create an empty directory.
func (f *FS) Mkdir(region []byte, path string) Errno {
	if errno := requirePath(path); errno != errnoNone {
		return errno
	}
	h, errno := f.bind(region)
	if errno != errnoNone {
		return errno
	}

	parentPath, name, ok := splitParentChild(path)
	if !ok {
		return EINVAL
	}
	parentOff, errno := h.resolve(parentPath)
	if errno != errnoNone {
		return ENOENT
	}

	_, errno = h.dirNew(parentOff, name)
	return remapNotDir(errno)
}

// Rmdir implements the rmdir operation: remove an empty directory. The
// root directory can never be removed - it has no parent to splice it
// from, so splitParentChild("/") already fails.
func (f *FS) Rmdir(region []byte, path string) Errno {
	if errno := requirePath(path); errno != errnoNone {
		return errno
	}
	h, errno := f.bind(region)
	if errno != errnoNone {
		return errno
	}

	parentPath, name, ok := splitParentChild(path)
	if !ok {
		return EINVAL
	}
	parentOff, errno := h.resolve(parentPath)
	if errno != errnoNone {
		return ENOENT
	}
	childOff, errno := h.lookupChild(parentOff, name)
	if errno != errnoNone {
		return ENOENT
	}

	child := getRawInode(h.Region, childOff)
	if !child.isDir {
		return EINVAL
	}
	if child.payloadSize > 0 {
		return ENOTEMPTY
	}

	return h.childRemove(parentOff, name, childOff)
}

// Rename implements the rename operation, including the empty-directory
// replacement and regular-file overwrite semantics of spec.md §4.5. All
// precondition failures collapse to EINVAL, matching the reference's
// single documented failure mode for this operation. The overwrite case is
// made atomic at the granularity of "from" disappearing: the replacement
// data is fully installed under "to" before "from" is spliced out of its
// parent and its old inode freed, so a failure partway through never
// leaves both names resolving to the same inode, nor neither.
func (f *FS) Rename(region []byte, from, to string) Errno {
	if errno := requirePath(from); errno != errnoNone {
		return errno
	}
	if errno := requirePath(to); errno != errnoNone {
		return errno
	}
	if from == to {
		return errnoNone
	}

	h, errno := f.bind(region)
	if errno != errnoNone {
		return errno
	}

	fromParentPath, fromName, ok := splitParentChild(from)
	if !ok {
		return EINVAL
	}
	toParentPath, toName, ok := splitParentChild(to)
	if !ok {
		return EINVAL
	}

	fromParentOff, errno := h.resolve(fromParentPath)
	if errno != errnoNone {
		return EINVAL
	}
	fromChildOff, errno := h.lookupChild(fromParentOff, fromName)
	if errno != errnoNone {
		return EINVAL
	}
	toParentOff, errno := h.resolve(toParentPath)
	if errno != errnoNone {
		return EINVAL
	}

	fromChild := getRawInode(h.Region, fromChildOff)
	data, errno := h.readPayload(fromChildOff)
	if errno != errnoNone {
		return EINVAL
	}

	toChildOff, lookupErrno := h.lookupChild(toParentOff, toName)
	toExists := lookupErrno == errnoNone
	var toChild rawInode
	if toExists {
		toChild = getRawInode(h.Region, toChildOff)
	}

	if fromChild.isDir {
		switch {
		case !toExists:
			newOff, errno := h.dirNew(toParentOff, toName)
			if errno != errnoNone {
				return EINVAL
			}
			if errno := h.writePayload(newOff, data); errno != errnoNone {
				return EINVAL
			}
			moved := getRawInode(h.Region, newOff)
			moved.childCount = fromChild.childCount
			setRawInode(h.Region, newOff, moved)
		case toChild.isDir && toChild.payloadSize == 0:
			if errno := h.writePayload(toChildOff, data); errno != errnoNone {
				return EINVAL
			}
			moved := getRawInode(h.Region, toChildOff)
			moved.childCount = fromChild.childCount
			setRawInode(h.Region, toChildOff, moved)
		default:
			return EINVAL
		}
	} else {
		if toExists && toChild.isDir {
			return EINVAL
		}
		if toExists {
			if errno := h.writePayload(toChildOff, data); errno != errnoNone {
				return EINVAL
			}
		} else {
			newOff, errno := h.fileNew(toParentOff, toName)
			if errno != errnoNone {
				return EINVAL
			}
			if errno := h.writePayload(newOff, data); errno != errnoNone {
				return EINVAL
			}
		}
	}

	return h.childRemove(fromParentOff, fromName, fromChildOff)
}

// Truncate implements the truncate operation: grow with zero padding or
// shrink by discarding the tail.
func (f *FS) Truncate(region []byte, path string, newSize uint64) Errno {
	if errno := requirePath(path); errno != errnoNone {
		return errno
	}
	h, errno := f.bind(region)
	if errno != errnoNone {
		return errno
	}

	off, errno := h.resolve(path)
	if errno != errnoNone {
		return ENOENT
	}

	payload, errno := h.readPayload(off)
	if errno != errnoNone {
		return errno
	}

	switch {
	case uint64(len(payload)) == newSize:
		return errnoNone
	case newSize > uint64(len(payload)):
		grown := make([]byte, newSize)
		copy(grown, payload)
		return h.writePayload(off, grown)
	default:
		return h.writePayload(off, payload[:newSize])
	}
}

// Open implements the open operation: verify the path resolves and nothing
// more.
func (f *FS) Open(region []byte, path string) Errno {
	if errno := requirePath(path); errno != errnoNone {
		return errno
	}
	h, errno := f.bind(region)
	if errno != errnoNone {
		return errno
	}

	if _, errno := h.resolve(path); errno != errnoNone {
		return ENOENT
	}
	return errnoNone
}

// Read implements the read operation: copy payload[offset:offset+size)
// into buf.
func (f *FS) Read(region []byte, path string, buf []byte, size int, off int64) (int, Errno) {
	if errno := requirePath(path); errno != errnoNone {
		return 0, errno
	}
	h, errno := f.bind(region)
	if errno != errnoNone {
		return 0, errno
	}

	inodeOff, errno := h.resolve(path)
	if errno != errnoNone {
		return 0, ENOENT
	}

	payload, errno := h.readPayload(inodeOff)
	if errno != errnoNone {
		return 0, errno
	}

	if off < 0 || uint64(off) > uint64(len(payload)) {
		return 0, EFBIG
	}
	if uint64(off) == uint64(len(payload)) {
		h.touchAtime(inodeOff)
		return 0, errnoNone
	}

	n := copy(buf[:size], payload[off:])
	h.touchAtime(inodeOff)
	return n, errnoNone
}

// Write implements the write operation: offset 0 replaces the payload
// wholesale; any other offset keeps payload[0:offset) and appends
// buf[0:size) after it.
func (f *FS) Write(region []byte, path string, buf []byte, size int, off int64) (int, Errno) {
	if errno := requirePath(path); errno != errnoNone {
		return 0, errno
	}
	h, errno := f.bind(region)
	if errno != errnoNone {
		return 0, errno
	}

	inodeOff, errno := h.resolve(path)
	if errno != errnoNone {
		return 0, ENOENT
	}

	payload, errno := h.readPayload(inodeOff)
	if errno != errnoNone {
		return 0, errno
	}

	if off < 0 || uint64(off) > uint64(len(payload)) {
		return 0, EFBIG
	}

	var newPayload []byte
	if off == 0 {
		newPayload = append([]byte{}, buf[:size]...)
	} else {
		newPayload = make([]byte, 0, int(off)+size)
		newPayload = append(newPayload, payload[:off]...)
		newPayload = append(newPayload, buf[:size]...)
	}

	if errno := h.writePayload(inodeOff, newPayload); errno != errnoNone {
		return 0, errno
	}
	return size, errnoNone
}

// Utimens implements the utimens operation. A nil atime or mtime leaves
// that field unchanged, matching the original implementation's
// independently-nil-checked timespec arguments (recovered from
// original_source/implementation.c's myfs_utimens - spec.md's distillation
// doesn't call this detail out, but nothing in it contradicts doing so).
func (f *FS) Utimens(region []byte, path string, atime, mtime *time.Time) Errno {
	if errno := requirePath(path); errno != errnoNone {
		return errno
	}
	h, errno := f.bind(region)
	if errno != errnoNone {
		return errno
	}

	off, errno := h.resolve(path)
	if errno != errnoNone {
		return ENOENT
	}

	in := getRawInode(h.Region, off)
	if atime != nil {
		in.atimeSec, in.atimeNsec = atime.Unix(), int64(atime.Nanosecond())
	}
	if mtime != nil {
		in.mtimeSec, in.mtimeNsec = mtime.Unix(), int64(mtime.Nanosecond())
	}
	setRawInode(h.Region, off, in)

	return errnoNone
}

// Statfs implements the statfs operation. Unlike the reference this spec
// was distilled from (which reports f_blocks as zero while reporting
// f_bfree truthfully - spec.md §9 calls this out as inconsistent), this
// reports the true total block count.
func (f *FS) Statfs(region []byte) (StatFS, Errno) {
	h, errno := f.bind(region)
	if errno != errnoNone {
		return StatFS{}, errno
	}

	return StatFS{
		BlockSize:  payloadCapacity,
		Blocks:     h.numBlocks,
		BlocksFree: h.countFreeBlocks(),
		NameMax:    NameMax,
	}, errnoNone
}

// remapNotDir narrows an internal ENOTDIR (the parent of a create
// operation turned out to be a file) to the EINVAL the operation table
// documents for mknod/mkdir; ENOTDIR is reserved for readdir.
func remapNotDir(errno Errno) Errno {
	if errno == ENOTDIR {
		return EINVAL
	}
	return errno
}
