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

// Package main hosts regionfs behind a FUSE mount, the way samples/memfs
// hosts an in-memory tree. regionfs.FS is path-addressed and does no locking
// of its own; this file's job is entirely the translation between FUSE's
// inode-ID view of the world and regionfs's path view, plus the external
// serialization regionfs expects its host to provide.
package main

import (
	"os"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"

	"github.com/jacobsa/regionfs"
)

// pathTable assigns stable fuseops.InodeID values to the paths regionfs
// knows about. The kernel only ever gives us inode IDs it has previously
// been handed by LookUpInode/MkDir/CreateFile, and ForgetInode tells us when
// it is safe to recycle one - same contract samples/memfs implements with
// its slice of inodes, except we key on path instead of holding the inode's
// state ourselves.
type pathTable struct {
	mu      sync.Mutex
	byID    map[fuseops.InodeID]string
	byPath  map[string]fuseops.InodeID
	nextID  fuseops.InodeID
	refs    map[fuseops.InodeID]uint64
}

func newPathTable() *pathTable {
	t := &pathTable{
		byID:   make(map[fuseops.InodeID]string),
		byPath: make(map[string]fuseops.InodeID),
		refs:   make(map[fuseops.InodeID]uint64),
		nextID: fuseops.RootInodeID + 1,
	}
	t.byID[fuseops.RootInodeID] = "/"
	t.byPath["/"] = fuseops.RootInodeID
	t.refs[fuseops.RootInodeID] = 1
	return t
}

// idFor returns the inode ID for p and bumps its lookup count, minting a
// new ID with a count of one if p has not been seen before (or was
// previously forgotten).
func (t *pathTable) idFor(p string) fuseops.InodeID {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.byPath[p]; ok {
		t.refs[id]++
		return id
	}

	id := t.nextID
	t.nextID++
	t.byID[id] = p
	t.byPath[p] = id
	t.refs[id] = 1
	return id
}

func (t *pathTable) pathOf(id fuseops.InodeID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byID[id]
	return p, ok
}

// forget drops n references to id, freeing the slot entirely once the count
// reaches zero, mirroring ForgetInodeOp's kernel-guarantee semantics.
func (t *pathTable) forget(id fuseops.InodeID, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.refs[id] <= n {
		p := t.byID[id]
		delete(t.byID, id)
		delete(t.byPath, p)
		delete(t.refs, id)
		return
	}
	t.refs[id] -= n
}

// repath updates the table after a rename, so a cached inode ID keeps
// pointing at the same file instead of silently going stale.
func (t *pathTable) repath(from, to string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byPath[from]
	if !ok {
		return
	}
	delete(t.byPath, from)
	t.byPath[to] = id
	t.byID[id] = to
}

// regionFileSystem adapts a *regionfs.FS bound to a single memory-mapped
// region into a fuseutil.FileSystem. It embeds NotImplementedFileSystem for
// CreateSymlink, matching the data model's refusal to represent symlinks.
type regionFileSystem struct {
	fuseutil.NotImplementedFileSystem

	fs     *regionfs.FS
	region []byte
	uid    uint32
	gid    uint32

	paths *pathTable

	// mu serializes every region-touching op. regionfs.FS does no locking of
	// its own by design (see regionfs.CheckRegionInvariants's doc comment);
	// the kernel dispatches FUSE callbacks concurrently, so this package is
	// the single writer regionfs expects. Modeled on samples/memfs's
	// syncutil.InvariantMutex, with the actual invariant walk delegated to
	// regionfs.CheckRegionInvariants.
	mu syncutil.InvariantMutex

	checkInvariants bool
}

func newRegionFileSystem(fs *regionfs.FS, region []byte, uid, gid uint32, checkInvariants bool) *regionFileSystem {
	rfs := &regionFileSystem{
		fs:              fs,
		region:          region,
		uid:             uid,
		gid:             gid,
		paths:           newPathTable(),
		checkInvariants: checkInvariants,
	}
	rfs.mu = syncutil.NewInvariantMutex(rfs.checkRegionInvariants)
	return rfs
}

func (fs *regionFileSystem) checkRegionInvariants() {
	if !fs.checkInvariants {
		return
	}
	if err := regionfs.CheckRegionInvariants(fs.region); err != nil {
		panic(err)
	}
}

func join(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// toError maps a regionfs.Errno onto the errno FUSE/the kernel expects back.
// fuse.ENOENT/ENOTEMPTY are reused where this package's fuse dependency
// already names them; everything else is handed back as a bare
// syscall.Errno, which satisfies the same error contract.
func toError(e regionfs.Errno) error {
	switch e {
	case regionfs.Success:
		return nil
	case regionfs.ENOENT:
		return fuse.ENOENT
	case regionfs.ENOTEMPTY:
		return fuse.ENOTEMPTY
	case regionfs.EEXIST:
		return syscall.EEXIST
	case regionfs.EINVAL:
		return syscall.EINVAL
	case regionfs.ENOTDIR:
		return syscall.ENOTDIR
	case regionfs.EFBIG:
		return syscall.EFBIG
	case regionfs.ENOSPC:
		return syscall.ENOSPC
	case regionfs.EFAULT:
		return syscall.EFAULT
	default:
		return fuse.EIO
	}
}

func (fs *regionFileSystem) attrToFuse(a regionfs.Attr) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   a.Size,
		Nlink:  uint64(a.Nlink),
		Mode:   a.Mode,
		Atime:  a.Atime,
		Mtime:  a.Mtime,
		Ctime:  a.Mtime,
		Uid:    a.Uid,
		Gid:    a.Gid,
	}
}

func (fs *regionFileSystem) Init(op *fuseops.InitOp) {
	op.Respond(nil)
}

func (fs *regionFileSystem) lookupEntry(childPath string) (fuseops.ChildInodeEntry, regionfs.Errno) {
	attr, errno := fs.fs.Getattr(fs.region, childPath, fs.uid, fs.gid)
	if errno != regionfs.Success {
		return fuseops.ChildInodeEntry{}, errno
	}

	id := fs.paths.idFor(childPath)
	return fuseops.ChildInodeEntry{
		Child:      id,
		Attributes: fs.attrToFuse(attr),
	}, regionfs.Success
}

func (fs *regionFileSystem) LookUpInode(op *fuseops.LookUpInodeOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath, ok := fs.paths.pathOf(op.Parent)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	entry, errno := fs.lookupEntry(join(parentPath, op.Name))
	if errno != regionfs.Success {
		op.Respond(toError(errno))
		return
	}
	op.Entry = entry
	op.Respond(nil)
}

func (fs *regionFileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, ok := fs.paths.pathOf(op.Inode)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	attr, errno := fs.fs.Getattr(fs.region, p, fs.uid, fs.gid)
	if errno != regionfs.Success {
		op.Respond(toError(errno))
		return
	}
	op.Attributes = fs.attrToFuse(attr)
	op.Respond(nil)
}

func (fs *regionFileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, ok := fs.paths.pathOf(op.Inode)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	if op.Size != nil {
		if errno := fs.fs.Truncate(fs.region, p, *op.Size); errno != regionfs.Success {
			op.Respond(toError(errno))
			return
		}
	}

	if op.Atime != nil || op.Mtime != nil {
		if errno := fs.fs.Utimens(fs.region, p, op.Atime, op.Mtime); errno != regionfs.Success {
			op.Respond(toError(errno))
			return
		}
	}

	attr, errno := fs.fs.Getattr(fs.region, p, fs.uid, fs.gid)
	if errno != regionfs.Success {
		op.Respond(toError(errno))
		return
	}
	op.Attributes = fs.attrToFuse(attr)
	op.Respond(nil)
}

func (fs *regionFileSystem) ForgetInode(op *fuseops.ForgetInodeOp) {
	fs.paths.forget(op.ID, 1)
	op.Respond(nil)
}

func (fs *regionFileSystem) MkDir(op *fuseops.MkDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath, ok := fs.paths.pathOf(op.Parent)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	childPath := join(parentPath, op.Name)

	if errno := fs.fs.Mkdir(fs.region, childPath); errno != regionfs.Success {
		op.Respond(toError(errno))
		return
	}

	entry, errno := fs.lookupEntry(childPath)
	if errno != regionfs.Success {
		op.Respond(toError(errno))
		return
	}
	op.Entry = entry
	op.Respond(nil)
}

func (fs *regionFileSystem) CreateFile(op *fuseops.CreateFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath, ok := fs.paths.pathOf(op.Parent)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	childPath := join(parentPath, op.Name)

	if errno := fs.fs.Mknod(fs.region, childPath); errno != regionfs.Success {
		op.Respond(toError(errno))
		return
	}

	entry, errno := fs.lookupEntry(childPath)
	if errno != regionfs.Success {
		op.Respond(toError(errno))
		return
	}
	op.Entry = entry
	op.Handle = fuseops.HandleID(entry.Child)
	op.Respond(nil)
}

func (fs *regionFileSystem) RmDir(op *fuseops.RmDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath, ok := fs.paths.pathOf(op.Parent)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	errno := fs.fs.Rmdir(fs.region, join(parentPath, op.Name))
	op.Respond(toError(errno))
}

func (fs *regionFileSystem) Unlink(op *fuseops.UnlinkOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath, ok := fs.paths.pathOf(op.Parent)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	errno := fs.fs.Unlink(fs.region, join(parentPath, op.Name))
	op.Respond(toError(errno))
}

func (fs *regionFileSystem) OpenDir(op *fuseops.OpenDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, ok := fs.paths.pathOf(op.Inode)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	if _, errno := fs.fs.Readdir(fs.region, p); errno != regionfs.Success {
		op.Respond(toError(errno))
		return
	}
	op.Handle = fuseops.HandleID(op.Inode)
	op.Respond(nil)
}

// direntType reports the FUSE dirent type for a path regionfs already
// confirmed exists, the way samples/hellofs precomputes a DT_File vs.
// DT_Directory entry for its fixed tree.
func (fs *regionFileSystem) direntType(childPath string) fuseutil.DirentType {
	attr, errno := fs.fs.Getattr(fs.region, childPath, fs.uid, fs.gid)
	if errno != regionfs.Success {
		return fuseutil.DT_Unknown
	}
	if attr.Mode&os.ModeDir != 0 {
		return fuseutil.DT_Directory
	}
	return fuseutil.DT_File
}

func (fs *regionFileSystem) ReadDir(op *fuseops.ReadDirOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, ok := fs.paths.pathOf(op.Inode)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	names, errno := fs.fs.Readdir(fs.region, p)
	if errno != regionfs.Success {
		op.Respond(toError(errno))
		return
	}

	if int(op.Offset) > len(names) {
		op.Respond(nil)
		return
	}

	var buf []byte
	for i := int(op.Offset); i < len(names); i++ {
		childPath := join(p, names[i])
		d := fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fs.paths.idFor(childPath),
			Name:   names[i],
			Type:   fs.direntType(childPath),
		}
		entry := make([]byte, op.Size)
		n := fuseutil.WriteDirent(entry, d)
		if n == 0 {
			break
		}
		buf = append(buf, entry[:n]...)
		if len(buf) >= op.Size {
			break
		}
	}
	if len(buf) > op.Size {
		buf = buf[:op.Size]
	}
	op.Data = buf
	op.Respond(nil)
}

func (fs *regionFileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	op.Respond(nil)
}

func (fs *regionFileSystem) OpenFile(op *fuseops.OpenFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, ok := fs.paths.pathOf(op.Inode)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}
	if errno := fs.fs.Open(fs.region, p); errno != regionfs.Success {
		op.Respond(toError(errno))
		return
	}
	op.Handle = fuseops.HandleID(op.Inode)
	op.Respond(nil)
}

func (fs *regionFileSystem) ReadFile(op *fuseops.ReadFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, ok := fs.paths.pathOf(op.Inode)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	buf := make([]byte, op.Size)
	n, errno := fs.fs.Read(fs.region, p, buf, op.Size, op.Offset)
	if errno != regionfs.Success {
		op.Respond(toError(errno))
		return
	}
	op.Data = buf[:n]
	op.Respond(nil)
}

func (fs *regionFileSystem) WriteFile(op *fuseops.WriteFileOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, ok := fs.paths.pathOf(op.Inode)
	if !ok {
		op.Respond(fuse.ENOENT)
		return
	}

	_, errno := fs.fs.Write(fs.region, p, op.Data, len(op.Data), op.Offset)
	op.Respond(toError(errno))
}

func (fs *regionFileSystem) SyncFile(op *fuseops.SyncFileOp) {
	op.Respond(nil)
}

func (fs *regionFileSystem) FlushFile(op *fuseops.FlushFileOp) {
	op.Respond(nil)
}

func (fs *regionFileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	op.Respond(nil)
}
