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
	"encoding/binary"
	"time"
)

// Inode record layout, within an inodeSize-byte record (spec.md §3):
// name[256] | isDir(1)+pad(7) | childCount(8) | payloadSize(8) |
// atimeSec(8) | atimeNsec(8) | mtimeSec(8) | mtimeNsec(8) | firstBlock(8).
const (
	inodeNameOff       = 0
	inodeIsDirOff      = nameFieldSize
	inodeChildCountOff = inodeIsDirOff + 8
	inodePayloadOff    = inodeChildCountOff + 8
	inodeAtimeSecOff   = inodePayloadOff + 8
	inodeAtimeNsecOff  = inodeAtimeSecOff + 8
	inodeMtimeSecOff   = inodeAtimeNsecOff + 8
	inodeMtimeNsecOff  = inodeMtimeSecOff + 8
	inodeFirstBlockOff = inodeMtimeNsecOff + 8
)

// rawInode is the decoded form of an on-region inode record.
type rawInode struct {
	name                 string
	isDir                bool
	childCount           uint64
	payloadSize          uint64
	atimeSec, atimeNsec  int64
	mtimeSec, mtimeNsec  int64
	firstBlock           offset
}

func getRawInode(region []byte, off offset) rawInode {
	rec := region[off : off+inodeSize]

	nameEnd := 0
	for nameEnd < nameFieldSize && rec[inodeNameOff+nameEnd] != 0 {
		nameEnd++
	}

	var in rawInode
	in.name = string(rec[inodeNameOff : inodeNameOff+nameEnd])
	in.isDir = rec[inodeIsDirOff] != 0
	in.childCount = binary.LittleEndian.Uint64(rec[inodeChildCountOff : inodeChildCountOff+8])
	in.payloadSize = binary.LittleEndian.Uint64(rec[inodePayloadOff : inodePayloadOff+8])
	in.atimeSec = int64(binary.LittleEndian.Uint64(rec[inodeAtimeSecOff : inodeAtimeSecOff+8]))
	in.atimeNsec = int64(binary.LittleEndian.Uint64(rec[inodeAtimeNsecOff : inodeAtimeNsecOff+8]))
	in.mtimeSec = int64(binary.LittleEndian.Uint64(rec[inodeMtimeSecOff : inodeMtimeSecOff+8]))
	in.mtimeNsec = int64(binary.LittleEndian.Uint64(rec[inodeMtimeNsecOff : inodeMtimeNsecOff+8]))
	in.firstBlock = offset(binary.LittleEndian.Uint64(rec[inodeFirstBlockOff : inodeFirstBlockOff+8]))
	return in
}

func setRawInode(region []byte, off offset, in rawInode) {
	rec := region[off : off+inodeSize]

	for i := range rec[inodeNameOff : inodeNameOff+nameFieldSize] {
		rec[inodeNameOff+i] = 0
	}
	copy(rec[inodeNameOff:inodeNameOff+nameFieldSize], in.name)

	if in.isDir {
		rec[inodeIsDirOff] = 1
	} else {
		rec[inodeIsDirOff] = 0
	}
	binary.LittleEndian.PutUint64(rec[inodeChildCountOff:inodeChildCountOff+8], in.childCount)
	binary.LittleEndian.PutUint64(rec[inodePayloadOff:inodePayloadOff+8], in.payloadSize)
	binary.LittleEndian.PutUint64(rec[inodeAtimeSecOff:inodeAtimeSecOff+8], uint64(in.atimeSec))
	binary.LittleEndian.PutUint64(rec[inodeAtimeNsecOff:inodeAtimeNsecOff+8], uint64(in.atimeNsec))
	binary.LittleEndian.PutUint64(rec[inodeMtimeSecOff:inodeMtimeSecOff+8], uint64(in.mtimeSec))
	binary.LittleEndian.PutUint64(rec[inodeMtimeNsecOff:inodeMtimeNsecOff+8], uint64(in.mtimeNsec))
	binary.LittleEndian.PutUint64(rec[inodeFirstBlockOff:inodeFirstBlockOff+8], uint64(in.firstBlock))
}

// rootInodeOffset is the offset of inode 0, which is never free.
func (h *Handle) rootInodeOffset() offset { return h.inodeOffset(0) }

// findFreeInode returns the offset of the first inode slot whose
// first-block offset is zero (spec.md §4.4).
func (h *Handle) findFreeInode() (offset, bool) {
	for i := uint64(0); i < h.numInodes; i++ {
		off := h.inodeOffset(i)
		if getRawInode(h.Region, off).firstBlock == nullOffset {
			return off, true
		}
	}
	return 0, false
}

// newInode claims a free inode slot and a first block, writes name and
// isDir, stamps both timestamps to now, and installs an empty payload.
// Returns the new inode's offset.
func (h *Handle) newInode(name string, isDir bool) (offset, Errno) {
	slot, ok := h.findFreeInode()
	if !ok {
		return 0, ENOSPC
	}

	first, errno := h.chainWrite(nil)
	if errno != errnoNone {
		return 0, errno
	}

	now := h.Clock.Now()
	in := rawInode{
		name:       name,
		isDir:      isDir,
		firstBlock: first,
	}
	in.atimeSec, in.atimeNsec = now.Unix(), int64(now.Nanosecond())
	in.mtimeSec, in.mtimeNsec = in.atimeSec, in.atimeNsec
	setRawInode(h.Region, slot, in)

	return slot, errnoNone
}

// freeInode clears an inode's block chain and marks the slot free. The
// caller is responsible for having already spliced the child out of its
// parent's directory payload.
func (h *Handle) freeInode(off offset) Errno {
	in := getRawInode(h.Region, off)
	if errno := h.chainClear(in.firstBlock); errno != errnoNone {
		return errno
	}
	setRawInode(h.Region, off, rawInode{})
	return errnoNone
}

// readPayload returns the full payload bytes of the inode at off.
func (h *Handle) readPayload(off offset) ([]byte, Errno) {
	in := getRawInode(h.Region, off)
	data, errno := h.chainRead(in.firstBlock)
	if errno != errnoNone {
		return nil, errno
	}
	if uint64(len(data)) != in.payloadSize {
		return nil, EFAULT
	}
	return data, errnoNone
}

// writePayload replaces the inode's payload with data, updating its size
// and first-block fields. The previous chain (if any) is released only
// after the new one is fully built, so a mid-write allocation failure
// leaves the inode's old payload completely intact.
func (h *Handle) writePayload(off offset, data []byte) Errno {
	in := getRawInode(h.Region, off)

	newFirst, errno := h.chainWrite(data)
	if errno != errnoNone {
		return errno
	}

	oldFirst := in.firstBlock
	in.firstBlock = newFirst
	in.payloadSize = uint64(len(data))
	now := h.Clock.Now()
	in.mtimeSec, in.mtimeNsec = now.Unix(), int64(now.Nanosecond())
	setRawInode(h.Region, off, in)

	if oldFirst != nullOffset {
		if errno := h.chainClear(oldFirst); errno != errnoNone {
			return errno
		}
	}
	return errnoNone
}

// touchAtime stamps the inode's access time to now. Called only on success
// paths (spec.md §9: "access-time side effect on failure" is a bug to fix,
// not preserve).
func (h *Handle) touchAtime(off offset) {
	in := getRawInode(h.Region, off)
	now := h.Clock.Now()
	in.atimeSec, in.atimeNsec = now.Unix(), int64(now.Nanosecond())
	setRawInode(h.Region, off, in)
}

// touchMtime stamps the inode's modification time to now.
func (h *Handle) touchMtime(off offset) {
	in := getRawInode(h.Region, off)
	now := h.Clock.Now()
	in.mtimeSec, in.mtimeNsec = now.Unix(), int64(now.Nanosecond())
	setRawInode(h.Region, off, in)
}

func inodeATime(in rawInode) time.Time {
	return time.Unix(in.atimeSec, in.atimeNsec)
}

func inodeMTime(in rawInode) time.Time {
	return time.Unix(in.mtimeSec, in.mtimeNsec)
}
