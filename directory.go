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
	"bytes"
	"strconv"
)

// A directory's payload is a textual table, one line per child:
// "name:decimal-offset\n" (spec.md §3). Lookups are anchored at line
// boundaries (matching on "name:" as a substring would wrongly match
// "file2" while looking for "file" - spec.md §9's prefix-match open
// question, resolved here by only ever comparing the text before the first
// ':' on each line).

// findChildLine scans payload for a line whose name field equals name,
// returning the byte range of that whole line (including its trailing
// newline, if any) and the offset it encodes.
func findChildLine(payload []byte, name string) (start, end int, off offset, found bool) {
	i := 0
	for i < len(payload) {
		nl := bytes.IndexByte(payload[i:], '\n')
		var lineEnd int
		if nl < 0 {
			lineEnd = len(payload)
		} else {
			lineEnd = i + nl + 1
		}

		line := payload[i:lineEnd]
		colon := bytes.IndexByte(line, ':')
		if colon >= 0 && string(line[:colon]) == name {
			rest := bytes.TrimSuffix(line[colon+1:], []byte("\n"))
			val, err := strconv.ParseUint(string(rest), 10, 64)
			if err == nil {
				return i, lineEnd, offset(val), true
			}
		}

		if nl < 0 {
			break
		}
		i = lineEnd
	}
	return 0, 0, 0, false
}

// listChildNames returns every name in a directory payload, in on-disk
// order.
func listChildNames(payload []byte) []string {
	var names []string
	i := 0
	for i < len(payload) {
		nl := bytes.IndexByte(payload[i:], '\n')
		var lineEnd int
		if nl < 0 {
			lineEnd = len(payload)
		} else {
			lineEnd = i + nl + 1
		}

		line := payload[i:lineEnd]
		if colon := bytes.IndexByte(line, ':'); colon >= 0 {
			names = append(names, string(line[:colon]))
		}

		if nl < 0 {
			break
		}
		i = lineEnd
	}
	return names
}

func appendChildLineBytes(payload []byte, name string, off offset) []byte {
	line := name + ":" + strconv.FormatUint(uint64(off), 10) + "\n"
	return append(append([]byte{}, payload...), line...)
}

func removeChildLineBytes(payload []byte, name string) ([]byte, bool) {
	start, end, _, found := findChildLine(payload, name)
	if !found {
		return payload, false
	}
	out := make([]byte, 0, len(payload)-(end-start))
	out = append(out, payload[:start]...)
	out = append(out, payload[end:]...)
	return out, true
}

// lookupChild resolves name within the directory at dirOff, verifying that
// the resolved inode's own filename field matches (a defense against a
// corrupted or stale offset referring to some other, reused inode).
func (h *Handle) lookupChild(dirOff offset, name string) (offset, Errno) {
	payload, errno := h.readPayload(dirOff)
	if errno != errnoNone {
		return 0, errno
	}

	_, _, childOff, found := findChildLine(payload, name)
	if !found {
		return 0, ENOENT
	}

	if _, ok := h.inodeIndexAt(childOff); !ok {
		return 0, EFAULT
	}
	child := getRawInode(h.Region, childOff)
	if child.firstBlock == nullOffset || child.name != name {
		return 0, EFAULT
	}

	return childOff, errnoNone
}

// appendDirEntry adds a "name:offset" line to the directory at dirOff and
// bumps its modification time. It does not touch child-count: callers that
// create directories (not files) bump that themselves, since child-count
// tracks subdirectories only (it feeds getattr's POSIX link-count, which
// counts subdirectory back-references, not every kind of child).
func (h *Handle) appendDirEntry(dirOff offset, name string, childOff offset) Errno {
	payload, errno := h.readPayload(dirOff)
	if errno != errnoNone {
		return errno
	}
	newPayload := appendChildLineBytes(payload, name, childOff)
	if errno := h.writePayload(dirOff, newPayload); errno != errnoNone {
		return errno
	}
	return errnoNone
}

// removeDirEntry splices a child's line out of its parent's payload.
func (h *Handle) removeDirEntry(dirOff offset, name string) Errno {
	payload, errno := h.readPayload(dirOff)
	if errno != errnoNone {
		return errno
	}
	newPayload, found := removeChildLineBytes(payload, name)
	if !found {
		return ENOENT
	}
	return h.writePayload(dirOff, newPayload)
}

// resolve walks path component by component from the root, returning the
// offset of the inode it names. The root path "/" always resolves to inode
// 0.
func (h *Handle) resolve(path string) (offset, Errno) {
	parts, ok := splitPath(path)
	if !ok {
		return 0, EINVAL
	}

	cur := h.rootInodeOffset()
	for _, name := range parts {
		in := getRawInode(h.Region, cur)
		if !in.isDir {
			return 0, ENOENT
		}
		child, errno := h.lookupChild(cur, name)
		if errno != errnoNone {
			return 0, errno
		}
		cur = child
	}
	return cur, errnoNone
}

// dirNew creates a new, empty directory named name inside the directory at
// parentOff (spec.md §4.4).
func (h *Handle) dirNew(parentOff offset, name string) (offset, Errno) {
	parent := getRawInode(h.Region, parentOff)
	if !parent.isDir {
		return 0, ENOTDIR
	}
	if !validFilename(name) {
		return 0, EINVAL
	}
	if _, errno := h.lookupChild(parentOff, name); errno == errnoNone {
		return 0, EEXIST
	}

	childOff, errno := h.newInode(name, true)
	if errno != errnoNone {
		return 0, errno
	}

	if errno := h.appendDirEntry(parentOff, name, childOff); errno != errnoNone {
		_ = h.freeInode(childOff)
		return 0, errno
	}

	parent = getRawInode(h.Region, parentOff)
	parent.childCount++
	now := h.Clock.Now()
	parent.mtimeSec, parent.mtimeNsec = now.Unix(), int64(now.Nanosecond())
	setRawInode(h.Region, parentOff, parent)

	return childOff, errnoNone
}

// fileNew creates a new, empty regular file named name inside the
// directory at parentOff.
func (h *Handle) fileNew(parentOff offset, name string) (offset, Errno) {
	parent := getRawInode(h.Region, parentOff)
	if !parent.isDir {
		return 0, ENOTDIR
	}
	if !validFilename(name) {
		return 0, EINVAL
	}
	if _, errno := h.lookupChild(parentOff, name); errno == errnoNone {
		return 0, EEXIST
	}

	childOff, errno := h.newInode(name, false)
	if errno != errnoNone {
		return 0, errno
	}

	if errno := h.appendDirEntry(parentOff, name, childOff); errno != errnoNone {
		_ = h.freeInode(childOff)
		return 0, errno
	}

	return childOff, errnoNone
}

// childRemove splices name out of the directory at parentOff and frees the
// child inode entirely (spec.md §4.4's child_remove). The caller has
// already checked whatever kind- and emptiness-preconditions the specific
// operation (unlink vs. rmdir) requires.
func (h *Handle) childRemove(parentOff offset, name string, childOff offset) Errno {
	if errno := h.removeDirEntry(parentOff, name); errno != errnoNone {
		return errno
	}

	child := getRawInode(h.Region, childOff)
	if child.isDir {
		parent := getRawInode(h.Region, parentOff)
		if parent.childCount > 0 {
			parent.childCount--
		}
		setRawInode(h.Region, parentOff, parent)
	}

	return h.freeInode(childOff)
}
