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

import "github.com/jacobsa/timeutil"

// Handle is a transient, stateless view bound to a region for the duration
// of a single operation. It holds nothing that isn't trivially recomputed
// from the region's header, so binding a handle is idempotent and carries no
// lifecycle of its own — matching the teacher's treatment of a memFS struct
// as nothing more than a table indexed by the facts already in memory.
type Handle struct {
	Region []byte
	Clock  timeutil.Clock

	inodes segment
	blocks segment

	numInodes uint64
	numBlocks uint64
}

// bind validates region and computes segment bases, formatting the region
// first if its magic doesn't match (spec.md §4.1). clock is used to stamp
// the root inode's timestamps on first format; a nil clock defaults to
// timeutil.RealClock().
func bind(region []byte, clock timeutil.Clock) (*Handle, Errno) {
	if len(region) < minRegionSize {
		return nil, EFAULT
	}
	if clock == nil {
		clock = timeutil.RealClock()
	}

	h := &Handle{Region: region, Clock: clock}

	magic := decodeHeader(region).magic
	if magic == Magic {
		if !h.recomputeSegments(decodeHeader(region)) {
			return nil, EFAULT
		}
		return h, errnoNone
	}

	if !h.format() {
		return nil, EFAULT
	}
	return h, errnoNone
}

// recomputeSegments derives inode/block segment bounds from an on-region
// header that has already been validated to carry the right magic. Segment
// bases are a pure function of region size, so two binds of an
// already-formatted region always agree (the "format stability" property in
// spec.md §8).
func (h *Handle) recomputeSegments(hd header) bool {
	region := h.Region
	total := uint64(len(region))

	if hd.inodeSegOff < headerSize || hd.blockSegOff < hd.inodeSegOff {
		return false
	}
	if hd.inodeSegOff > total || hd.blockSegOff > total {
		return false
	}
	if hd.inodeCount*inodeSize != hd.blockSegOff-hd.inodeSegOff {
		return false
	}
	if hd.blockSegOff+hd.blockCount*BlockSize > total {
		return false
	}

	h.inodes = segment{start: offset(hd.inodeSegOff), end: offset(hd.blockSegOff)}
	h.blocks = segment{start: offset(hd.blockSegOff), end: offset(hd.blockSegOff + hd.blockCount*BlockSize)}
	h.numInodes = hd.inodeCount
	h.numBlocks = hd.blockCount
	return true
}

// format zeroes region and lays out a fresh image: header, inode table,
// block pool, with inode 0 initialized as an empty root directory
// (spec.md §4.1).
func (h *Handle) format() bool {
	region := h.Region
	for i := range region {
		region[i] = 0
	}

	// "While n_blocks·payload_capacity + n_inodes·inode_size < usable_size,
	// increment both" (spec.md §4.1), seeded at one of each for the root
	// inode/block and grown from there at the configured ratio. The block
	// segment itself is laid out at BlockSize per block (the block header
	// plus its payload), not payloadCapacity alone, so the loop must budget
	// space the same way or the computed segments overflow the region.
	usable := uint64(len(region)) - headerSize
	numInodes, numBlocks := uint64(1), uint64(1)
	for (numBlocks+1)*BlockSize+(numInodes+1)*inodeSize < usable {
		numInodes++
		numBlocks += BlocksPerInode
	}
	if numBlocks < 2 {
		return false
	}

	inodeSegOff := uint64(headerSize)
	blockSegOff := inodeSegOff + numInodes*inodeSize

	hd := header{
		magic:       Magic,
		usableSize:  usable,
		inodeCount:  numInodes,
		blockCount:  numBlocks,
		inodeSegOff: inodeSegOff,
		blockSegOff: blockSegOff,
	}
	encodeHeader(region, hd)

	h.inodes = segment{start: offset(inodeSegOff), end: offset(blockSegOff)}
	h.blocks = segment{start: offset(blockSegOff), end: offset(blockSegOff + numBlocks*BlockSize)}
	h.numInodes = numInodes
	h.numBlocks = numBlocks

	// Root directory: inode 0, first block is block 0.
	now := h.Clock.Now()
	rootBlockOff := h.blockOffset(0)
	setBlockInUse(region, rootBlockOff, true)
	setBlockPayloadUsed(region, rootBlockOff, 0)
	setBlockNext(region, rootBlockOff, nullOffset)

	root := rawInode{
		isDir:      true,
		firstBlock: rootBlockOff,
	}
	root.atimeSec, root.atimeNsec = now.Unix(), int64(now.Nanosecond())
	root.mtimeSec, root.mtimeNsec = root.atimeSec, root.atimeNsec
	setRawInode(region, h.inodeOffset(0), root)

	return true
}

// inodeOffset returns the region offset of inode index i. Callers must have
// validated i < numInodes.
func (h *Handle) inodeOffset(i uint64) offset {
	return h.inodes.start + offset(i*inodeSize)
}

// blockOffset returns the region offset of block index i. Callers must have
// validated i < numBlocks.
func (h *Handle) blockOffset(i uint64) offset {
	return h.blocks.start + offset(i*BlockSize)
}

// inodeIndexAt converts a validated in-use inode offset back to its index.
func (h *Handle) inodeIndexAt(off offset) (uint64, bool) {
	if off < h.inodes.start || off >= h.inodes.end {
		return 0, false
	}
	rel := uint64(off - h.inodes.start)
	if rel%inodeSize != 0 {
		return 0, false
	}
	return rel / inodeSize, true
}

func (h *Handle) blockIndexAt(off offset) (uint64, bool) {
	if off < h.blocks.start || off >= h.blocks.end {
		return 0, false
	}
	rel := uint64(off - h.blocks.start)
	if rel%BlockSize != 0 {
		return 0, false
	}
	return rel / BlockSize, true
}
