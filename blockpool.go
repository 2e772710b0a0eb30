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

import "encoding/binary"

// Block header layout, within a block record of blockHeaderSize bytes
// followed by a payloadCapacity-byte payload area (spec.md §3).
const (
	blockInUseOff      = 0
	blockPayloadUsedOff = 8
	blockNextOff        = 16
)

func blockInUse(region []byte, off offset) bool {
	return region[off+blockInUseOff] != 0
}

func setBlockInUse(region []byte, off offset, inUse bool) {
	if inUse {
		region[off+blockInUseOff] = 1
	} else {
		region[off+blockInUseOff] = 0
	}
}

func blockPayloadUsed(region []byte, off offset) uint64 {
	return binary.LittleEndian.Uint64(region[off+blockPayloadUsedOff : off+blockPayloadUsedOff+8])
}

func setBlockPayloadUsed(region []byte, off offset, n uint64) {
	binary.LittleEndian.PutUint64(region[off+blockPayloadUsedOff:off+blockPayloadUsedOff+8], n)
}

func blockNext(region []byte, off offset) offset {
	return offset(binary.LittleEndian.Uint64(region[off+blockNextOff : off+blockNextOff+8]))
}

func setBlockNext(region []byte, off offset, next offset) {
	binary.LittleEndian.PutUint64(region[off+blockNextOff:off+blockNextOff+8], uint64(next))
}

func blockPayload(region []byte, off offset) []byte {
	start := off + blockHeaderSize
	return region[start : start+payloadCapacity]
}

// nextFreeBlock returns the lowest-indexed free block, or ok=false if the
// pool is exhausted (spec.md §4.3: "first-fit by linear scan").
func (h *Handle) nextFreeBlock() (off offset, ok bool) {
	for i := uint64(0); i < h.numBlocks; i++ {
		o := h.blockOffset(i)
		if !blockInUse(h.Region, o) {
			return o, true
		}
	}
	return 0, false
}

// countFreeBlocks is the canonical free-accounting definition from spec.md
// §8: total blocks minus the ceil(payload_size/payload_capacity) used by
// every in-use inode (0-sized files with a first block still cost one
// block).
func (h *Handle) countFreeBlocks() uint64 {
	used := uint64(0)
	for i := uint64(0); i < h.numInodes; i++ {
		in := getRawInode(h.Region, h.inodeOffset(i))
		if in.firstBlock == nullOffset {
			continue
		}
		blocksNeeded := in.payloadSize / payloadCapacity
		if in.payloadSize%payloadCapacity != 0 || in.payloadSize == 0 {
			blocksNeeded++
		}
		used += blocksNeeded
	}
	if used > h.numBlocks {
		return 0
	}
	return h.numBlocks - used
}

// chainRead walks the block chain starting at first and returns the
// concatenation of payload slices in order (spec.md §4.3).
func (h *Handle) chainRead(first offset) ([]byte, Errno) {
	if first == nullOffset {
		return nil, errnoNone
	}

	var out []byte
	cur := first
	seen := make(map[offset]bool)
	for cur != nullOffset {
		if seen[cur] {
			return nil, EFAULT // cyclic chain: fatal invariant violation
		}
		seen[cur] = true

		if _, ok := h.blockIndexAt(cur); !ok {
			return nil, EFAULT
		}
		if !blockInUse(h.Region, cur) {
			return nil, EFAULT
		}

		used := blockPayloadUsed(h.Region, cur)
		if used > payloadCapacity {
			return nil, EFAULT
		}
		out = append(out, blockPayload(h.Region, cur)[:used]...)
		cur = blockNext(h.Region, cur)
	}
	return out, errnoNone
}

// chainClear walks the block chain starting at first, zeroing and freeing
// every block on it.
func (h *Handle) chainClear(first offset) Errno {
	cur := first
	for cur != nullOffset {
		if _, ok := h.blockIndexAt(cur); !ok {
			return EFAULT
		}
		next := blockNext(h.Region, cur)

		payload := blockPayload(h.Region, cur)
		for i := range payload {
			payload[i] = 0
		}
		setBlockInUse(h.Region, cur, false)
		setBlockPayloadUsed(h.Region, cur, 0)
		setBlockNext(h.Region, cur, nullOffset)

		cur = next
	}
	return errnoNone
}

// chainWrite acquires however many free blocks are needed to hold data,
// fills them in order, and returns the offset of the first block. It does
// not touch any previously-existing chain; callers overwriting an inode's
// payload must chainClear the old chain themselves (before or after, the
// two chains are disjoint while both exist).
func (h *Handle) chainWrite(data []byte) (first offset, errno Errno) {
	need := 1
	if len(data) > 0 {
		need = (len(data) + payloadCapacity - 1) / payloadCapacity
	}

	blocks := make([]offset, 0, need)
	for len(blocks) < need {
		b, ok := h.nextFreeBlockExcluding(blocks)
		if !ok {
			for _, b := range blocks {
				setBlockInUse(h.Region, b, false)
			}
			return 0, ENOSPC
		}
		setBlockInUse(h.Region, b, true)
		blocks = append(blocks, b)
	}

	off := 0
	for i, b := range blocks {
		n := len(data) - off
		if n > payloadCapacity {
			n = payloadCapacity
		}
		payload := blockPayload(h.Region, b)
		for j := range payload {
			payload[j] = 0
		}
		copy(payload, data[off:off+n])
		setBlockPayloadUsed(h.Region, b, uint64(n))

		if i+1 < len(blocks) {
			setBlockNext(h.Region, b, blocks[i+1])
		} else {
			setBlockNext(h.Region, b, nullOffset)
		}
		off += n
	}

	return blocks[0], errnoNone
}

// nextFreeBlockExcluding scans for a free block not already claimed in
// excl, so chainWrite can acquire several distinct blocks via repeated
// linear scans without a free list (spec.md §4.3: "no free list, two
// concurrent allocations would race" - single-threaded here, just need to
// skip what this call already grabbed).
func (h *Handle) nextFreeBlockExcluding(excl []offset) (offset, bool) {
	for i := uint64(0); i < h.numBlocks; i++ {
		o := h.blockOffset(i)
		if blockInUse(h.Region, o) {
			continue
		}
		claimed := false
		for _, e := range excl {
			if e == o {
				claimed = true
				break
			}
		}
		if !claimed {
			return o, true
		}
	}
	return 0, false
}
