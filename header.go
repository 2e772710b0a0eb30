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

// Configurable constants, baked into the image at format time (spec.md §6).
// Changing any of these changes the on-region layout; they are compile-time
// constants rather than runtime options for exactly that reason.
const (
	// BlockSize is the size in bytes of each data block, header included.
	BlockSize = 4096

	// NameMax is the maximum length in bytes of a filename.
	NameMax = 255

	// BlocksPerInode is the ratio used when sizing the inode table against
	// the block pool during format (spec.md §4.1).
	BlocksPerInode = 1

	// Magic identifies a region as a formatted regionfs image.
	Magic uint32 = 0xdeadd0c5
)

// Byte layout. The region is encoded little-endian; every architecture this
// package ships for (amd64, arm64, riscv64) is little-endian natively, so
// this is a faithful rendition of spec.md §6's "host-native, not portable
// across architectures" requirement without resorting to unsafe.Pointer
// struct overlays.
const (
	headerSize = 4 + 4 + 8 + 8 + 8 + 8 + 8 // magic+pad+5 uint64 fields

	nameFieldSize   = 256 // NameMax + 1 for a NUL terminator
	inodeFixedSize  = 8 + 8 + 8 + 8 + 8 + 8 + 8 + 8 // isDir+pad, childCount, payloadSize, atime, atimeNsec, mtime, mtimeNsec, firstBlock
	inodeSize       = nameFieldSize + inodeFixedSize
	blockHeaderSize = 8 + 8 + 8
	payloadCapacity = BlockSize - blockHeaderSize
)

// header is the region's layer-1 descriptor, stored at offset 0.
type header struct {
	magic       uint32
	usableSize  uint64
	inodeCount  uint64
	blockCount  uint64
	inodeSegOff uint64
	blockSegOff uint64
}

func decodeHeader(region []byte) header {
	var h header
	h.magic = binary.LittleEndian.Uint32(region[0:4])
	h.usableSize = binary.LittleEndian.Uint64(region[8:16])
	h.inodeCount = binary.LittleEndian.Uint64(region[16:24])
	h.blockCount = binary.LittleEndian.Uint64(region[24:32])
	h.inodeSegOff = binary.LittleEndian.Uint64(region[32:40])
	h.blockSegOff = binary.LittleEndian.Uint64(region[40:48])
	return h
}

func encodeHeader(region []byte, h header) {
	binary.LittleEndian.PutUint32(region[0:4], h.magic)
	binary.LittleEndian.PutUint32(region[4:8], 0) // padding, kept zero
	binary.LittleEndian.PutUint64(region[8:16], h.usableSize)
	binary.LittleEndian.PutUint64(region[16:24], h.inodeCount)
	binary.LittleEndian.PutUint64(region[24:32], h.blockCount)
	binary.LittleEndian.PutUint64(region[32:40], h.inodeSegOff)
	binary.LittleEndian.PutUint64(region[40:48], h.blockSegOff)
}

// minRegionSize is bind's up-front size check: a header, one inode, and two
// blocks (spec.md §4.1). format needs more than that: its sizing loop grows
// the inode and block counts together and rejects a layout with fewer than
// two blocks, so a region no larger than headerSize + 2*inodeSize +
// 2*BlockSize still fails to bind with EFAULT.
const minRegionSize = headerSize + inodeSize + 2*BlockSize
