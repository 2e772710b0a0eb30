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

// An offset is a byte position measured from the start of a region. Offset
// zero is the null sentinel: it would point at the region header, so it can
// never be a legal reference to an inode or a block. Every on-region pointer
// field (an inode's first-block offset, a block's next-block offset, a
// directory entry's parsed offset) is an offset, never a Go pointer, so that
// the same bytes remain meaningful after the region is unmapped and remapped
// at a different address.
type offset uint64

const nullOffset offset = 0

// segment describes a contiguous, validated byte range within a region.
type segment struct {
	start offset
	end   offset // exclusive
}

func (s segment) contains(off offset, length int) bool {
	if length < 0 {
		return false
	}
	end := off + offset(length)
	if end < off {
		return false // overflow
	}
	return off >= s.start && end <= s.end
}

// sliceAt returns the n bytes of region starting at off, validated to lie
// entirely within seg. A validation failure here is the fatal "offset read
// from the image falls outside its expected segment" case from the data
// model invariants, and is reported as EFAULT by every caller.
func sliceAt(region []byte, seg segment, off offset, n int) ([]byte, bool) {
	if !seg.contains(off, n) {
		return nil, false
	}
	return region[off : off+offset(n)], true
}
