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
	"testing"

	"github.com/jacobsa/timeutil"
)

func newFormattedRegion(t *testing.T, size int) (*Handle, []byte) {
	t.Helper()
	region := make([]byte, size)
	h, errno := bind(region, timeutil.RealClock())
	if errno != errnoNone {
		t.Fatalf("bind: %v", errno)
	}
	return h, region
}

func TestChainWriteReadRoundTrip(t *testing.T) {
	h, _ := newFormattedRegion(t, 64*1024)

	sizes := []int{0, 1, payloadCapacity - 1, payloadCapacity, payloadCapacity + 1, payloadCapacity*2 + 37}
	for _, n := range sizes {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}

		first, errno := h.chainWrite(data)
		if errno != errnoNone {
			t.Fatalf("chainWrite(%d bytes): %v", n, errno)
		}

		got, errno := h.chainRead(first)
		if errno != errnoNone {
			t.Fatalf("chainRead after chainWrite(%d bytes): %v", n, errno)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("chainRead round trip mismatch for %d bytes", n)
		}

		if errno := h.chainClear(first); errno != errnoNone {
			t.Fatalf("chainClear: %v", errno)
		}
	}
}

func TestChainWriteExactlyTwoBlocks(t *testing.T) {
	h, _ := newFormattedRegion(t, 64*1024)

	n := int(float64(payloadCapacity) * 1.25)
	data := make([]byte, n)
	first, errno := h.chainWrite(data)
	if errno != errnoNone {
		t.Fatalf("chainWrite: %v", errno)
	}

	count := 0
	cur := first
	for cur != nullOffset {
		count++
		cur = blockNext(h.Region, cur)
	}
	if count != 2 {
		t.Fatalf("expected a 2-block chain for 1.25x capacity, got %d blocks", count)
	}
}

func TestChainWriteOutOfSpaceRollsBackClaims(t *testing.T) {
	h, region := newFormattedRegion(t, 64*1024)

	freeBefore := h.countFreeBlocks()
	data := make([]byte, payloadCapacity*int(freeBefore+1))

	_, errno := h.chainWrite(data)
	if errno != ENOSPC {
		t.Fatalf("expected ENOSPC, got %v", errno)
	}

	for i := uint64(0); i < h.numBlocks; i++ {
		off := h.blockOffset(i)
		if blockInUse(region, off) && off != h.rootInodeBlockOffsetForTest() {
			t.Fatalf("block %d left marked in-use after rollback", i)
		}
	}
}

// rootInodeBlockOffsetForTest exposes the root's first block so the rollback
// test can tell a pre-existing in-use block (the root directory's) from a
// leaked claim.
func (h *Handle) rootInodeBlockOffsetForTest() offset {
	return getRawInode(h.Region, h.rootInodeOffset()).firstBlock
}

func TestCountFreeBlocksAccountsForRootBlock(t *testing.T) {
	h, _ := newFormattedRegion(t, 64*1024)

	total := h.numBlocks
	free := h.countFreeBlocks()
	if free != total-1 {
		t.Fatalf("expected %d free blocks with only the root directory formatted, got %d", total-1, free)
	}
}

func TestChainReadDetectsCycle(t *testing.T) {
	h, region := newFormattedRegion(t, 64*1024)

	a := h.blockOffset(1)
	b := h.blockOffset(2)
	setBlockInUse(region, a, true)
	setBlockInUse(region, b, true)
	setBlockPayloadUsed(region, a, 0)
	setBlockPayloadUsed(region, b, 0)
	setBlockNext(region, a, b)
	setBlockNext(region, b, a) // cycle

	if _, errno := h.chainRead(a); errno != EFAULT {
		t.Fatalf("expected EFAULT on cyclic chain, got %v", errno)
	}
}
