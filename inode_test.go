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
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
)

func TestNewInodeStampsBothTimestamps(t *testing.T) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Unix(1000, 0))
	region := make([]byte, 64*1024)
	h, errno := bind(region, clock)
	if errno != errnoNone {
		t.Fatalf("bind: %v", errno)
	}

	clock.SetTime(time.Unix(2000, 500))
	off, errno := h.newInode("greeting", false)
	if errno != errnoNone {
		t.Fatalf("newInode: %v", errno)
	}

	in := getRawInode(region, off)
	if !inodeATime(in).Equal(time.Unix(2000, 500)) {
		t.Errorf("atime = %v, want 2000s+500ns", inodeATime(in))
	}
	if !inodeMTime(in).Equal(time.Unix(2000, 500)) {
		t.Errorf("mtime = %v, want 2000s+500ns", inodeMTime(in))
	}
	if in.name != "greeting" {
		t.Errorf("name = %q, want greeting", in.name)
	}
}

func TestWritePayloadPreservesOldChainOnFailure(t *testing.T) {
	region := make([]byte, 32*1024)
	h, errno := bind(region, timeutil.RealClock())
	if errno != errnoNone {
		t.Fatalf("bind: %v", errno)
	}

	off, errno := h.newInode("f", false)
	if errno != errnoNone {
		t.Fatalf("newInode: %v", errno)
	}

	original := []byte("hello, world")
	if errno := h.writePayload(off, original); errno != errnoNone {
		t.Fatalf("writePayload: %v", errno)
	}

	// Write a payload needing one block more than remain free so the write
	// cannot allocate, then confirm the original payload survived intact.
	free := h.countFreeBlocks()
	huge := make([]byte, payloadCapacity*int(free+1))
	if errno := h.writePayload(off, huge); errno != ENOSPC {
		t.Fatalf("expected ENOSPC, got %v", errno)
	}

	got, errno := h.readPayload(off)
	if errno != errnoNone {
		t.Fatalf("readPayload after failed write: %v", errno)
	}
	if string(got) != string(original) {
		t.Fatalf("payload corrupted by failed write: got %q, want %q", got, original)
	}
}

func TestFreeInodeThenReuseSlot(t *testing.T) {
	region := make([]byte, 32*1024)
	h, errno := bind(region, timeutil.RealClock())
	if errno != errnoNone {
		t.Fatalf("bind: %v", errno)
	}

	off, errno := h.newInode("temp", false)
	if errno != errnoNone {
		t.Fatalf("newInode: %v", errno)
	}
	if errno := h.freeInode(off); errno != errnoNone {
		t.Fatalf("freeInode: %v", errno)
	}

	reused, errno := h.newInode("temp2", false)
	if errno != errnoNone {
		t.Fatalf("newInode after free: %v", errno)
	}
	if reused != off {
		t.Errorf("expected freed slot %d to be reused, got %d", off, reused)
	}
}
