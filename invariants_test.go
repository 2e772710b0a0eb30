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

	"github.com/jacobsa/timeutil"
)

func TestCheckRegionInvariantsOnHealthyRegion(t *testing.T) {
	region := make([]byte, 64*1024)
	h, errno := bind(region, timeutil.RealClock())
	if errno != errnoNone {
		t.Fatalf("bind: %v", errno)
	}
	root := h.rootInodeOffset()

	subOff, errno := h.dirNew(root, "sub")
	if errno != errnoNone {
		t.Fatalf("dirNew: %v", errno)
	}
	if _, errno := h.fileNew(subOff, "leaf"); errno != errnoNone {
		t.Fatalf("fileNew: %v", errno)
	}

	if err := CheckRegionInvariants(region); err != nil {
		t.Fatalf("CheckRegionInvariants: %v", err)
	}
}

func TestCheckRegionInvariantsCatchesChildCountMismatch(t *testing.T) {
	region := make([]byte, 64*1024)
	h, errno := bind(region, timeutil.RealClock())
	if errno != errnoNone {
		t.Fatalf("bind: %v", errno)
	}
	root := h.rootInodeOffset()

	if _, errno := h.dirNew(root, "sub"); errno != errnoNone {
		t.Fatalf("dirNew: %v", errno)
	}

	rootIn := getRawInode(region, root)
	rootIn.childCount = 5 // corrupt
	setRawInode(region, root, rootIn)

	if err := CheckRegionInvariants(region); err == nil {
		t.Fatalf("expected CheckRegionInvariants to catch the corrupted child count")
	}
}
