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

import "fmt"

// CheckRegionInvariants walks an entire bound region and reports a
// violation of the data-model invariants spec.md §3 and §4 describe: the
// root is always inode 0 and always a directory, every in-use inode's first
// block lies in the block segment, no two inodes share a block, and a
// directory's child-count matches the number of subdirectory entries
// actually present in its payload. It is the on-region analogue of
// samples/memfs's checkInvariants, meant to be wired in by debug builds
// (the host, not this package, decides when to call it - the core never
// calls its own invariant checker, matching the "no internal locking"
// design: whoever serializes access also owns deciding how often to pay for
// self-checking).
func CheckRegionInvariants(region []byte) error {
	h, errno := bind(region, nil)
	if errno != errnoNone {
		return fmt.Errorf("bind: %v", errno)
	}

	root := getRawInode(region, h.rootInodeOffset())
	if !root.isDir {
		return fmt.Errorf("inode 0 is not a directory")
	}
	if root.firstBlock == nullOffset {
		return fmt.Errorf("inode 0 (root) is marked free")
	}

	blockOwner := make(map[offset]uint64)

	for i := uint64(0); i < h.numInodes; i++ {
		off := h.inodeOffset(i)
		in := getRawInode(region, off)
		if in.firstBlock == nullOffset {
			continue
		}

		seen := make(map[offset]bool)
		cur := in.firstBlock
		total := uint64(0)
		for cur != nullOffset {
			if seen[cur] {
				return fmt.Errorf("inode %d: cyclic block chain at %d", i, cur)
			}
			seen[cur] = true

			if _, ok := h.blockIndexAt(cur); !ok {
				return fmt.Errorf("inode %d: block offset %d outside block segment", i, cur)
			}
			if owner, claimed := blockOwner[cur]; claimed {
				return fmt.Errorf("block %d claimed by both inode %d and inode %d", cur, owner, i)
			}
			blockOwner[cur] = i

			if !blockInUse(region, cur) {
				return fmt.Errorf("inode %d: block %d is on its chain but marked free", i, cur)
			}
			total += blockPayloadUsed(region, cur)
			cur = blockNext(region, cur)
		}
		if total != in.payloadSize {
			return fmt.Errorf("inode %d: chain holds %d bytes, payloadSize says %d", i, total, in.payloadSize)
		}

		if in.isDir {
			payload, errno := h.readPayload(off)
			if errno != errnoNone {
				return fmt.Errorf("inode %d: readPayload: %v", i, errno)
			}
			subdirs := uint64(0)
			for _, name := range listChildNames(payload) {
				childOff, errno := h.lookupChild(off, name)
				if errno != errnoNone {
					return fmt.Errorf("inode %d: child %q: %v", i, name, errno)
				}
				if getRawInode(region, childOff).isDir {
					subdirs++
				}
			}
			if subdirs != in.childCount {
				return fmt.Errorf("inode %d: childCount %d, found %d subdirectory entries", i, in.childCount, subdirs)
			}
		}
	}

	return nil
}
