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

// Package regionfs formats and operates a POSIX-ish hierarchical filesystem
// that lives entirely inside a single contiguous region of caller-supplied
// memory.
//
// The region may back an anonymous mapping (ephemeral) or a file (persistent
// across process lifetimes). regionfs itself never acquires or maps memory:
// callers hand it a []byte and it organizes bytes inside that slice. Inodes
// and directory entries refer to each other by byte offset from the start of
// the region rather than by pointer, so a region's bytes can be unmapped,
// persisted and remapped (even at a different address) without becoming
// invalid.
//
// Every exported operation in this package is synchronous and touches only
// the region passed to it; callers that share a region across goroutines or
// processes are responsible for serializing calls to it. FUSE delivers
// requests concurrently, so a FUSE host must hold its own lock around each
// call. See cmd/regionfsmount for a complete host that maps a region,
// enforces that lock, and serves it over FUSE.
package regionfs
