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

// Errno is the closed set of failure codes an operation in this package can
// report. It mirrors the handful of kernel errno values the spec's host is
// expected to translate into its own error convention, the way
// github.com/jacobsa/fuse's errors.go wraps kernel errno constants for its
// callers rather than handing back raw syscall numbers.
type Errno int

// Success is the zero Errno: the value every operation in this package
// returns when it does not fail.
const Success Errno = errnoNone

const (
	// errnoNone is the zero value, never returned on a failing operation.
	errnoNone Errno = iota

	// EFAULT: the region pointer/slice is unusable, or an offset read back
	// from the image doesn't fall inside its expected segment.
	EFAULT

	// ENOENT: a path didn't resolve to an inode.
	ENOENT

	// EEXIST: a create operation's target name already exists in its parent.
	EEXIST

	// EINVAL: bad argument - an invalid filename, a path that doesn't start
	// with '/', or an operation aimed at the wrong kind of inode.
	EINVAL

	// ENOTDIR: an operation requiring a directory found a regular file.
	ENOTDIR

	// ENOTEMPTY: rmdir on a directory whose payload is non-empty.
	ENOTEMPTY

	// EFBIG: a read or write offset exceeds the current payload size.
	EFBIG

	// ENOSPC: the block pool could not satisfy an allocation. The reference
	// implementation this spec was distilled from returns EINVAL here; ENOSPC
	// is the POSIX-conventional code and the one this package returns.
	ENOSPC
)

func (e Errno) Error() string {
	switch e {
	case errnoNone:
		return "no error"
	case EFAULT:
		return "EFAULT: invalid region"
	case ENOENT:
		return "ENOENT: no such file or directory"
	case EEXIST:
		return "EEXIST: file exists"
	case EINVAL:
		return "EINVAL: invalid argument"
	case ENOTDIR:
		return "ENOTDIR: not a directory"
	case ENOTEMPTY:
		return "ENOTEMPTY: directory not empty"
	case EFBIG:
		return "EFBIG: offset beyond end of file"
	case ENOSPC:
		return "ENOSPC: no space left in region"
	default:
		return fmt.Sprintf("Errno(%d)", int(e))
	}
}
