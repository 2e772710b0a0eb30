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

package main

import (
	"fmt"
	"os"

	"github.com/detailyang/go-fallocate"
	"golang.org/x/sys/unix"
)

// boundRegion is a memory-mapped region together with the file it is backed
// by (nil for an anonymous, throwaway region) and the advisory lock that
// makes this process the region's single writer.
type boundRegion struct {
	data []byte
	file *os.File
}

// openRegion mmaps a region of the given size backed by path, creating and
// preallocating the file if it doesn't exist yet. An empty path yields an
// anonymous region, useful for --backing_file-less smoke testing.
func openRegion(backingPath string, size int64) (*boundRegion, error) {
	if backingPath == "" {
		data, err := unix.Mmap(
			-1, 0, int(size),
			unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_SHARED|unix.MAP_ANON)
		if err != nil {
			return nil, fmt.Errorf("mmap anonymous region: %w", err)
		}
		return &boundRegion{data: data}, nil
	}

	f, err := os.OpenFile(backingPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", backingPath, err)
	}

	// A single-writer lock: one regionfsmount process per backing file.
	// Released automatically when the fd is closed on exit.
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: already mounted elsewhere? %w", backingPath, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", backingPath, err)
	}
	if fi.Size() < size {
		if err := fallocate.Fallocate(f, 0, size); err != nil {
			// Not every backing filesystem supports fallocate(2) (tmpfs, some
			// network filesystems); fall back to Truncate, which at least
			// reserves the logical size without guaranteeing blocks.
			if err := f.Truncate(size); err != nil {
				f.Close()
				return nil, fmt.Errorf("truncate %s to %d: %w", backingPath, size, err)
			}
		}
	}

	data, err := unix.Mmap(
		int(f.Fd()), 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", backingPath, err)
	}

	return &boundRegion{data: data, file: f}, nil
}

// close unmaps the region and, for file-backed regions, msyncs and closes
// the backing file - releasing the flock acquired in openRegion.
func (r *boundRegion) close() error {
	if err := unix.Msync(r.data, unix.MS_SYNC); err != nil && r.file != nil {
		return fmt.Errorf("msync: %w", err)
	}
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
