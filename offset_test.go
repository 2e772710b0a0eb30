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

import "testing"

func TestSegmentContains(t *testing.T) {
	seg := segment{start: 10, end: 20}

	cases := []struct {
		name   string
		off    offset
		length int
		want   bool
	}{
		{"fits exactly", 10, 10, true},
		{"fits inside", 12, 4, true},
		{"starts before segment", 9, 1, false},
		{"ends past segment", 15, 6, false},
		{"negative length", 10, -1, false},
		{"zero length at end", 20, 0, true},
		{"overflow near max offset", offset(1<<64 - 1), 5, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := seg.contains(c.off, c.length); got != c.want {
				t.Errorf("contains(%d, %d) = %v, want %v", c.off, c.length, got, c.want)
			}
		})
	}
}

func TestSliceAt(t *testing.T) {
	region := make([]byte, 32)
	for i := range region {
		region[i] = byte(i)
	}
	seg := segment{start: 8, end: 24}

	t.Run("within segment", func(t *testing.T) {
		b, ok := sliceAt(region, seg, 10, 4)
		if !ok {
			t.Fatalf("expected ok")
		}
		want := []byte{10, 11, 12, 13}
		for i := range want {
			if b[i] != want[i] {
				t.Errorf("byte %d = %d, want %d", i, b[i], want[i])
			}
		}
	})

	t.Run("before segment", func(t *testing.T) {
		if _, ok := sliceAt(region, seg, 0, 4); ok {
			t.Errorf("expected !ok")
		}
	})

	t.Run("past segment", func(t *testing.T) {
		if _, ok := sliceAt(region, seg, 20, 8); ok {
			t.Errorf("expected !ok")
		}
	})
}
