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

import "strings"

// validFilename enforces spec.md §3's filename rules: length 1..255, no
// byte <= 31 or >= 123 (so control characters, DEL, '{', '|', '}' and '~'
// are all rejected), and none of the bytes the directory encoding reserves
// for itself ('/', ':', ',').
func validFilename(name string) bool {
	if len(name) < 1 || len(name) > NameMax {
		return false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b <= 31 || b >= 123 {
			return false
		}
		switch b {
		case '/', ':', ',':
			return false
		}
	}
	return true
}

// splitPath validates that path is absolute and splits it into its
// '/'-separated components, dropping a tolerated trailing slash. "/" itself
// yields zero components (the root).
func splitPath(path string) ([]string, bool) {
	if len(path) == 0 || path[0] != '/' {
		return nil, false
	}
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		return []string{}, true
	}
	parts := strings.Split(trimmed[1:], "/")
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return nil, false
		}
	}
	return parts, true
}

// splitParentChild splits an absolute path into its parent directory path
// and its final component. It fails for the root path, which has no
// parent.
func splitParentChild(path string) (parentPath, child string, ok bool) {
	parts, ok := splitPath(path)
	if !ok || len(parts) == 0 {
		return "", "", false
	}

	child = parts[len(parts)-1]
	if len(parts) == 1 {
		parentPath = "/"
	} else {
		parentPath = "/" + strings.Join(parts[:len(parts)-1], "/")
	}
	return parentPath, child, true
}
