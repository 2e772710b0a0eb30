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

package regionfs_test

import (
	"testing"
	"time"

	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
	"github.com/jacobsa/timeutil"

	"github.com/jacobsa/regionfs"
)

func TestOps(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

type OpsTest struct {
	Clock  timeutil.SimulatedClock
	FS     *regionfs.FS
	Region []byte
}

func init() { RegisterTestSuite(&OpsTest{}) }

func (t *OpsTest) SetUp(ti *TestInfo) {
	t.Clock.SetTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	t.FS = regionfs.NewFS(&t.Clock)
	t.Region = make([]byte, 256*1024)
}

////////////////////////////////////////////////////////////////////////
// Test functions
////////////////////////////////////////////////////////////////////////

func (t *OpsTest) ContentsOfEmptyFileSystem() {
	names, errno := t.FS.Readdir(t.Region, "/")

	AssertEq(regionfs.Success, errno)
	ExpectThat(names, ElementsAre())
}

func (t *OpsTest) MkdirMknodWriteReadRoundTrip() {
	AssertEq(regionfs.Success, t.FS.Mkdir(t.Region, "/dir"))
	AssertEq(regionfs.Success, t.FS.Mknod(t.Region, "/dir/leaf"))

	data := []byte("hello, region")
	n, errno := t.FS.Write(t.Region, "/dir/leaf", data, len(data), 0)
	AssertEq(regionfs.Success, errno)
	AssertEq(len(data), n)

	buf := make([]byte, 64)
	n, errno = t.FS.Read(t.Region, "/dir/leaf", buf, len(buf), 0)
	AssertEq(regionfs.Success, errno)
	AssertEq(len(data), n)
	ExpectEq(string(data), string(buf[:n]))

	names, errno := t.FS.Readdir(t.Region, "/dir")
	AssertEq(regionfs.Success, errno)
	ExpectThat(names, ElementsAre("leaf"))

	attr, errno := t.FS.Getattr(t.Region, "/dir/leaf", 0, 0)
	AssertEq(regionfs.Success, errno)
	ExpectEq(uint64(len(data)), attr.Size)
}

func (t *OpsTest) MknodAlreadyExists() {
	AssertEq(regionfs.Success, t.FS.Mknod(t.Region, "/leaf"))
	ExpectEq(regionfs.EEXIST, t.FS.Mknod(t.Region, "/leaf"))
}

func (t *OpsTest) MkdirAlreadyExists() {
	AssertEq(regionfs.Success, t.FS.Mkdir(t.Region, "/sub"))
	ExpectEq(regionfs.EEXIST, t.FS.Mkdir(t.Region, "/sub"))
}

func (t *OpsTest) RmdirNonEmptyThenUnlinkThenRmdir() {
	AssertEq(regionfs.Success, t.FS.Mkdir(t.Region, "/sub"))
	AssertEq(regionfs.Success, t.FS.Mknod(t.Region, "/sub/leaf"))

	ExpectEq(regionfs.ENOTEMPTY, t.FS.Rmdir(t.Region, "/sub"))

	AssertEq(regionfs.Success, t.FS.Unlink(t.Region, "/sub/leaf"))
	AssertEq(regionfs.Success, t.FS.Rmdir(t.Region, "/sub"))

	_, errno := t.FS.Getattr(t.Region, "/sub", 0, 0)
	ExpectEq(regionfs.ENOENT, errno)
}

func (t *OpsTest) LargeFileRoundTrips() {
	AssertEq(regionfs.Success, t.FS.Mknod(t.Region, "/big"))

	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(i)
	}

	n, errno := t.FS.Write(t.Region, "/big", data, len(data), 0)
	AssertEq(regionfs.Success, errno)
	AssertEq(len(data), n)

	buf := make([]byte, len(data))
	n, errno = t.FS.Read(t.Region, "/big", buf, len(buf), 0)
	AssertEq(regionfs.Success, errno)
	AssertEq(len(data), n)
	ExpectTrue(string(buf) == string(data))
}

func (t *OpsTest) WriteAtOffsetConcatenatesPrefix() {
	AssertEq(regionfs.Success, t.FS.Mknod(t.Region, "/f"))

	initial := []byte("0123456789AB")
	_, errno := t.FS.Write(t.Region, "/f", initial, len(initial), 0)
	AssertEq(regionfs.Success, errno)

	tail := []byte("XYZ")
	n, errno := t.FS.Write(t.Region, "/f", tail, len(tail), 11)
	AssertEq(regionfs.Success, errno)
	AssertEq(len(tail), n)

	buf := make([]byte, 64)
	n, errno = t.FS.Read(t.Region, "/f", buf, len(buf), 0)
	AssertEq(regionfs.Success, errno)
	ExpectEq("0123456789AXYZ", string(buf[:n]))
}

func (t *OpsTest) WritePastEndOfFileFails() {
	AssertEq(regionfs.Success, t.FS.Mknod(t.Region, "/f"))

	buf := []byte("x")
	_, errno := t.FS.Write(t.Region, "/f", buf, len(buf), 5)
	ExpectEq(regionfs.EFBIG, errno)
}

func (t *OpsTest) ReadPastEndOfFileFails() {
	AssertEq(regionfs.Success, t.FS.Mknod(t.Region, "/f"))

	buf := make([]byte, 16)
	_, errno := t.FS.Read(t.Region, "/f", buf, len(buf), 5)
	ExpectEq(regionfs.EFBIG, errno)
}

func (t *OpsTest) ReadAtExactEndReturnsZero() {
	AssertEq(regionfs.Success, t.FS.Mknod(t.Region, "/f"))
	data := []byte("abc")
	_, errno := t.FS.Write(t.Region, "/f", data, len(data), 0)
	AssertEq(regionfs.Success, errno)

	buf := make([]byte, 16)
	n, errno := t.FS.Read(t.Region, "/f", buf, len(buf), int64(len(data)))
	AssertEq(regionfs.Success, errno)
	ExpectEq(0, n)
}

func (t *OpsTest) RenameAcrossDirectories() {
	AssertEq(regionfs.Success, t.FS.Mkdir(t.Region, "/a"))
	AssertEq(regionfs.Success, t.FS.Mkdir(t.Region, "/b"))
	AssertEq(regionfs.Success, t.FS.Mknod(t.Region, "/a/leaf"))

	data := []byte("payload")
	_, errno := t.FS.Write(t.Region, "/a/leaf", data, len(data), 0)
	AssertEq(regionfs.Success, errno)

	AssertEq(regionfs.Success, t.FS.Rename(t.Region, "/a/leaf", "/b/leaf"))

	_, errno = t.FS.Getattr(t.Region, "/a/leaf", 0, 0)
	ExpectEq(regionfs.ENOENT, errno)

	buf := make([]byte, 64)
	n, errno := t.FS.Read(t.Region, "/b/leaf", buf, len(buf), 0)
	AssertEq(regionfs.Success, errno)
	ExpectEq(string(data), string(buf[:n]))

	namesA, errno := t.FS.Readdir(t.Region, "/a")
	AssertEq(regionfs.Success, errno)
	ExpectThat(namesA, ElementsAre())
}

func (t *OpsTest) TruncateGrowsAndShrinks() {
	AssertEq(regionfs.Success, t.FS.Mknod(t.Region, "/f"))
	data := []byte("hello")
	_, errno := t.FS.Write(t.Region, "/f", data, len(data), 0)
	AssertEq(regionfs.Success, errno)

	AssertEq(regionfs.Success, t.FS.Truncate(t.Region, "/f", 8))
	attr, errno := t.FS.Getattr(t.Region, "/f", 0, 0)
	AssertEq(regionfs.Success, errno)
	ExpectEq(uint64(8), attr.Size)

	buf := make([]byte, 8)
	n, errno := t.FS.Read(t.Region, "/f", buf, len(buf), 0)
	AssertEq(regionfs.Success, errno)
	ExpectEq("hello\x00\x00\x00", string(buf[:n]))

	AssertEq(regionfs.Success, t.FS.Truncate(t.Region, "/f", 2))
	attr, errno = t.FS.Getattr(t.Region, "/f", 0, 0)
	AssertEq(regionfs.Success, errno)
	ExpectEq(uint64(2), attr.Size)
}

func (t *OpsTest) UtimensAcceptsEitherTimestampAsNil() {
	AssertEq(regionfs.Success, t.FS.Mknod(t.Region, "/f"))

	newAtime := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	AssertEq(regionfs.Success, t.FS.Utimens(t.Region, "/f", &newAtime, nil))

	attr, errno := t.FS.Getattr(t.Region, "/f", 0, 0)
	AssertEq(regionfs.Success, errno)
	ExpectTrue(attr.Atime.Equal(newAtime))
}

func (t *OpsTest) Statfs() {
	info, errno := t.FS.Statfs(t.Region)
	AssertEq(regionfs.Success, errno)
	ExpectTrue(info.Blocks > 0)
	ExpectTrue(info.BlocksFree <= info.Blocks)
	ExpectEq(uint64(regionfs.NameMax), info.NameMax)
}
