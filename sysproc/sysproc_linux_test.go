// Copyright 2024 The Subvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sysproc

import (
	"bufio"
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func running(pid int) bool {
	b, e := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if e != nil {
		return false
	}
	if i := bytes.LastIndexByte(b, ')'); i >= 0 && i+2 < len(b) {
		return b[i+2] != 'Z'
	}
	return true
}

func TestKillGroup(t *testing.T) {
	Convey("Killing a group leader's group kills its children", t, func() {
		cmd := exec.Command("/bin/sh", "-c", `sleep 30 & echo "$!"; wait`)
		cmd.SysProcAttr = Attr(true)
		out, e := cmd.StdoutPipe()
		So(e, ShouldBeNil)
		So(cmd.Start(), ShouldBeNil)

		line, e := bufio.NewReader(out).ReadString('\n')
		So(e, ShouldBeNil)
		child, e := strconv.Atoi(strings.TrimSpace(line))
		So(e, ShouldBeNil)
		So(running(child), ShouldBeTrue)

		So(KillGroup(cmd.Process), ShouldBeNil)
		So(cmd.Wait(), ShouldNotBeNil)

		gone := false
		for i := 0; i < 100 && !gone; i++ {
			gone = !running(child)
			time.Sleep(20 * time.Millisecond)
		}
		So(gone, ShouldBeTrue)

		Convey("And killing it again is not an error", func() {
			So(KillGroup(cmd.Process), ShouldBeNil)
		})
	})

	Convey("Children die with their parent", t, func() {
		So(Attr(false).Pdeathsig, ShouldEqual, syscall.SIGKILL)
		So(Attr(false).Setpgid, ShouldBeFalse)
		So(Attr(true).Setpgid, ShouldBeTrue)
	})
}
