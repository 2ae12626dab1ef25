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

//go:build !unix

package sysproc

import (
	"os"
	"syscall"
)

func Attr(group bool) *syscall.SysProcAttr {
	return nil
}

func Terminate(p *os.Process) error {
	return p.Kill()
}

// KillGroup only kills p itself.
func KillGroup(p *os.Process) error {
	if e := p.Kill(); !Done(e) {
		return e
	}
	return nil
}

func isNoProcess(error) bool {
	return false
}
