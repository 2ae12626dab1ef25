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

// Package sysproc ties child processes to the process that started them.
//
// Workers lead their own process group, so that anything they leave
// behind can be killed together with them.  On Linux children also get
// SIGKILL when their parent dies.  Pdeathsig is tied to the OS thread that
// forked the child, not to the parent process; the Go runtime keeps its
// threads unless a goroutine exits while locked to one, so in practice it
// follows the parent's lifetime.
package sysproc

import (
	"errors"
	"os"
)

// Done reports whether e only says that the target was already gone.
func Done(e error) bool {
	return e == nil || errors.Is(e, os.ErrProcessDone) || isNoProcess(e)
}
