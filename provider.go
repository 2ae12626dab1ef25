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

package subvisor

// Process is a running worker as seen by the Supervisor.  It is used as the
// key of the Supervisor's handle table, so implementations must be
// comparable; pointer types are the natural choice.
type Process interface {
	// Pid returns the operating system process id.
	Pid() int

	// Wait blocks until the process has exited, and returns its exit
	// status.  A process killed by a signal reports a non-zero status.
	// Wait is called exactly once, by the Supervisor.
	Wait() int

	// Kill terminates the process immediately.  Killing a process that
	// has already exited is not an error.
	Kill() error
}

// Launcher starts worker processes.  The Supervisor calls Launch with its
// lock held, so Launch must not call back into the Supervisor.
type Launcher interface {
	Launch(tag Tag) (Process, error)
}

// outputter is implemented by processes that retain their recent output.
type outputter interface {
	Output() *OutputLog
}
