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

// Package subvisor hosts many independently built web applications behind
// a single public endpoint.
//
// A primary process (the Supervisor) spawns one worker process per
// deployment in the registry, plus one worker running the subdomain router
// and one running the landing site.  Workers are separate operating system
// processes, so a crash in one application cannot take down its siblings.
//
// The restart policy is deliberately simple.  A worker that exits with a
// non-zero status is replaced by a new worker carrying the same Tag.  A
// worker that exits with status zero believes its job is done, which never
// happens in a healthy system; the Supervisor treats that as fatal and
// terminates the whole process tree with a non-zero status.
//
// Workers retire themselves after a randomized delay (see
// SelfTerminationDelay), exiting with status 1 so that the Supervisor
// replaces them.  This bounds memory growth in long running application
// servers without restarting every worker at the same instant.
package subvisor
