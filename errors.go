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

import (
	"errors"

	"github.com/subvisor/subvisor/proxy"
	"github.com/subvisor/subvisor/registry"
)

var (
	ErrRegistryUnavailable   = registry.ErrRegistryUnavailable
	ErrUnknownDeployment     = errors.New("unknown deployment")
	ErrUnknownRole           = errors.New("unknown worker role")
	ErrCannotDoubleSupervise = errors.New("a worker cannot spawn another worker")
	ErrUnexpectedExit        = errors.New("worker exited with status 0")
	ErrBadTag                = errors.New("malformed worker tag")
	ErrUnroutableHost        = proxy.ErrUnroutableHost
	ErrBackendUnreachable    = proxy.ErrBackendUnreachable
)
