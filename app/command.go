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

package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/subvisor/subvisor/registry"
	"github.com/subvisor/subvisor/sysproc"
)

// DefaultStart is run for entry server deployments that name no command.
const DefaultStart = "pnpm run start"

var ErrCommandExited = errors.New("entry server exited")

// Command builds the command for a deployment that ships its own server.
// It runs through the shell in the deployment's directory, with PORT set to
// its service port.
//
// The shell stays in the worker's process group, so that when the worker
// exits the Supervisor kills the server and everything it started along
// with it.  Where supported the shell also dies with the worker.
func Command(ctx context.Context, d registry.Deployment) *exec.Cmd {
	line := d.Start
	if line == "" {
		line = DefaultStart
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", line)
	cmd.Dir = d.RootPath
	cmd.Env = append(os.Environ(), "PORT="+strconv.Itoa(d.ServicePort))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = sysproc.Attr(false)
	return cmd
}

// RunCommand starts the entry server and waits for it.  It never returns
// nil: the command exiting, for any reason, ends the worker.
func RunCommand(ctx context.Context, cmd *exec.Cmd, logger zerolog.Logger) error {
	if e := cmd.Start(); e != nil {
		return fmt.Errorf("starting %q: %w", cmd.String(), e)
	}
	logger.Info().
		Int("pid", cmd.Process.Pid).
		Str("command", cmd.String()).
		Str("dir", cmd.Dir).
		Msg("entry server started")

	e := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if e != nil {
		return fmt.Errorf("%w: %v", ErrCommandExited, e)
	}
	return fmt.Errorf("%w: status 0", ErrCommandExited)
}
