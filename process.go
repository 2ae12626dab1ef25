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
	"bytes"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/subvisor/subvisor/sysproc"
)

const (
	EnvTag     = "SUBVISOR_TAG"
	EnvProfile = "SUBVISOR_PROFILE"
)

const (
	// KillGrace is how long a worker has to exit after SIGTERM before its
	// whole process group is killed.
	KillGrace = 5 * time.Second

	// OutputGrace bounds how long output is drained after a worker exits.
	// Descendants may hold its stdout open indefinitely.
	OutputGrace = 2 * time.Second
)

// IsPrimary reports whether this process is the Supervisor, which is the
// case when it was not started with a worker tag.
func IsPrimary() bool {
	return os.Getenv(EnvTag) == ""
}

// ExecLauncher starts workers by executing a program, by default the
// running executable, with the worker's tag and profile in its environment.
// Standard output and standard error of each worker are logged line by
// line, and the most recent lines are retained.
//
// Each worker leads its own process group.  Once a worker exits, anything
// left in its group is killed, so a replacement never competes with the
// leftovers of its predecessor.
type ExecLauncher struct {
	Path    string   // Program to run
	Args    []string // Full argv, including Args[0]
	Env     []string // Base environment; nil means os.Environ()
	Dir     string   // Working directory
	Profile RuntimeProfile
	Logger  zerolog.Logger
	Lines   int // Output lines retained per worker
}

type execProcess struct {
	tag      Tag
	cmd      *exec.Cmd
	out      *OutputLog
	logger   zerolog.Logger
	stdout   *lineLogger
	stderr   *lineLogger
	exited   chan struct{}
	escalate sync.Once
}

// lineLogger records and logs each complete line written to it.  The
// exec package copies one stream into it from a single goroutine.
type lineLogger struct {
	out    *OutputLog
	logger zerolog.Logger
	stream string
	buf    []byte
}

func (l *lineLogger) Write(b []byte) (int, error) {
	l.buf = append(l.buf, b...)
	start := 0
	for {
		i := bytes.IndexByte(l.buf[start:], '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[start : start+i])
		start += i + 1
	}
	l.buf = append(l.buf[:0], l.buf[start:]...)
	return len(b), nil
}

// flush emits a final line that had no newline.
func (l *lineLogger) flush() {
	if len(l.buf) != 0 {
		l.emit(l.buf)
		l.buf = l.buf[:0]
	}
}

func (l *lineLogger) emit(b []byte) {
	if line := strings.TrimRight(string(b), "\r"); len(line) != 0 {
		l.out.Write([]byte(line))
		l.logger.Info().Str("stream", l.stream).Msg(line)
	}
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() int {
	e := p.cmd.Wait()
	p.stdout.flush()
	p.stderr.flush()
	if ke := sysproc.KillGroup(p.cmd.Process); ke != nil {
		p.logger.Warn().Err(ke).Msg("cannot kill leftover processes")
	}
	close(p.exited)

	var ee *exec.ExitError
	switch {
	case e == nil, errors.As(e, &ee):
	case errors.Is(e, exec.ErrWaitDelay):
		p.logger.Warn().Dur("grace", OutputGrace).
			Msg("output still open after exit")
	default:
		p.logger.Warn().Err(e).Msg("wait failed")
	}
	if st := p.cmd.ProcessState; st != nil {
		if code := st.ExitCode(); code != -1 {
			return code
		}
		p.logger.Warn().Str("state", st.String()).Msg("worker killed")
	}
	return -1
}

// Kill sends SIGTERM, and kills the worker's process group if it has not
// exited within KillGrace.
func (p *execProcess) Kill() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	if e := sysproc.Terminate(p.cmd.Process); !sysproc.Done(e) {
		return e
	}
	p.escalate.Do(func() {
		go func() {
			select {
			case <-p.exited:
			case <-time.After(KillGrace):
				p.logger.Warn().Dur("grace", KillGrace).
					Msg("worker ignored SIGTERM")
				if e := sysproc.KillGroup(p.cmd.Process); e != nil {
					p.logger.Error().Err(e).Msg("kill failed")
				}
			}
		}()
	})
	return nil
}

func (p *execProcess) Output() *OutputLog {
	return p.out
}

func (l *ExecLauncher) Launch(tag Tag) (Process, error) {
	cmd := &exec.Cmd{
		Path:      l.Path,
		Args:      append([]string{}, l.Args...),
		Dir:       l.Dir,
		WaitDelay: OutputGrace,
	}
	env := l.Env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = append(make([]string, 0, len(env)+2), env...)
	cmd.Env = append(cmd.Env,
		EnvTag+"="+tag.String(),
		EnvProfile+"="+l.Profile.String())
	cmd.SysProcAttr = sysproc.Attr(true)

	out := NewOutputLog(l.Lines)
	output := l.Logger.With().Str("worker", tag.String()).Logger()
	p := &execProcess{
		tag:    tag,
		cmd:    cmd,
		out:    out,
		stdout: &lineLogger{out: out, logger: output, stream: "stdout"},
		stderr: &lineLogger{out: out, logger: output, stream: "stderr"},
		exited: make(chan struct{}),
	}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	if e := cmd.Start(); e != nil {
		return nil, e
	}
	p.logger = output.With().Int("pid", cmd.Process.Pid).Logger()
	return p, nil
}

// NewExecLauncher returns a launcher that re-executes the running binary.
func NewExecLauncher(profile RuntimeProfile, logger zerolog.Logger) (*ExecLauncher, error) {
	exe, e := os.Executable()
	if e != nil {
		return nil, e
	}
	return &ExecLauncher{
		Path:    exe,
		Args:    append([]string{exe}, os.Args[1:]...),
		Profile: profile,
		Logger:  logger,
	}, nil
}
