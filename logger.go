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
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns the process logger.  Worker output is captured and
// re-logged by the Supervisor, which adds its own timestamp, so workers
// log without one and without color.
func NewLogger(w io.Writer, level string, role string) zerolog.Logger {
	lvl, e := zerolog.ParseLevel(level)
	if e != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	if role != "primary" {
		output.NoColor = true
		output.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	return zerolog.New(output).Level(lvl).With().
		Timestamp().
		Str("app", "subvisor").
		Str("role", role).
		Logger()
}
