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
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 200
)

type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// OutputLog is a bounded ring of output lines.  The Supervisor keeps one
// per worker so that the last words of a crashed worker can be reported
// alongside its exit status.
type OutputLog struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	mx         sync.Mutex
}

// Write implements io.Writer.  Input is split into lines, and each line
// becomes a record.
func (log *OutputLog) Write(b []byte) (int, error) {
	str := strings.Trim(string(b), "\n")
	log.mx.Lock()
	if log.maxRecords == 0 {
		log.maxRecords = MaxLogRecords
	}
	if log.records == nil {
		log.records = make([]LogRecord, log.maxRecords)
	}
	for _, line := range strings.Split(str, "\n") {
		idx := log.numRecords % log.maxRecords
		log.id++
		log.records[idx].Text = line
		log.records[idx].Id = log.id
		log.records[idx].Time = time.Now()
		// NB: numRecords may be more than maxRecords once we have
		// looped; it is really the next index.
		log.numRecords++
	}
	log.mx.Unlock()
	return len(b), nil
}

// GetRecords returns the stored records, oldest first, along with the id
// of the newest record.  If last equals that id, nothing has changed and
// nil is returned.
func (log *OutputLog) GetRecords(last int64) ([]LogRecord, int64) {
	log.mx.Lock()
	defer log.mx.Unlock()
	if log.id == last {
		return nil, last
	}
	cnt := log.numRecords
	if cnt > log.maxRecords {
		cnt = log.maxRecords
	}
	recs := make([]LogRecord, 0, cnt)
	index := log.numRecords - cnt
	for j := 0; j < cnt; j++ {
		recs = append(recs, log.records[index%log.maxRecords])
		index++
	}
	return recs, log.id
}

// Tail returns the text of the last n lines, oldest first.
func (log *OutputLog) Tail(n int) []string {
	recs, _ := log.GetRecords(-1)
	if n < len(recs) {
		recs = recs[len(recs)-n:]
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, r.Text)
	}
	return lines
}

// NewOutputLog returns an OutputLog holding at most max lines.  A
// non-positive max selects MaxLogRecords.
func NewOutputLog(max int) *OutputLog {
	if max <= 0 {
		max = MaxLogRecords
	}
	return &OutputLog{maxRecords: max}
}
