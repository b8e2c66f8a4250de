package klog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"slices"
	"time"
)

// Log is one decoded JSON record. Fields the syscall layer does not
// always set are zero when absent.
type Log struct {
	Time  time.Time  `json:"time"`
	Level slog.Level `json:"level"`
	Msg   string     `json:"msg"`
	Seq   int64      `json:"seq"`
	Pid   int        `json:"pid"`
	Sys   string     `json:"sys"`
	Ret   int64      `json:"ret"`
	Errno string     `json:"errno"`
}

// ParseLog decodes newline-separated JSON records, skipping lines that
// do not decode, and returns them ordered by sequence number.
func ParseLog(logs []byte) []*Log {
	var out []*Log
	for _, line := range bytes.Split(logs, []byte("\n")) {
		var log Log
		if err := json.Unmarshal(line, &log); err != nil {
			continue
		}
		out = append(out, &log)
	}
	slices.SortStableFunc(out, func(a, b *Log) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out
}
