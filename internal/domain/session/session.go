// Package session defines the per-request progress-tracking types consumed
// by the streaming endpoints.
package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a live session.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Level is the severity of a log entry.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Entry is one immutable progress log record.
type Entry struct {
	Time    time.Time
	Step    string
	Level   Level
	Payload string
}

// NewEntry builds an Entry, serializing non-string payloads as indented JSON
// for display.
func NewEntry(step string, payload any, level Level) Entry {
	var text string
	switch v := payload.(type) {
	case string:
		text = v
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			text = fmt.Sprintf("%v", v)
		} else {
			text = string(data)
		}
	}
	return Entry{
		Time:    time.Now(),
		Step:    step,
		Level:   level,
		Payload: text,
	}
}

// Render formats the entry for the progress stream.
func (e Entry) Render() string {
	return fmt.Sprintf("\n[%s %s] %s:\n%s",
		e.Time.Format("2006-01-02 15:04:05"), e.Level, e.Step, e.Payload)
}

// Sink receives progress entries from pipeline components. A nil Sink is
// valid everywhere one is accepted.
type Sink interface {
	Log(step string, payload any, level Level)
}
