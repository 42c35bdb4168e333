package logging

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// LogEntry represents a log entry handed to a sink.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Service   string
	Message   string
	Fields    map[string]string
	Caller    string
}

// Sink is an interface for components that receive log entries.
type Sink interface {
	// Write records a log entry. It must not block the caller.
	Write(entry LogEntry)
}

// MemorySink keeps entries at or above MinLevel in memory, up to Limit.
// The run report reads it to list warnings raised during a migration.
type MemorySink struct {
	minLevel Level
	limit    int

	mu      sync.Mutex
	entries []LogEntry
	dropped int
}

// NewMemorySink creates a sink keeping at most limit entries (0 means 10000).
func NewMemorySink(minLevel Level, limit int) *MemorySink {
	if limit <= 0 {
		limit = 10000
	}
	return &MemorySink{minLevel: minLevel, limit: limit}
}

// Write implements Sink.
func (s *MemorySink) Write(entry LogEntry) {
	if parseLevel(entry.Level) < parseLevel(s.minLevel) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) >= s.limit {
		s.dropped++
		return
	}
	s.entries = append(s.entries, entry)
}

// Entries returns a copy of the collected entries in arrival order.
func (s *MemorySink) Entries() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Dropped returns how many entries were discarded after the limit was reached.
func (s *MemorySink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// getCaller returns file:line of the caller at the given stack depth.
func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			file = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%s:%d", file, line)
}
