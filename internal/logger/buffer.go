// internal/logger/buffer.go
package logger

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// LogEntry represents a single log entry in the buffer
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Logger    string         `json:"logger,omitempty"`
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"-"`
}

// Buffer keeps the most recent log entries in a ring. It is an io.Writer fed
// JSON lines by a zap core, so a terminal UI can render logs itself.
type Buffer struct {
	mu      sync.Mutex
	ring    []LogEntry
	next    int
	wrapped bool
	total   uint64
}

// NewBuffer creates a buffer holding up to size entries.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 500
	}
	return &Buffer{ring: make([]LogEntry, size)}
}

// Write parses one or more JSON encoded entries. Lines that are not JSON are
// kept verbatim as the message.
func (b *Buffer) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		b.Add(parseEntry(line))
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (b *Buffer) Sync() error { return nil }

// Add appends an entry, overwriting the oldest one when full.
func (b *Buffer) Add(e LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring[b.next] = e
	b.next = (b.next + 1) % len(b.ring)
	if b.next == 0 {
		b.wrapped = true
	}
	b.total++
}

// Recent returns up to limit entries, oldest first. limit <= 0 returns all.
func (b *Buffer) Recent(limit int) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.next
	start := 0
	if b.wrapped {
		count = len(b.ring)
		start = b.next
	}
	if limit > 0 && limit < count {
		start += count - limit
		count = limit
	}

	out := make([]LogEntry, count)
	for i := 0; i < count; i++ {
		out[i] = b.ring[(start+i)%len(b.ring)]
	}
	return out
}

// Total returns the number of entries ever added.
func (b *Buffer) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func parseEntry(line string) LogEntry {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{Timestamp: time.Now(), Level: "INFO", Message: line}
	}

	e := LogEntry{Fields: make(map[string]any)}
	for k, v := range raw {
		s, _ := v.(string)
		switch k {
		case "timestamp":
			e.Timestamp, _ = time.Parse("2006-01-02T15:04:05.000Z0700", s)
		case "level":
			e.Level = s
		case "logger":
			e.Logger = s
		case "msg":
			e.Message = s
		default:
			e.Fields[k] = v
		}
	}
	return e
}
