package telemetry

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept before the oldest is evicted.
const DefaultCapacity = 1000

type Level string

const (
	LevelError Level = "ERROR"
	LevelWarn  Level = "WARN"
	LevelInfo  Level = "INFO"
	LevelDebug Level = "DEBUG"
)

// Levels lists every level in severity order.
var Levels = []Level{LevelError, LevelWarn, LevelInfo, LevelDebug}

// ParseLevel maps a zerolog or user supplied level name onto a Level.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "fatal", "panic":
		return LevelError, true
	case "warn", "warning":
		return LevelWarn, true
	case "info", "success":
		return LevelInfo, true
	case "debug", "trace":
		return LevelDebug, true
	}
	return "", false
}

type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	Module    string                 `json:"module"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Log is a bounded, concurrency-safe ring of entries shared by every
// component of the process. Writes never fail and never block on readers
// for longer than a copy.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	head    int // index of the oldest entry
	size    int
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: make([]Entry, capacity)}
}

func (l *Log) Capacity() int { return len(l.entries) }

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Append stores e, evicting the oldest entry once the buffer is full.
func (l *Log) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.head+l.size)%capacity] = e
		l.size++
		return
	}
	l.entries[l.head] = e
	l.head = (l.head + 1) % capacity
}

// snapshot returns the entries oldest first.
func (l *Log) snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.entries[(l.head+i)%len(l.entries)]
	}
	return out
}

// Recent returns up to n of the newest entries, oldest first. n <= 0 returns all.
func (l *Log) Recent(n int) []Entry {
	return tail(l.snapshot(), n)
}

func (l *Log) ByLevel(level Level, n int) []Entry {
	return l.filter(func(e Entry) bool { return e.Level == level }, n)
}

func (l *Log) ByModule(module string, n int) []Entry {
	return l.filter(func(e Entry) bool { return e.Module == module }, n)
}

// Query combines the level and module filters; an empty value matches all.
func (l *Log) Query(level Level, module string, n int) []Entry {
	return l.filter(func(e Entry) bool {
		return (level == "" || e.Level == level) && (module == "" || e.Module == module)
	}, n)
}

func (l *Log) filter(keep func(Entry) bool, n int) []Entry {
	all := l.snapshot()
	out := all[:0]
	for _, e := range all {
		if keep(e) {
			out = append(out, e)
		}
	}
	return tail(out, n)
}

// Stats counts the entries currently held, per level. Every level is present.
func (l *Log) Stats() map[Level]int {
	stats := make(map[Level]int, len(Levels))
	for _, lv := range Levels {
		stats[lv] = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < l.size; i++ {
		stats[l.entries[(l.head+i)%len(l.entries)].Level]++
	}
	return stats
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		l.entries[i] = Entry{}
	}
	l.head = 0
	l.size = 0
}

// Write accepts one zerolog JSON event per call. Malformed input is kept as
// a raw INFO message; the call always reports success so that a logger
// tee'd into the buffer is never failed by it.
func (l *Log) Write(p []byte) (int, error) {
	l.Append(decodeEvent(p))
	return len(p), nil
}

func decodeEvent(p []byte) Entry {
	var raw map[string]interface{}
	if err := json.Unmarshal(p, &raw); err != nil {
		return Entry{Level: LevelInfo, Message: strings.TrimSpace(string(p))}
	}
	e := Entry{Level: LevelInfo}
	if v, ok := raw["level"].(string); ok {
		if lv, ok := ParseLevel(v); ok {
			e.Level = lv
		}
	}
	if v, ok := raw["component"].(string); ok {
		e.Module = v
	}
	if v, ok := raw["message"].(string); ok {
		e.Message = v
	}
	if v, ok := raw["error"].(string); ok {
		e.Error = v
	}
	if v, ok := raw["time"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			e.Timestamp = ts
		}
	}
	for _, k := range []string{"level", "component", "message", "error", "time"} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		e.Data = raw
	}
	return e
}

func tail(entries []Entry, n int) []Entry {
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
