// Package logbuf keeps the most recent operational log lines in memory and
// fans every new line out to registered listeners.
package logbuf

import (
	"sync"
	"time"

	"renderhub/internal/pkg/logger"
)

// DefaultCapacity is the number of entries retained when New gets zero.
const DefaultCapacity = 200

// TimeFormat renders entry timestamps as RFC 3339 UTC with milliseconds.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Entry is one immutable log line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
	// Line is the formatted "[<ts>] <message>" text, with "ERROR: " before
	// the message for error entries.
	Line string
}

// Listener observes new entries. OnLogEntry is called outside the buffer
// lock, in append order per caller, and must not block.
type Listener interface {
	OnLogEntry(Entry)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Entry)

func (f ListenerFunc) OnLogEntry(e Entry) { f(e) }

// Buffer is a bounded FIFO of entries. Oldest entries are evicted once the
// capacity is reached.
type Buffer struct {
	log *logger.Logger
	now func() time.Time

	mu      sync.RWMutex
	ring    []Entry
	head    int
	size    int
	targets []Listener
}

func New(log *logger.Logger, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Buffer{
		log:  log.WithComponent("logbuf"),
		now:  time.Now,
		ring: make([]Entry, capacity),
	}
}

// Subscribe registers l for every entry appended from now on.
func (b *Buffer) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets = append(b.targets, l)
}

// Append records an informational message.
func (b *Buffer) Append(msg string) Entry {
	return b.append(LevelInfo, msg)
}

// AppendError records an error message.
func (b *Buffer) AppendError(msg string) Entry {
	return b.append(LevelError, msg)
}

func (b *Buffer) append(level Level, msg string) Entry {
	ts := b.now().UTC()
	line := "[" + ts.Format(TimeFormat) + "] "
	if level == LevelError {
		line += "ERROR: "
	}
	e := Entry{Time: ts, Level: level, Message: msg, Line: line + msg}

	b.mu.Lock()
	tail := (b.head + b.size) % len(b.ring)
	b.ring[tail] = e
	if b.size < len(b.ring) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.ring)
	}
	targets := b.targets
	b.mu.Unlock()

	if level == LevelError {
		b.log.Error(msg)
	} else {
		b.log.Info(msg)
	}

	for _, t := range targets {
		t.OnLogEntry(e)
	}
	return e
}

// Entries returns the retained entries, oldest first.
func (b *Buffer) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	return out
}

// ReadAll returns the retained formatted lines, oldest first.
func (b *Buffer) ReadAll() []string {
	entries := b.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line
	}
	return lines
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Buffer) Cap() int {
	return len(b.ring)
}
