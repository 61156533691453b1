// Package logsink forwards operational log entries to external systems
// without ever blocking the code that produced them.
package logsink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"renderhub/internal/logbuf"
	"renderhub/internal/pkg/logger"
)

// DefaultBuffer is the number of entries a Sink holds before dropping.
const DefaultBuffer = 1024

// Writer delivers one entry to a backend.
type Writer interface {
	Name() string
	Write(ctx context.Context, e logbuf.Entry) error
	Close() error
}

// Options tune a Sink. Zero values pick defaults.
type Options struct {
	Buffer int
	// WriteTimeout bounds each Write. Default 5s.
	WriteTimeout time.Duration
}

// Sink is a logbuf.Listener that hands entries to a Writer on its own
// goroutine. Entries arriving while the buffer is full are dropped.
type Sink struct {
	w       Writer
	timeout time.Duration
	log     *logger.Logger

	mu      sync.RWMutex
	closed  bool
	entries chan logbuf.Entry
	done    chan struct{}

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// Stats counts what happened to the entries offered to a Sink.
type Stats struct {
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

func New(w Writer, opts Options, log *logger.Logger) *Sink {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	s := &Sink{
		w:       w,
		timeout: opts.WriteTimeout,
		log:     &logger.Logger{Logger: log.WithComponent("logsink").With("sink", w.Name())},
		entries: make(chan logbuf.Entry, opts.Buffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// OnLogEntry queues e for delivery.
func (s *Sink) OnLogEntry(e logbuf.Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.entries <- e:
	default:
		s.dropped.Add(1)
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.w.Write(ctx, e)
		cancel()
		if err != nil {
			if s.failed.Add(1) == 1 {
				s.log.Warn("log sink write failed", "error", err.Error())
			} else {
				s.log.Debug("log sink write failed", "error", err.Error())
			}
			continue
		}
		s.written.Add(1)
	}
}

// Close stops accepting entries, drains what is buffered and closes the
// Writer. Entries still buffered when ctx ends are abandoned.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.entries)
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	st := s.Stats()
	s.log.Info("log sink closed", "written", st.Written, "failed", st.Failed, "dropped", st.Dropped)
	return s.w.Close()
}

func (s *Sink) Stats() Stats {
	return Stats{
		Written: s.written.Load(),
		Failed:  s.failed.Load(),
		Dropped: s.dropped.Load(),
	}
}
