package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"renderhub/internal/logbuf"
	"renderhub/internal/pkg/logger"
)

// DispatcherOptions tune delivery. Zero values pick defaults.
type DispatcherOptions struct {
	// Timeout bounds each POST. Default 5s.
	Timeout time.Duration
	// Concurrency bounds simultaneous POSTs per entry. Default 8.
	Concurrency int
	Client      *http.Client
}

// Dispatcher posts each log line to every registered subscriber. Delivery is
// best effort: no retries, failures are only debug-logged.
type Dispatcher struct {
	registry *Registry
	client   *http.Client
	timeout  time.Duration
	limit    int
	log      *logger.Logger

	wg sync.WaitGroup
}

func NewDispatcher(registry *Registry, opts DispatcherOptions, log *logger.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{
		registry: registry,
		client:   opts.Client,
		timeout:  opts.Timeout,
		limit:    opts.Concurrency,
		log:      log.WithComponent("webhook-dispatcher"),
	}
}

// payload is the body every subscriber receives.
type payload struct {
	Log string `json:"log"`
}

// OnLogEntry makes the dispatcher a logbuf.Listener.
func (d *Dispatcher) OnLogEntry(e logbuf.Entry) {
	d.Dispatch(e.Line)
}

// Dispatch sends line to the subscribers registered right now and returns
// without waiting for any of them.
func (d *Dispatcher) Dispatch(line string) {
	urls := d.registry.snapshot()
	if len(urls) == 0 {
		return
	}
	body, err := json.Marshal(payload{Log: line})
	if err != nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		var g errgroup.Group
		g.SetLimit(d.limit)
		for _, u := range urls {
			g.Go(func() error {
				d.deliver(u, body)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (d *Dispatcher) deliver(url string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.log.Debug("webhook request build failed", "url", url, "error", err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Debug("webhook delivery failed", "url", url, "error", err.Error())
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.log.Debug("webhook rejected", "url", url, "status", resp.StatusCode)
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
