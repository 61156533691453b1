// Package renderertest provides a scriptable renderer.Engine for tests.
package renderertest

import (
	"context"
	"os"
	"sync"

	"renderhub/internal/renderer"
)

// Engine records calls and delegates behaviour to its hooks. Without hooks
// it resolves every composition and renders by reporting 0, 0.5 and 1 and
// writing a small file to the output path.
type Engine struct {
	SelectFunc func(ctx context.Context, req renderer.SelectRequest) (renderer.Composition, error)
	RenderFunc func(ctx context.Context, req renderer.RenderRequest) error
	PingErr    error

	mu      sync.Mutex
	selects []renderer.SelectRequest
	renders []renderer.RenderRequest
}

func (e *Engine) SelectComposition(ctx context.Context, req renderer.SelectRequest) (renderer.Composition, error) {
	e.mu.Lock()
	e.selects = append(e.selects, req)
	fn := e.SelectFunc
	e.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return renderer.Composition{ID: req.CompositionID, Width: 1920, Height: 1080, FPS: 30, DurationInFrames: 90}, nil
}

func (e *Engine) RenderMedia(ctx context.Context, req renderer.RenderRequest) error {
	e.mu.Lock()
	e.renders = append(e.renders, req)
	fn := e.RenderFunc
	e.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return Complete(0, 0.5, 1)(ctx, req)
}

func (e *Engine) Ping(ctx context.Context) error { return e.PingErr }

// Selects returns the SelectComposition calls so far.
func (e *Engine) Selects() []renderer.SelectRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]renderer.SelectRequest(nil), e.selects...)
}

// Renders returns the RenderMedia calls so far, in call order.
func (e *Engine) Renders() []renderer.RenderRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]renderer.RenderRequest(nil), e.renders...)
}

// Complete reports each progress value then writes the output file.
func Complete(progress ...float64) func(context.Context, renderer.RenderRequest) error {
	return func(ctx context.Context, req renderer.RenderRequest) error {
		for _, p := range progress {
			if err := ctx.Err(); err != nil {
				return err
			}
			if req.OnProgress != nil {
				req.OnProgress(p)
			}
		}
		return WriteOutput(req)
	}
}

// WriteOutput creates the file the engine would have produced.
func WriteOutput(req renderer.RenderRequest) error {
	return os.WriteFile(req.OutputPath, []byte("fake mp4"), 0o644)
}

// Gate blocks renders until released or cancelled. Started receives the
// output path of every render that reached the gate.
type Gate struct {
	Started chan string
	release chan struct{}
	once    sync.Once
}

func NewGate() *Gate {
	return &Gate{Started: make(chan string, 16), release: make(chan struct{})}
}

// Release lets every blocked and future render complete.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

// Render reports progress 0, waits on the gate, then completes. A cancelled
// ctx makes it return ctx.Err().
func (g *Gate) Render(ctx context.Context, req renderer.RenderRequest) error {
	if req.OnProgress != nil {
		req.OnProgress(0)
	}
	g.Started <- req.OutputPath
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.release:
	}
	if req.OnProgress != nil {
		req.OnProgress(1)
	}
	return WriteOutput(req)
}
