// Package renderer talks to the video render engine.
package renderer

import "context"

// Composition describes a renderable composition resolved by the engine.
type Composition struct {
	ID               string         `json:"id"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	FPS              float64        `json:"fps"`
	DurationInFrames int            `json:"durationInFrames"`
	DefaultProps     map[string]any `json:"defaultProps,omitempty"`
}

type SelectRequest struct {
	ServeURL      string
	CompositionID string
	InputProps    map[string]any
}

type RenderRequest struct {
	ServeURL    string
	Composition Composition
	InputProps  map[string]any
	Codec       string
	// OutputPath is where the engine writes the finished file.
	OutputPath string
	// OnProgress receives completion fractions in [0,1]. It may be called
	// from the goroutine running RenderMedia only.
	OnProgress func(progress float64)
}

// Engine resolves compositions and renders them to files. Cancelling ctx
// aborts an in-flight RenderMedia, which then returns an error.
type Engine interface {
	SelectComposition(ctx context.Context, req SelectRequest) (Composition, error)
	RenderMedia(ctx context.Context, req RenderRequest) error
	// Ping reports whether the engine is ready to accept work.
	Ping(ctx context.Context) error
}
