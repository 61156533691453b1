package renderer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPEngine drives a render engine server over HTTP.
//
// Composition selection is a plain JSON request. Rendering streams one JSON
// event per line until a "done" or "error" event.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
	// selectTimeout bounds SelectComposition and Ping; renders are bounded
	// only by their context.
	selectTimeout time.Duration
}

func NewHTTPEngine(baseURL string) *HTTPEngine {
	return &HTTPEngine{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{},
		selectTimeout: time.Minute,
	}
}

type selectBody struct {
	ServeURL   string         `json:"serveUrl"`
	ID         string         `json:"id"`
	InputProps map[string]any `json:"inputProps"`
}

type renderBody struct {
	ServeURL       string         `json:"serveUrl"`
	Composition    Composition    `json:"composition"`
	InputProps     map[string]any `json:"inputProps"`
	Codec          string         `json:"codec"`
	OutputLocation string         `json:"outputLocation"`
}

// Event is one line of the render progress stream.
type Event struct {
	Type     string  `json:"type"`
	Progress float64 `json:"progress,omitempty"`
	Message  string  `json:"message,omitempty"`
}

const (
	EventProgress = "progress"
	EventDone     = "done"
	EventError    = "error"
)

func (e *HTTPEngine) SelectComposition(ctx context.Context, req SelectRequest) (Composition, error) {
	ctx, cancel := context.WithTimeout(ctx, e.selectTimeout)
	defer cancel()

	res, err := e.post(ctx, "/compositions", selectBody{
		ServeURL:   req.ServeURL,
		ID:         req.CompositionID,
		InputProps: req.InputProps,
	})
	if err != nil {
		return Composition{}, err
	}
	defer res.Body.Close()

	var comp Composition
	if err := json.NewDecoder(res.Body).Decode(&comp); err != nil {
		return Composition{}, fmt.Errorf("decode composition: %w", err)
	}
	if comp.ID == "" {
		comp.ID = req.CompositionID
	}
	return comp, nil
}

func (e *HTTPEngine) RenderMedia(ctx context.Context, req RenderRequest) error {
	res, err := e.post(ctx, "/renders", renderBody{
		ServeURL:       req.ServeURL,
		Composition:    req.Composition,
		InputProps:     req.InputProps,
		Codec:          req.Codec,
		OutputLocation: req.OutputPath,
	})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	sc := bufio.NewScanner(res.Body)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("decode render event: %w", err)
		}
		switch ev.Type {
		case EventProgress:
			if req.OnProgress != nil {
				req.OnProgress(ev.Progress)
			}
		case EventDone:
			return nil
		case EventError:
			if ev.Message == "" {
				ev.Message = "render failed"
			}
			return errors.New(ev.Message)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read render stream: %w", err)
	}
	return errors.New("render stream ended before completion")
}

func (e *HTTPEngine) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.selectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	res, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("renderer http %d", res.StatusCode)
	}
	return nil
}

func (e *HTTPEngine) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		if s := strings.TrimSpace(string(msg)); s != "" {
			return nil, fmt.Errorf("renderer http %d: %s", res.StatusCode, s)
		}
		return nil, fmt.Errorf("renderer http %d", res.StatusCode)
	}
	return res, nil
}
