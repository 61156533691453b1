package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"renderhub/internal/httpkit"
)

// Health reports liveness. With ?deep=true every configured dependency is
// pinged and a failing one turns the status to "degraded".
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": h.service,
	}
	if h.version != "" {
		health["version"] = h.version
	}
	if h.queue != nil {
		health["jobs"] = h.queue.Store().Counts()
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks
		for name, c := range checks {
			if c.Status != "ok" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "check", name, "error", c.Error)
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
	return nil
}

type checkResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]checkResult {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]checkResult, len(h.checks))
	)
	for name, p := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := ping(ctx, p)
			mu.Lock()
			out[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func ping(ctx context.Context, p Pinger) checkResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res := checkResult{Status: "ok"}
	if err := p.Ping(checkCtx); err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	res.LatencyMS = time.Since(start).Milliseconds()
	return res
}
