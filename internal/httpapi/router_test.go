package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderhub/internal/artifact"
	"renderhub/internal/httpapi/handlers"
	"renderhub/internal/httpkit"
	"renderhub/internal/logbuf"
	"renderhub/internal/logstream"
	"renderhub/internal/ports/portstest"
	"renderhub/internal/render"
	"renderhub/internal/renderer"
	"renderhub/internal/renderer/renderertest"
	"renderhub/internal/webhook"
)

const serveURL = "https://bundle.example.com/site"

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testAPI struct {
	srv    *httptest.Server
	queue  *render.Queue
	engine *renderertest.Engine
	logs   *logbuf.Buffer
	hooks  *webhook.Registry
	mem    *portstest.MemoryStorage
}

func newTestAPI(t *testing.T, checks map[string]handlers.Pinger) *testAPI {
	t.Helper()
	api := &testAPI{
		engine: &renderertest.Engine{},
		logs:   logbuf.New(nil, 200),
		hooks:  webhook.NewRegistry(nil, nil),
		mem:    portstest.NewMemoryStorage("http://cdn.example"),
	}
	hub := logstream.NewHub(16)
	api.logs.Subscribe(hub)

	uploader := artifact.NewUploader(api.mem, artifact.Options{}, nil)
	api.queue = render.NewQueue(api.engine, uploader, api.logs,
		render.Options{RendersDir: t.TempDir(), PublicBaseURL: "http://localhost:8989"}, nil)
	require.NoError(t, api.queue.Start(context.Background()))

	h := handlers.New(handlers.Deps{
		Queue:     api.queue,
		Logs:      api.logs,
		Webhooks:  api.hooks,
		Stream:    hub,
		Artifacts: api.mem,
		Checks:    checks,
	})
	api.srv = httptest.NewServer(NewRouter(h, Options{
		CORSAllowedOrigins: []string{"*"},
		RequestTimeout:     5 * time.Second,
	}))

	t.Cleanup(func() {
		hub.Close()
		api.srv.Close()
		_ = api.queue.Stop(context.Background())
	})
	return api
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func errorCode(t *testing.T, raw []byte) string {
	return decode[httpkit.ErrorEnvelope](t, raw).Error.Code
}

func (a *testAPI) createJob(t *testing.T, compositionID string) string {
	t.Helper()
	resp, raw := a.do(t, http.MethodPost, "/renders", map[string]string{
		"compositionId": compositionID,
		"serveUrl":      serveURL,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	id := decode[map[string]string](t, raw)["jobId"]
	require.NotEmpty(t, id)
	return id
}

func (a *testAPI) waitStatus(t *testing.T, id, want string) map[string]any {
	t.Helper()
	var job map[string]any
	require.Eventually(t, func() bool {
		resp, raw := a.do(t, http.MethodGet, "/renders/"+id, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		job = decode[map[string]any](t, raw)
		return job["status"] == want
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, map[string]handlers.Pinger{
		"storage":  pingFunc(func(context.Context) error { return nil }),
		"renderer": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	resp, raw := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, raw)
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "checks")

	_, raw = api.do(t, http.MethodGet, "/health?deep=true", nil)
	body = decode[map[string]any](t, raw)
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["storage"].(map[string]any)["status"])
	assert.Equal(t, "connection refused", checks["renderer"].(map[string]any)["error"])
}

func TestRenderLifecycle(t *testing.T) {
	api := newTestAPI(t, nil)

	id := api.createJob(t, "HelloWorld")
	job := api.waitStatus(t, id, "completed")

	assert.Equal(t, id, job["id"])
	assert.Equal(t, "http://cdn.example/renders/"+id+".mp4", job["videoUrl"])
	assert.Equal(t, "Hello, world!", job["data"].(map[string]any)["titleText"])
	assert.Equal(t, true, job["uploadResult"].(map[string]any)["success"])

	assert.Contains(t, strings.Join(api.logs.ReadAll(), "\n"), "] Render job created: "+id)

	resp, raw := api.do(t, http.MethodGet, "/renders/"+id+".mp4", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	assert.Equal(t, "fake mp4", string(raw))

	resp, raw = api.do(t, http.MethodGet, "/artifacts/renders/"+id+".mp4", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fake mp4", string(raw))

	resp, raw = api.do(t, http.MethodDelete, "/renders/"+id, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "NOT_CANCELLABLE", errorCode(t, raw))
}

func TestCreateRenderValidation(t *testing.T) {
	api := newTestAPI(t, nil)

	resp, raw := api.do(t, http.MethodPost, "/renders", map[string]string{"serveUrl": serveURL})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decode[httpkit.ErrorEnvelope](t, raw)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "compositionId", env.Error.Details["field"])

	resp, _ = api.do(t, http.MethodPost, "/renders", map[string]string{"compositionId": "A", "serveUrl": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, api.srv.URL+"/renders", strings.NewReader("{"))
	r2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	r2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r2.StatusCode)

	lines := api.logs.ReadAll()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ERROR: Render job creation failed: compositionId is required")
	assert.Contains(t, lines[2], "ERROR: Render job creation failed: invalid json body")
	assert.Empty(t, api.queue.ListJobs(render.ListFilter{}))
}

func TestGetAndCancelUnknown(t *testing.T) {
	api := newTestAPI(t, nil)

	resp, raw := api.do(t, http.MethodGet, "/renders/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, raw))

	resp, _ = api.do(t, http.MethodDelete, "/renders/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/renders/nope.mp4", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/renders/..mp4", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRenderFileOnlyServedWhenCompleted(t *testing.T) {
	api := newTestAPI(t, nil)
	gate := renderertest.NewGate()
	api.engine.RenderFunc = func(ctx context.Context, req renderer.RenderRequest) error {
		if err := renderertest.WriteOutput(req); err != nil {
			return err
		}
		if req.Composition.ID == "Broken" {
			return errors.New("encoder crashed")
		}
		return gate.Render(ctx, req)
	}
	defer gate.Release()

	broken := api.createJob(t, "Broken")
	api.waitStatus(t, broken, "failed")
	resp, raw := api.do(t, http.MethodGet, "/renders/"+broken+".mp4", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, raw))

	running := api.createJob(t, "A")
	<-gate.Started
	resp, _ = api.do(t, http.MethodGet, "/renders/"+running+".mp4", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	gate.Release()
	api.waitStatus(t, running, "completed")
	resp, _ = api.do(t, http.MethodGet, "/renders/"+running+".mp4", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCancelQueuedRender(t *testing.T) {
	api := newTestAPI(t, nil)
	gate := renderertest.NewGate()
	api.engine.RenderFunc = gate.Render
	defer gate.Release()

	first := api.createJob(t, "A")
	<-gate.Started
	second := api.createJob(t, "B")

	resp, raw := api.do(t, http.MethodDelete, "/renders/"+second, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, map[string]string{"message": "Job cancelled"}, decode[map[string]string](t, raw))

	resp, _ = api.do(t, http.MethodGet, "/renders/"+second, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(t, http.MethodDelete, "/renders/"+first, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	job := api.waitStatus(t, first, "failed")
	assert.Equal(t, "render cancelled", job["error"])

	assert.Contains(t, strings.Join(api.logs.ReadAll(), "\n"), "Render job cancelled: "+second)
}

func TestListRenders(t *testing.T) {
	api := newTestAPI(t, nil)
	a := api.createJob(t, "A")
	api.waitStatus(t, a, "completed")
	b := api.createJob(t, "B")
	api.waitStatus(t, b, "completed")

	_, raw := api.do(t, http.MethodGet, "/renders?limit=1", nil)
	body := decode[struct {
		Jobs  []map[string]any `json:"jobs"`
		Count int              `json:"count"`
	}](t, raw)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, b, body.Jobs[0]["id"])

	resp, raw := api.do(t, http.MethodGet, "/renders?status=running", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, raw))
}

func TestWebhookRoutes(t *testing.T) {
	api := newTestAPI(t, nil)

	resp, raw := api.do(t, http.MethodPost, "/webhook-logs/register", map[string]string{"url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, raw))

	resp, raw = api.do(t, http.MethodPost, "/webhook-logs/register", map[string]string{"url": "http://hooks.example/in"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"message": "Webhook registered", "url": "http://hooks.example/in"}, decode[map[string]string](t, raw))

	api.do(t, http.MethodPost, "/webhook-logs/register", map[string]string{"url": "http://hooks.example/in"})
	_, raw = api.do(t, http.MethodGet, "/webhook-logs", nil)
	assert.Equal(t, map[string][]string{"webhooks": {"http://hooks.example/in"}}, decode[map[string][]string](t, raw))

	resp, raw = api.do(t, http.MethodPost, "/webhook-logs/unregister", map[string]string{"url": "http://hooks.example/in"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Webhook unregistered", decode[map[string]string](t, raw)["message"])
	assert.Empty(t, api.hooks.List())
}

func TestGetLogs(t *testing.T) {
	api := newTestAPI(t, nil)
	api.logs.Append("first")
	api.logs.AppendError("second")

	_, raw := api.do(t, http.MethodGet, "/logs", nil)
	logs := decode[map[string][]string](t, raw)["logs"]
	require.Len(t, logs, 2)
	assert.True(t, strings.HasSuffix(logs[0], "] first"))
	assert.True(t, strings.HasSuffix(logs[1], "] ERROR: second"))
}

func TestStreamLogs(t *testing.T) {
	api := newTestAPI(t, nil)
	api.logs.Append("old line")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(api.srv.URL, "http") + "/logs/stream?backlog=true"
	conn, _, _, err := ws.Dial(ctx, url)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	data, err := wsutil.ReadServerText(conn)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "] old line"))

	api.logs.Append("new line")
	data, err = wsutil.ReadServerText(conn)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "] new line"))
}

func TestMiddlewareChain(t *testing.T) {
	api := newTestAPI(t, nil)

	req, _ := http.NewRequest(http.MethodGet, api.srv.URL+"/health", nil)
	req.Header.Set("Origin", "http://app.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, raw := api.do(t, http.MethodGet, "/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, raw))

	resp, _ = api.do(t, http.MethodPut, "/renders", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
