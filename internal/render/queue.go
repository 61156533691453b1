package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"renderhub/internal/artifact"
	"renderhub/internal/logbuf"
	"renderhub/internal/pkg/errors"
	"renderhub/internal/pkg/logger"
	"renderhub/internal/renderer"
)

// Uploader stores finished renders. See artifact.Uploader.
type Uploader interface {
	Upload(ctx context.Context, localPath, jobID string) (artifact.Result, error)
}

// Journal receives the operational log lines of the queue.
type Journal interface {
	Append(msg string) logbuf.Entry
	AppendError(msg string) logbuf.Entry
}

// Options configure a Queue.
type Options struct {
	// RendersDir receives "<jobID>.mp4" outputs. Default "renders".
	RendersDir string
	// PublicBaseURL prefixes the fallback video URL used when no upload
	// succeeded.
	PublicBaseURL string
	// Codec is passed to the engine. Default "h264".
	Codec string
	// RetainCancelled keeps cancelled queued jobs as "cancelled" instead of
	// removing them.
	RetainCancelled bool
}

// Queue accepts render jobs and executes them strictly one at a time in
// submission order.
type Queue struct {
	store    *Store
	engine   renderer.Engine
	uploader Uploader
	journal  Journal
	opts     Options
	log      *logger.Logger

	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	pending []string
	wake    chan struct{}
	closed  bool
	stop    context.CancelFunc
	done    chan struct{}
}

func NewQueue(engine renderer.Engine, uploader Uploader, journal Journal, opts Options, log *logger.Logger) *Queue {
	if opts.RendersDir == "" {
		opts.RendersDir = "renders"
	}
	if opts.Codec == "" {
		opts.Codec = "h264"
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	if log == nil {
		log = logger.Discard()
	}
	return &Queue{
		store:    newStore(),
		engine:   engine,
		uploader: uploader,
		journal:  journal,
		opts:     opts,
		log:      log.WithComponent("render-queue"),
		now:      time.Now,
		newID:    uuid.NewString,
		wake:     make(chan struct{}, 1),
	}
}

// Store exposes the job records for read-only queries.
func (q *Queue) Store() *Store { return q.store }

// OutputPath is where the render of jobID is written.
func (q *Queue) OutputPath(jobID string) string {
	return filepath.Join(q.opts.RendersDir, jobID+".mp4")
}

// FallbackURL is the locally served URL of the render of jobID.
func (q *Queue) FallbackURL(jobID string) string {
	return q.opts.PublicBaseURL + "/renders/" + jobID + ".mp4"
}

// Start launches the pipeline. Jobs created before Start wait for it.
func (q *Queue) Start(ctx context.Context) error {
	if err := os.MkdirAll(q.opts.RendersDir, 0o755); err != nil {
		return errors.Wrap(err, "render.start", "create renders dir")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.Unavailable("render queue")
	}
	if q.stop != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.stop = cancel
	q.done = make(chan struct{})
	go q.run(runCtx)

	q.log.Info("render queue started", "renders_dir", q.opts.RendersDir, "codec", q.opts.Codec)
	return nil
}

// Stop refuses new jobs, aborts the running render and waits for the
// pipeline to exit. Jobs still queued end up failed.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	stop, done := q.stop, q.done
	q.mu.Unlock()

	if stop == nil {
		return nil
	}
	stop()
	select {
	case <-done:
		q.log.Info("render queue stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateJob validates data, records a queued job and schedules it. It
// returns without waiting for the render.
func (q *Queue) CreateJob(data JobData) (string, error) {
	data, err := data.Normalize()
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", errors.Unavailable("render queue")
	}

	id := q.newID()
	q.store.insert(Job{ID: id, Data: data, Status: Queued{}, CreatedAt: q.now().UTC()})
	q.pending = append(q.pending, id)
	// Logged before the pipeline can pop the job.
	q.journal.Append(id + " render queued.")

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return id, nil
}

// GetJob returns a copy of the job.
func (q *Queue) GetJob(id string) (Job, error) {
	job, ok := q.store.Get(id)
	if !ok {
		return Job{}, errors.NotFound("job", id)
	}
	return job, nil
}

// ListJobs returns copies of the jobs matching f, newest first.
func (q *Queue) ListJobs(f ListFilter) []Job {
	return q.store.List(f)
}

// CancelJob removes a queued job or aborts an in-progress one. Jobs in a
// terminal state are not cancellable.
func (q *Queue) CancelJob(id string) error {
	outcome, err := q.store.cancel(id, q.opts.RetainCancelled, q.now().UTC())
	if err != nil {
		return err
	}
	switch outcome {
	case cancelledQueued:
		q.journal.Append(id + " render cancelled.")
	case cancelSignalled:
		q.journal.Append(id + " render cancellation requested.")
	}
	return nil
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	defer q.abandonPending()

	for {
		id, ok := q.next(ctx)
		if !ok {
			return
		}
		q.process(ctx, id)
	}
}

// next blocks until a job id is pending or ctx is done.
func (q *Queue) next(ctx context.Context) (string, bool) {
	for {
		if ctx.Err() != nil {
			return "", false
		}
		q.mu.Lock()
		if len(q.pending) > 0 {
			id := q.pending[0]
			q.pending[0] = ""
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return id, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return "", false
		}
	}
}

func (q *Queue) abandonPending() {
	q.mu.Lock()
	ids := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, id := range ids {
		if id != "" && q.store.abandon(id, "render queue stopped", q.now().UTC()) {
			q.journal.AppendError(id + " render failed: render queue stopped")
		}
	}
}

func (q *Queue) process(ctx context.Context, id string) {
	jobCtx, cancel := context.WithCancel(logger.ContextWithJobID(ctx, id))
	defer cancel()

	data, ok := q.store.begin(id, cancel, q.now().UTC())
	if !ok {
		// Cancelled while queued.
		return
	}

	log := q.log.WithJobID(id)
	log.Info("render started", "composition_id", data.CompositionID)
	start := time.Now()

	status := q.executeRecovered(ctx, jobCtx, id, data)
	status = q.store.finish(id, status, q.now().UTC())

	switch s := status.(type) {
	case Completed:
		log.Info("render completed", "video_url", s.VideoURL, "duration_ms", time.Since(start).Milliseconds())
		q.journal.Append(id + " render completed.")
	case Failed:
		log.Warn("render failed", "error", s.Error, "duration_ms", time.Since(start).Milliseconds())
		q.journal.AppendError(id + " render failed: " + s.Error)
	}
}

// executeRecovered runs execute and turns a panic in the engine or uploader
// into a failed job.
func (q *Queue) executeRecovered(ctx, jobCtx context.Context, id string, data JobData) (status Status) {
	defer func() {
		if rec := recover(); rec != nil {
			q.log.WithJobID(id).Error("render panicked",
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			status = q.failure(ctx, id, errors.Newf(errors.CodeRenderFailed, "render panicked: %v", rec))
		}
	}()
	return q.execute(ctx, jobCtx, id, data)
}

func (q *Queue) execute(ctx, jobCtx context.Context, id string, data JobData) Status {
	props := map[string]any{"titleText": data.TitleText}

	comp, err := q.engine.SelectComposition(jobCtx, renderer.SelectRequest{
		ServeURL:      data.ServeURL,
		CompositionID: data.CompositionID,
		InputProps:    props,
	})
	if err != nil {
		return q.failure(ctx, id, err)
	}

	out := q.OutputPath(id)
	err = q.engine.RenderMedia(jobCtx, renderer.RenderRequest{
		ServeURL:    data.ServeURL,
		Composition: comp,
		InputProps:  props,
		Codec:       q.opts.Codec,
		OutputPath:  out,
		OnProgress: func(p float64) {
			q.reportProgress(jobCtx, id, p)
		},
	})
	if err == nil {
		err = jobCtx.Err()
	}
	if err != nil {
		return q.failure(ctx, id, err)
	}

	// The upload runs on the queue context so a late cancel cannot leave
	// a half-written object behind.
	res, err := q.uploader.Upload(ctx, out, id)
	if err == nil {
		err = jobCtx.Err()
	}
	if err != nil {
		return q.failure(ctx, id, err)
	}

	videoURL := q.FallbackURL(id)
	if res.Success {
		videoURL = res.URL
	}
	return Completed{VideoURL: videoURL, Upload: &res}
}

func (q *Queue) reportProgress(jobCtx context.Context, id string, p float64) {
	if jobCtx.Err() != nil {
		return
	}
	p = min(max(p, 0), 1)
	if !q.store.setProgress(id, p) {
		return
	}
	q.journal.Append(id + " render progress: " + strconv.FormatFloat(p, 'f', -1, 64))
}

func (q *Queue) failure(ctx context.Context, id string, err error) Failed {
	switch {
	case q.store.cancelRequested(id):
		return Failed{Error: "render cancelled"}
	case ctx.Err() != nil:
		return Failed{Error: "render aborted: queue stopped"}
	}
	return Failed{Error: failureMessage(err)}
}

// failureMessage drops the code prefix coded errors carry in Error().
func failureMessage(err error) string {
	var coded *errors.Error
	if errors.As(err, &coded) {
		if coded.Err != nil {
			return fmt.Sprintf("%s: %s", coded.Message, coded.Err.Error())
		}
		return coded.Message
	}
	return err.Error()
}
