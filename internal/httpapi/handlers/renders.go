package handlers

import (
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"renderhub/internal/httpkit"
	"renderhub/internal/pkg/errors"
	"renderhub/internal/render"
)

const renderFileExt = ".mp4"

// PostRender queues a render job and answers with its id.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) error {
	var data render.JobData
	if err := httpkit.DecodeJSON(w, r, &data); err != nil {
		h.logs.AppendError("Render job creation failed: " + message(err))
		return err
	}

	jobID, err := h.queue.CreateJob(data)
	if err != nil {
		h.logs.AppendError("Render job creation failed: " + message(err))
		return err
	}

	h.logs.Append("Render job created: " + jobID)
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"jobId": jobID})
	return nil
}

// ListRenders returns the known jobs, newest first. Query parameters:
// status (one of the job statuses) and limit.
func (h *Handler) ListRenders(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	var f render.ListFilter
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		name, ok := render.ParseStatusName(s)
		if !ok {
			return errors.ValidationField("status", "unknown status "+strconv.Quote(s))
		}
		f.Status = name
	}
	if s := strings.TrimSpace(q.Get("limit")); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			f.Limit = v
		}
	}

	jobs := h.queue.ListJobs(f)
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
	return nil
}

// GetRender returns a job, or the rendered file when the id names one.
func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) error {
	jobID := chi.URLParam(r, "jobId")
	if strings.HasSuffix(jobID, renderFileExt) {
		return h.serveRenderFile(w, r, strings.TrimSuffix(jobID, renderFileExt))
	}

	job, err := h.queue.GetJob(jobID)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, job)
	return nil
}

func (h *Handler) serveRenderFile(w http.ResponseWriter, r *http.Request, jobID string) error {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || strings.HasPrefix(jobID, ".") {
		return errors.NotFound("render", jobID+renderFileExt)
	}
	// Only finished renders are served; a running or failed job may have
	// left a partial file behind.
	if job, err := h.queue.GetJob(jobID); err != nil || job.Status.Name() != render.StatusCompleted {
		return errors.NotFound("render", jobID+renderFileExt)
	}

	f, err := os.Open(h.queue.OutputPath(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.NotFound("render", jobID+renderFileExt)
		}
		return errors.Wrapf(err, "handlers.serveRenderFile", "open render %s", jobID)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "handlers.serveRenderFile", "stat render %s", jobID)
	}
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, jobID+renderFileExt, st.ModTime(), f)
	return nil
}

// DeleteRender cancels a queued or running job.
func (h *Handler) DeleteRender(w http.ResponseWriter, r *http.Request) error {
	jobID := chi.URLParam(r, "jobId")
	if err := h.queue.CancelJob(jobID); err != nil {
		return err
	}

	h.logs.Append("Render job cancelled: " + jobID)
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"message": "Job cancelled"})
	return nil
}

// message is the client-facing text of err.
func message(err error) string {
	var coded *errors.Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}
