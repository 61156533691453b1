// Package artifact pushes finished renders to durable storage.
package artifact

import (
	"context"
	"os"
	"path"

	"renderhub/internal/pkg/errors"
	"renderhub/internal/pkg/logger"
	"renderhub/internal/ports"
)

// ContentType of every render artifact.
const ContentType = "video/mp4"

// Result records the outcome of one upload.
type Result struct {
	Attempted bool   `json:"attempted"`
	Success   bool   `json:"success"`
	URL       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Options configure the upload policy.
type Options struct {
	// Required turns a failed or impossible upload into a job failure.
	Required bool
	// KeyPrefix is prepended to "<jobID>.mp4". Default "renders".
	KeyPrefix string
	// MissingDetail explains why no provider is configured.
	MissingDetail string
}

// Uploader stores render outputs through a ports.StorageProvider.
type Uploader struct {
	sp   ports.StorageProvider
	opts Options
	log  *logger.Logger
}

// NewUploader returns an uploader. A nil sp means storage is not configured.
func NewUploader(sp ports.StorageProvider, opts Options, log *logger.Logger) *Uploader {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "renders"
	}
	if opts.MissingDetail == "" {
		opts.MissingDetail = "no storage provider"
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Uploader{sp: sp, opts: opts, log: log.WithComponent("artifact")}
}

// Configured reports whether a storage provider is present.
func (u *Uploader) Configured() bool { return u.sp != nil }

// Required reports whether upload failures fail the job.
func (u *Uploader) Required() bool { return u.opts.Required }

// Provider is the storage provider, nil when not configured.
func (u *Uploader) Provider() ports.StorageProvider { return u.sp }

// ObjectKey is the storage key used for jobID.
func (u *Uploader) ObjectKey(jobID string) string {
	return path.Join(u.opts.KeyPrefix, jobID+".mp4")
}

// Upload stores the file at localPath as the artifact of jobID. The Result
// is always filled in. An error is returned only when the upload is required
// and did not succeed.
func (u *Uploader) Upload(ctx context.Context, localPath, jobID string) (Result, error) {
	log := u.log.WithJobID(jobID)

	if u.sp == nil {
		detail := u.opts.MissingDetail
		res := Result{Error: "storage not configured: " + detail}
		if u.opts.Required {
			return res, errors.StorageNotConfigured(detail).WithField("job_id", jobID)
		}
		log.Debug("upload skipped", "reason", detail)
		return res, nil
	}

	res := Result{Attempted: true}
	url, err := u.put(ctx, localPath, u.ObjectKey(jobID))
	if err != nil {
		res.Error = err.Error()
		log.Warn("upload failed", "provider", u.sp.Provider(), "error", err.Error(), "required", u.opts.Required)
		if u.opts.Required {
			return res, errors.WrapWithCode(err, errors.CodeUploadFailed, "artifact.upload", "upload failed").
				WithField("job_id", jobID)
		}
		return res, nil
	}

	res.Success = true
	res.URL = url
	log.Info("upload completed", "provider", u.sp.Provider(), "url", url)
	return res, nil
}

func (u *Uploader) put(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", err
	}

	out, err := u.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: ContentType,
		Reader:      f,
		Size:        st.Size(),
	})
	if err != nil {
		return "", err
	}
	return u.sp.ObjectURL(ctx, out.ObjectKey)
}
