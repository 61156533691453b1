package localfs

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"renderhub/internal/ports"
)

// LocalFS implements ports.StorageProvider using the local filesystem.
// Objects live under root and are reachable at baseURL/<key>.
type LocalFS struct {
	root    string
	baseURL string
}

func New(root, baseURL string) *LocalFS {
	return &LocalFS{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

func (l *LocalFS) Provider() string { return "localfs" }

// path maps objectKey below root, refusing keys that escape it.
func (l *LocalFS) path(objectKey string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(objectKey))
	if objectKey == "" || clean == string(filepath.Separator) {
		return "", fmt.Errorf("object_key is required")
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.path(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, err
	}

	tmp := dst + ".part"
	outF, err := os.Create(tmp)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	n, err := io.Copy(outF, in.Reader)
	if cerr := outF.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return ports.PutObjectOutput{}, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return ports.PutObjectOutput{}, err
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.path(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, "", 0, err
	}

	st, statErr := f.Stat()
	if statErr == nil {
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, io.SeekStart)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

func (l *LocalFS) ObjectURL(ctx context.Context, objectKey string) (string, error) {
	if l.baseURL == "" {
		return "", fmt.Errorf("localfs: base url not configured")
	}
	return url.JoinPath(l.baseURL, strings.Split(objectKey, "/")...)
}

func (l *LocalFS) Ping(ctx context.Context) error {
	return os.MkdirAll(l.root, 0o755)
}
