package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderhub/internal/ports"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	fs := New(root, "http://localhost:8989/artifacts/")

	out, err := fs.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   "renders/job-1.mp4",
		ContentType: "video/mp4",
		Reader:      strings.NewReader("fake video"),
	})
	require.NoError(t, err)
	assert.Equal(t, "renders/job-1.mp4", out.ObjectKey)
	assert.Equal(t, int64(10), out.Size)

	_, err = os.Stat(filepath.Join(root, "renders", "job-1.mp4.part"))
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	rc, ctype, size, err := fs.GetObject(ctx, "renders/job-1.mp4")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "fake video", string(body))
	assert.Equal(t, "video/mp4", ctype)
	assert.Equal(t, int64(10), size)
}

func TestObjectURL(t *testing.T) {
	fs := New(t.TempDir(), "http://localhost:8989/artifacts/")
	u, err := fs.ObjectURL(context.Background(), "renders/job-1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8989/artifacts/renders/job-1.mp4", u)

	_, err = New(t.TempDir(), "").ObjectURL(context.Background(), "x")
	assert.Error(t, err)
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	fs := New(filepath.Join(root, "store"), "")

	_, err := fs.PutObject(ctx, ports.PutObjectInput{ObjectKey: "../outside.mp4", Reader: strings.NewReader("x")})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "outside.mp4"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "store", "outside.mp4"))
	assert.NoError(t, err)

	_, err = fs.PutObject(ctx, ports.PutObjectInput{ObjectKey: "", Reader: strings.NewReader("x")})
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")
	require.NoError(t, New(root, "").Ping(context.Background()))
	st, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}
