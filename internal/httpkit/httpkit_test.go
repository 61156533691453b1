package httpkit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderhub/internal/pkg/errors"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		opts        CORSOptions
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantMethods bool
	}{
		{"wildcard", CORSOptions{AllowedOrigins: []string{"*"}}, http.MethodGet, "http://app.example", http.StatusTeapot, "*", false},
		{"wildcard with credentials echoes", CORSOptions{AllowedOrigins: []string{"*"}, AllowCredentials: true}, http.MethodGet, "http://app.example", http.StatusTeapot, "http://app.example", false},
		{"listed origin", CORSOptions{AllowedOrigins: []string{" http://app.example "}}, http.MethodGet, "http://app.example", http.StatusTeapot, "http://app.example", false},
		{"unlisted origin", CORSOptions{AllowedOrigins: []string{"http://app.example"}}, http.MethodGet, "http://evil.example", http.StatusTeapot, "", false},
		{"no origin", CORSOptions{AllowedOrigins: []string{"*"}}, http.MethodGet, "", http.StatusTeapot, "", false},
		{"preflight", CORSOptions{AllowedOrigins: []string{"*"}}, http.MethodOptions, "http://app.example", http.StatusNoContent, "*", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/renders", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			rec := httptest.NewRecorder()

			CORS(tt.opts)(okHandler()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantMethods, rec.Header().Get("Access-Control-Allow-Methods") != "")
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		URL string `json:"url"`
	}

	t.Run("ignores unknown fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"url":"http://x","extra":1}`))
		var b body
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &b))
		assert.Equal(t, "http://x", b.URL)
	})

	for name, in := range map[string]string{
		"empty":     "",
		"malformed": "{",
		"too large": `{"url":"` + strings.Repeat("a", MaxBodyBytes) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(in))
			var b body
			err := DecodeJSON(httptest.NewRecorder(), req, &b)
			assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
		})
	}
}
