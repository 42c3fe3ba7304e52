package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/memeify/internal/model"
	"github.com/hitoshi/memeify/internal/upstream"
)

// mockGuard はURLGuardのモック。httptestサーバーへ接続できるよう通常のクライアントを返す。
type mockGuard struct {
	validateFn func(rawURL string) error
	client     *http.Client
}

func (m *mockGuard) ValidateURL(rawURL string) error {
	if m.validateFn != nil {
		return m.validateFn(rawURL)
	}
	return nil
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return m.client
}

func newTestDownloader(server *httptest.Server, guard *mockGuard, maxSize int64) *Downloader {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	if guard.client == nil {
		guard.client = server.Client()
	}
	return NewDownloader(guard, logger, nil, 5*time.Second, maxSize)
}

func TestDownloader_Fetch_StreamsMedia(t *testing.T) {
	gif := []byte("GIF89a-test-body")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != upstream.DefaultUserAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "image/gif")
		w.Write(gif)
	}))
	defer server.Close()

	d := newTestDownloader(server, &mockGuard{}, 1<<20)

	dl, err := d.Fetch(context.Background(), server.URL+"/media/abc/giphy.gif", "funny cat")
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	defer dl.Body.Close()

	got, err := io.ReadAll(dl.Body)
	if err != nil {
		t.Fatalf("ボディの読み取りに失敗: %v", err)
	}
	if !bytes.Equal(got, gif) {
		t.Errorf("body = %q, want %q", got, gif)
	}
	if dl.ContentType != "image/gif" {
		t.Errorf("ContentType = %q, want image/gif", dl.ContentType)
	}
	if dl.Filename != "funny_cat.gif" {
		t.Errorf("Filename = %q, want funny_cat.gif", dl.Filename)
	}
}

func TestDownloader_Fetch_RejectedURL(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	guard := &mockGuard{validateFn: func(rawURL string) error {
		return errors.New("host not allowed: evil.example")
	}}
	d := newTestDownloader(server, guard, 1<<20)

	_, err := d.Fetch(context.Background(), "https://evil.example/x.gif", "")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidMediaURL {
		t.Fatalf("err = %v, want INVALID_MEDIA_URL", err)
	}
	if called {
		t.Error("rejected URL must not be requested")
	}
}

func TestDownloader_Fetch_RejectsNonMedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	_, err := newTestDownloader(server, &mockGuard{}, 1<<20).Fetch(context.Background(), server.URL+"/page", "")

	var pe *upstream.PayloadError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PayloadError", err)
	}
}

func TestDownloader_Fetch_UpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newTestDownloader(server, &mockGuard{}, 1<<20).Fetch(context.Background(), server.URL+"/gone.gif", "")

	var te *upstream.TransientError
	if !errors.As(err, &te) || te.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want TransientError 404", err)
	}
}

func TestDownloader_Fetch_SizeLimit(t *testing.T) {
	t.Run("declared length", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Content-Length", "64")
			w.Write(bytes.Repeat([]byte("x"), 64))
		}))
		defer server.Close()

		_, err := newTestDownloader(server, &mockGuard{}, 16).Fetch(context.Background(), server.URL+"/big.png", "")

		var pe *upstream.PayloadError
		if !errors.As(err, &pe) {
			t.Fatalf("err = %v, want PayloadError", err)
		}
	})

	t.Run("streamed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			for i := 0; i < 4; i++ {
				w.Write(bytes.Repeat([]byte("x"), 16))
				w.(http.Flusher).Flush()
			}
		}))
		defer server.Close()

		dl, err := newTestDownloader(server, &mockGuard{}, 16).Fetch(context.Background(), server.URL+"/big.png", "")
		if err != nil {
			t.Fatalf("Fetch がエラーを返した: %v", err)
		}
		defer dl.Body.Close()

		if _, err := io.ReadAll(dl.Body); !errors.Is(err, errTooLarge) {
			t.Errorf("err = %v, want errTooLarge", err)
		}
	})
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		urlPath     string
		want        string
	}{
		{"cat", "image/gif", "/a.gif", "cat.gif"},
		{"", "image/jpeg", "/a.jpeg", "memeify.jpg"},
		{"../../etc/passwd", "image/png", "/a", "etcpasswd.png"},
		{"ミーム", "image/webp", "/a", "memeify.webp"},
		{"clip", "video/webm", "/v/clip.WEBM", "clip.webm"},
		{"avif", "image/avif", "/i/a.avif", "avif.avif"},
		{"quoted", "image/avif", "/x.gi\"f", "quoted"},
		{"long", "image/svg+xml", "/x.verylong", "long"},
		{"dotted", "image/svg+xml", "/x.sv g", "dotted"},
		{"noext", "image/avif", "/x", "noext"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Filename(tt.name, tt.contentType, tt.urlPath); got != tt.want {
				t.Errorf("Filename(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}
