package giphy

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/memeify/internal/model"
	"github.com/hitoshi/memeify/internal/upstream"
)

func newTestClient(server *httptest.Server) *Client {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	c := NewClient(upstream.NewClient(server.Client(), logger, nil, 1<<20), "test-key", 0, "")
	c.endpoint = server.URL
	return c
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeTrending, false},
		{"trending", ModeTrending, false},
		{"search", ModeSearch, false},
		{"stickers", ModeStickers, false},
		{"stickers-search", ModeStickersSearch, false},
		{"clips", "", true},
		{"TRENDING", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if tt.wantErr {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidMediaType {
					t.Errorf("err = %v, want INVALID_MEDIA_TYPE", err)
				}
			}
		})
	}
}

func TestNewRequest_QueryValidation(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		query     string
		wantQuery string
		wantCode  string
	}{
		{"trending ignores query", "trending", "cats", "", ""},
		{"search trims query", "search", "  cats  ", "cats", ""},
		{"search requires query", "search", "   ", "", model.ErrCodeInvalidQuery},
		{"stickers-search requires query", "stickers-search", "", "", model.ErrCodeInvalidQuery},
		{"too long", "search", strings.Repeat("a", 51), "", model.ErrCodeInvalidQuery},
		{"invalid mode", "memes", "cats", "", model.ErrCodeInvalidMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(tt.mode, tt.query)
			if tt.wantCode != "" {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) || apiErr.Code != tt.wantCode {
					t.Fatalf("err = %v, want %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", req.Query, tt.wantQuery)
			}
		})
	}
}

func TestClient_Search_BuildsRequestAndRelaysBody(t *testing.T) {
	const payload = `{"data":[{"id":"g1","title":"cat","images":{"original":{"url":"https://media.giphy.com/g1.gif"}}}],"pagination":{"count":1},"meta":{"status":200}}`

	tests := []struct {
		mode     Mode
		query    string
		wantPath string
		wantQ    string
	}{
		{ModeTrending, "", "/gifs/trending", ""},
		{ModeSearch, "cats", "/gifs/search", "cats"},
		{ModeStickers, "", "/stickers/trending", ""},
		{ModeStickersSearch, "dogs", "/stickers/search", "dogs"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.wantPath {
					t.Errorf("path = %s, want %s", r.URL.Path, tt.wantPath)
				}
				q := r.URL.Query()
				if q.Get("api_key") != "test-key" {
					t.Errorf("api_key = %s, want test-key", q.Get("api_key"))
				}
				if q.Get("limit") != "20" || q.Get("rating") != "g" {
					t.Errorf("limit/rating = %s/%s, want 20/g", q.Get("limit"), q.Get("rating"))
				}
				if q.Get("q") != tt.wantQ {
					t.Errorf("q = %q, want %q", q.Get("q"), tt.wantQ)
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(payload))
			}))
			defer server.Close()

			body, err := newTestClient(server).Search(context.Background(), Request{Mode: tt.mode, Query: tt.query})
			if err != nil {
				t.Fatalf("Search がエラーを返した: %v", err)
			}
			if string(body) != payload {
				t.Errorf("body should be relayed unchanged, got %s", body)
			}
		})
	}
}

func TestClient_Search_RejectsUnexpectedShape(t *testing.T) {
	bodies := []string{
		`{"meta":{"status":200}}`,
		`{"data":{"id":"x"}}`,
		`not json`,
	}
	for _, b := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(b))
		}))

		_, err := newTestClient(server).Search(context.Background(), Request{Mode: ModeTrending})
		server.Close()

		var pe *upstream.PayloadError
		if !errors.As(err, &pe) {
			t.Errorf("body %q: err = %v, want PayloadError", b, err)
		}
	}
}

func TestClient_Search_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Invalid authentication credentials"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server).Search(context.Background(), Request{Mode: ModeTrending})

	var te *upstream.TransientError
	if !errors.As(err, &te) || te.StatusCode != http.StatusForbidden {
		t.Fatalf("err = %v, want TransientError with 403", err)
	}
}
