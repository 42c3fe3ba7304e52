package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/memeify/internal/model"
)

// newProtectedRouter は /api 配下と同じ Session -> RateLimit -> CSRF の順でチェーンを組む。
func newProtectedRouter(t *testing.T) *chi.Mux {
	t.Helper()
	resolver := &mockUserResolver{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			if sessionID == "chain-session" {
				return &model.User{ID: "github:7", Login: "chain"}, nil
			}
			return nil, errors.New("not found")
		},
	}
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 10,
		CaptionRate: 1, CaptionBurst: 10,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/csrf-token", NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP)
		r.Group(func(r chi.Router) {
			r.Use(NewSessionMiddleware(resolver))
			r.Use(rl.GeneralMiddleware())
			r.Use(NewCSRFMiddleware(CSRFConfig{}))
			r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
				v, _ := ViewerFromContext(r.Context())
				w.Write([]byte(v.Login))
			})
			r.Post("/feeds/sessions/{id}/next", func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chi.URLParam(r, "id")))
			})
		})
	})
	return r
}

func TestMiddlewareChain_CSRFTokenEndpointIsPublic(t *testing.T) {
	r := newProtectedRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestMiddlewareChain_GETWithSession(t *testing.T) {
	r := newProtectedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "chain-session"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "chain" {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestMiddlewareChain_POSTRequiresSessionThenCSRF(t *testing.T) {
	r := newProtectedRouter(t)

	tests := []struct {
		name       string
		session    bool
		csrf       bool
		wantStatus int
	}{
		{"no session", false, true, http.StatusUnauthorized},
		{"session without csrf", true, false, http.StatusForbidden},
		{"session with csrf", true, true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/feeds/sessions/abc/next", nil)
			if tt.session {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "chain-session"})
			}
			if tt.csrf {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
				req.Header.Set(csrfHeaderName, "tok")
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && w.Body.String() != "abc" {
				t.Errorf("body = %q, want abc", w.Body.String())
			}
		})
	}
}
