package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/memeify/internal/forum"
	"github.com/hitoshi/memeify/internal/model"
)

func newTestRegistry(m *mockMetrics, ttl time.Duration) *Registry {
	gws := map[model.FeedKind]forum.Gateway{
		model.FeedKindTrending: scriptedGateway(),
		model.FeedKindLatest:   scriptedGateway(),
	}
	if m == nil {
		return NewRegistry(gws, nil, ttl)
	}
	return NewRegistry(gws, m, ttl)
}

func TestRegistry_CreateAndGet(t *testing.T) {
	m := newMockMetrics()
	r := newTestRegistry(m, time.Minute)

	s, err := r.Create("user-1", model.FeedKindTrending)
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}
	if s.ID == "" || s.OwnerID != "user-1" || s.Kind != model.FeedKindTrending {
		t.Errorf("session = %+v", s)
	}
	if m.active != 1 {
		t.Errorf("active gauge = %d, want 1", m.active)
	}

	got, err := r.Get("user-1", s.ID)
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if got != s {
		t.Error("Get should return the created session")
	}
}

func TestRegistry_Create_UnknownKind(t *testing.T) {
	r := newTestRegistry(nil, time.Minute)

	_, err := r.Create("user-1", model.FeedKind("oldest"))

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidFeedKind {
		t.Fatalf("err = %v, want INVALID_FEED_KIND", err)
	}
}

func TestRegistry_Get_OtherOwnerIsNotFound(t *testing.T) {
	r := newTestRegistry(nil, time.Minute)
	s, _ := r.Create("user-1", model.FeedKindLatest)

	_, err := r.Get("user-2", s.ID)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeFeedSessionNotFound {
		t.Fatalf("err = %v, want FEED_SESSION_NOT_FOUND", err)
	}
}

func TestRegistry_Close(t *testing.T) {
	m := newMockMetrics()
	r := newTestRegistry(m, time.Minute)
	s, _ := r.Create("user-1", model.FeedKindLatest)

	if err := r.Close("user-2", s.ID); err == nil {
		t.Error("other owner must not close the session")
	}
	if err := r.Close("user-1", s.ID); err != nil {
		t.Fatalf("Close がエラーを返した: %v", err)
	}

	if !s.Closed() {
		t.Error("session should be disposed")
	}
	if _, err := r.Get("user-1", s.ID); err == nil {
		t.Error("closed session should not be found")
	}
	if r.Len() != 0 || m.active != 0 {
		t.Errorf("len = %d gauge = %d, want 0", r.Len(), m.active)
	}
}

func TestRegistry_Sweep_RemovesIdleSessions(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newTestRegistry(nil, 10*time.Minute)
	r.now = func() time.Time { return base }

	old, _ := r.Create("user-1", model.FeedKindLatest)

	r.now = func() time.Time { return base.Add(8 * time.Minute) }
	fresh, _ := r.Create("user-1", model.FeedKindTrending)

	removed := r.Sweep(base.Add(11 * time.Minute))

	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if !old.Closed() {
		t.Error("idle session should be closed")
	}
	if fresh.Closed() {
		t.Error("recent session should survive")
	}
	if r.Len() != 1 {
		t.Errorf("len = %d, want 1", r.Len())
	}
}

func TestRegistry_CloseOwner(t *testing.T) {
	m := newMockMetrics()
	r := newTestRegistry(m, time.Minute)
	a1, _ := r.Create("user-1", model.FeedKindLatest)
	a2, _ := r.Create("user-1", model.FeedKindTrending)
	b, _ := r.Create("user-2", model.FeedKindLatest)

	if n := r.CloseOwner("user-1"); n != 2 {
		t.Errorf("closed = %d, want 2", n)
	}
	if !a1.Closed() || !a2.Closed() {
		t.Error("owner's sessions should be disposed")
	}
	if b.Closed() {
		t.Error("other owner's session must survive")
	}
	if _, err := r.Get("user-2", b.ID); err != nil {
		t.Errorf("other owner's session lookup: %v", err)
	}
	if r.Len() != 1 || m.active != 1 {
		t.Errorf("len = %d gauge = %d, want 1", r.Len(), m.active)
	}

	if n := r.CloseOwner("user-1"); n != 0 {
		t.Errorf("second CloseOwner closed = %d, want 0", n)
	}
}
