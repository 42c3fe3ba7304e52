package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// countingSweeper は呼び出し回数と渡された時刻を記録するモック。
type countingSweeper struct {
	mu      sync.Mutex
	calls   int
	times   []time.Time
	deleted int
}

func (s *countingSweeper) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.times = append(s.times, now)
	return s.deleted
}

func (s *countingSweeper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestJanitor_RunOnce_SumsDeletedCounts(t *testing.T) {
	var buf bytes.Buffer
	j := NewJanitor(newTestLogger(&buf))

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	sessions := &countingSweeper{deleted: 2}
	feeds := &countingSweeper{deleted: 3}
	j.Register("auth_sessions", sessions)
	j.Register("feed_sessions", feeds)

	if got := j.RunOnce(); got != 5 {
		t.Errorf("RunOnce() = %d, want 5", got)
	}
	if sessions.calls != 1 || feeds.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", sessions.calls, feeds.calls)
	}
	if !sessions.times[0].Equal(fixed) || !feeds.times[0].Equal(fixed) {
		t.Error("all sweepers should receive the same timestamp")
	}
}

func TestJanitor_RunOnce_LogsOnlyWhenDeleted(t *testing.T) {
	var buf bytes.Buffer
	j := NewJanitor(newTestLogger(&buf))
	j.Register("auth_sessions", &countingSweeper{deleted: 0})
	j.Register("feed_sessions", &countingSweeper{deleted: 4})

	j.RunOnce()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log is not JSON: %v", err)
	}
	if entry["target"] != "feed_sessions" || entry["deleted_count"] != float64(4) {
		t.Errorf("entry = %v", entry)
	}
}

func TestJanitor_SweeperFunc(t *testing.T) {
	var buf bytes.Buffer
	j := NewJanitor(newTestLogger(&buf))

	called := false
	j.Register("func", SweeperFunc(func(now time.Time) int {
		called = true
		return 1
	}))

	if got := j.RunOnce(); got != 1 || !called {
		t.Errorf("RunOnce() = %d, called = %v", got, called)
	}
}

func TestJanitor_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	j := NewJanitor(newTestLogger(&buf))
	s := &countingSweeper{}
	j.Register("feed_sessions", s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for s.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper should run once right after start")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start should return after context cancellation")
	}
}

func TestJanitor_Start_RunsOnEveryTick(t *testing.T) {
	var buf bytes.Buffer
	j := NewJanitor(newTestLogger(&buf))
	s := &countingSweeper{}
	j.Register("feed_sessions", s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go j.Start(ctx, 10*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for s.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want at least 3", s.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
