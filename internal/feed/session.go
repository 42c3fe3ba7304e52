package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hitoshi/memeify/internal/model"
)

// ErrSessionClosed はクローズ済みセッションへの操作、
// またはクローズ後に完了した取得結果を示す。
var ErrSessionClosed = errors.New("feed session closed")

// Phase はセッションの状態。
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseExhausted Phase = "exhausted"
)

// Outcome はTriggerの結果種別。
type Outcome string

const (
	// OutcomeFetched はページを取得して反映したことを示す。
	OutcomeFetched Outcome = "fetched"
	// OutcomeInFlight は取得中のため要求を無視したことを示す。
	OutcomeInFlight Outcome = "in_flight"
	// OutcomeExhausted は終端に達しているため何もしなかったことを示す。
	OutcomeExhausted Outcome = "exhausted"
)

// TriggerResult はTriggerの戻り値。
type TriggerResult struct {
	Outcome  Outcome
	Appended []model.FeedItem
}

// Snapshot はセッション状態のコピー。
type Snapshot struct {
	ID        string           `json:"id"`
	Kind      model.FeedKind   `json:"kind"`
	Phase     Phase            `json:"phase"`
	Items     []model.FeedItem `json:"items"`
	Cursor    model.Cursor     `json:"cursor"`
	Exhausted bool             `json:"exhausted"`
}

// Session は1つの表示中フィードに対応するページングセッション。
// 取得は同時に1つまでで、取得中のTriggerは無視される。
// ロックは状態の確認と反映の間だけ保持し、外部API呼び出し中は保持しない。
type Session struct {
	ID      string
	OwnerID string
	Kind    model.FeedKind

	normalizer *Normalizer
	now        func() time.Time

	mu         sync.Mutex
	state      *State
	inFlight   bool
	disposed   bool
	cancel     context.CancelFunc
	lastActive time.Time
}

// NewSession はSessionを生成する。
func NewSession(id, ownerID string, kind model.FeedKind, normalizer *Normalizer) *Session {
	return newSession(id, ownerID, kind, normalizer, time.Now)
}

func newSession(id, ownerID string, kind model.FeedKind, normalizer *Normalizer, now func() time.Time) *Session {
	return &Session{
		ID:         id,
		OwnerID:    ownerID,
		Kind:       kind,
		normalizer: normalizer,
		now:        now,
		state:      NewState(),
		lastActive: now(),
	}
}

// Trigger はセンチネル要素が表示されたことを通知し、必要なら次のページを取得する。
// 取得に失敗した場合、状態は変更されずエラーを返す。
// 取得中にCloseされた場合、結果は破棄されErrSessionClosedを返す。
func (s *Session) Trigger(ctx context.Context) (TriggerResult, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return TriggerResult{}, ErrSessionClosed
	}
	s.lastActive = s.now()
	if s.state.Exhausted {
		s.mu.Unlock()
		return TriggerResult{Outcome: OutcomeExhausted}, nil
	}
	if s.inFlight {
		s.mu.Unlock()
		return TriggerResult{Outcome: OutcomeInFlight}, nil
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.inFlight = true
	s.cancel = cancel
	cursor := s.state.Cursor
	s.mu.Unlock()

	defer s.release(cancel)

	page, err := s.normalizer.fetch(fetchCtx, cursor)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return TriggerResult{}, ErrSessionClosed
	}
	if err != nil {
		return TriggerResult{}, err
	}

	appended := s.normalizer.apply(s.state, page)
	return TriggerResult{Outcome: OutcomeFetched, Appended: appended}, nil
}

// release は取得中フラグを解除する。パニック時もdeferで必ず実行される。
func (s *Session) release(cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	s.inFlight = false
	s.cancel = nil
	s.mu.Unlock()
}

// Close はセッションを破棄し、進行中の取得をキャンセルする。複数回呼んでもよい。
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Closed はセッションが破棄済みかを返す。
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Phase は現在の状態を返す。
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked()
}

func (s *Session) phaseLocked() Phase {
	switch {
	case s.state.Exhausted:
		return PhaseExhausted
	case s.inFlight:
		return PhaseFetching
	default:
		return PhaseIdle
	}
}

// Snapshot は現在の状態のコピーを返す。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]model.FeedItem, len(s.state.Items))
	copy(items, s.state.Items)

	return Snapshot{
		ID:        s.ID,
		Kind:      s.Kind,
		Phase:     s.phaseLocked(),
		Items:     items,
		Cursor:    s.state.Cursor,
		Exhausted: s.state.Exhausted,
	}
}

// Stats は蓄積済みアイテム数と終端到達済みかを返す。Snapshotと異なりアイテムをコピーしない。
func (s *Session) Stats() (total int, exhausted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Items), s.state.Exhausted
}

// touch は最終アクセス時刻を更新する。
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// idleSince は最終アクセスからの経過時間を返す。取得中は0を返す。
func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return 0
	}
	return now.Sub(s.lastActive)
}
