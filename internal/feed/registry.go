package feed

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/memeify/internal/forum"
	"github.com/hitoshi/memeify/internal/metrics"
	"github.com/hitoshi/memeify/internal/model"
)

// DefaultSessionTTL はフィードセッションの既定のアイドル期限。
const DefaultSessionTTL = 30 * time.Minute

// Registry はユーザーごとのフィードセッションを管理する。
// セッションは作成したユーザーからのみ参照できる。
type Registry struct {
	normalizers map[model.FeedKind]*Normalizer
	metrics     metrics.MetricsCollector
	ttl         time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry はフィード種別ごとのゲートウェイからRegistryを生成する。
func NewRegistry(gateways map[model.FeedKind]forum.Gateway, metricsCollector metrics.MetricsCollector, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	normalizers := make(map[model.FeedKind]*Normalizer, len(gateways))
	for kind, gw := range gateways {
		normalizers[kind] = NewNormalizer(gw, metricsCollector)
	}
	return &Registry{
		normalizers: normalizers,
		metrics:     metricsCollector,
		ttl:         ttl,
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}
}

// Create は新しいセッションを作成する。取得はまだ行わない。
func (r *Registry) Create(ownerID string, kind model.FeedKind) (*Session, error) {
	n, ok := r.normalizers[kind]
	if !ok {
		return nil, model.NewInvalidFeedKindError(string(kind))
	}

	s := newSession(uuid.New().String(), ownerID, kind, n, r.now)

	r.mu.Lock()
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.reportSize(count)
	return s, nil
}

// Get はセッションを取得する。存在しない、または所有者が異なる場合はNotFoundエラーを返す。
func (r *Registry) Get(ownerID, id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()

	if !ok || s.OwnerID != ownerID || s.Closed() {
		return nil, model.NewFeedSessionNotFoundError(id)
	}
	s.touch()
	return s, nil
}

// Close はセッションを破棄して登録を解除する。
func (r *Registry) Close(ownerID, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || s.OwnerID != ownerID {
		r.mu.Unlock()
		return model.NewFeedSessionNotFoundError(id)
	}
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	s.Close()
	r.reportSize(count)
	return nil
}

// CloseOwner は指定ユーザーのセッションをすべて破棄し、破棄した件数を返す。
func (r *Registry) CloseOwner(ownerID string) int {
	r.mu.Lock()
	var owned []*Session
	for id, s := range r.sessions {
		if s.OwnerID == ownerID {
			owned = append(owned, s)
			delete(r.sessions, id)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	for _, s := range owned {
		s.Close()
	}
	r.reportSize(count)
	return len(owned)
}

// Sweep はTTLを超えてアクセスのないセッションを破棄し、破棄した件数を返す。
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.Closed() || s.idleSince(now) > r.ttl {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	r.reportSize(count)
	return len(expired)
}

// Len は登録中のセッション数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) reportSize(count int) {
	if r.metrics != nil {
		r.metrics.SetActiveFeedSessions(count)
	}
}
