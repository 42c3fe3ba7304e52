package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/memeify/internal/feed"
	"github.com/hitoshi/memeify/internal/middleware"
	"github.com/hitoshi/memeify/internal/model"
)

// FeedRegistry はフィードハンドラーが必要とするセッション管理のインターフェース。
type FeedRegistry interface {
	Create(ownerID string, kind model.FeedKind) (*feed.Session, error)
	Get(ownerID, id string) (*feed.Session, error)
	Close(ownerID, id string) error
}

// FeedHandler はミームフィードのページングセッションを扱うHTTPハンドラー。
type FeedHandler struct {
	registry FeedRegistry
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(registry FeedRegistry) *FeedHandler {
	return &FeedHandler{registry: registry}
}

// pageResponse はページ取得APIのレスポンス。
// itemsには今回追加された投稿のみを含め、UIは受信順に末尾へ追加する。
type pageResponse struct {
	SessionID string           `json:"session_id"`
	Kind      model.FeedKind   `json:"kind"`
	Outcome   feed.Outcome     `json:"outcome"`
	Items     []model.FeedItem `json:"items"`
	Total     int              `json:"total"`
	Exhausted bool             `json:"exhausted"`
}

// CreateSession はフィードセッションを作成し、最初のページを取得する。
// 最初のページの取得に失敗した場合はセッションを破棄する。
// POST /api/feeds/{kind}/sessions
func (h *FeedHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerOrUnauthorized(w, r)
	if !ok {
		return
	}

	kind, err := model.ParseFeedKind(chi.URLParam(r, "kind"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	session, err := h.registry.Create(viewer.ID, kind)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp, err := h.trigger(r.Context(), session)
	if err != nil {
		if closeErr := h.registry.Close(viewer.ID, session.ID); closeErr != nil {
			slog.Debug("feed session already gone", slog.String("session_id", session.ID))
		}
		h.writeTriggerError(w, session.ID, err)
		return
	}

	slog.Info("feed session created",
		slog.String("session_id", session.ID),
		slog.String("kind", string(kind)),
		slog.Int("items", resp.Total),
	)
	writeJSON(w, http.StatusCreated, resp)
}

// NextPage はセンチネル要素の表示を受けて次のページを取得する。
// 取得中・終端到達時は何もせず、その旨をoutcomeで返す。
// POST /api/feeds/sessions/{id}/next
func (h *FeedHandler) NextPage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	resp, err := h.trigger(r.Context(), session)
	if err != nil {
		h.writeTriggerError(w, session.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSession はセッションの現在の状態（取得済みの全投稿を含む）を返す。
// 再描画時の復元に使用する。
// GET /api/feeds/sessions/{id}
func (h *FeedHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// CloseSession はセッションを破棄する。取得中の結果は反映されない。
// DELETE /api/feeds/sessions/{id}
func (h *FeedHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	viewer, ok := viewerOrUnauthorized(w, r)
	if !ok {
		return
	}

	if err := h.registry.Close(viewer.ID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lookup はURLパラメータのセッションを取得する。失敗時はエラーレスポンスを書き込む。
func (h *FeedHandler) lookup(w http.ResponseWriter, r *http.Request) (*feed.Session, bool) {
	viewer, ok := viewerOrUnauthorized(w, r)
	if !ok {
		return nil, false
	}

	session, err := h.registry.Get(viewer.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	return session, true
}

func (h *FeedHandler) trigger(ctx context.Context, session *feed.Session) (pageResponse, error) {
	result, err := session.Trigger(ctx)
	if err != nil {
		return pageResponse{}, err
	}

	total, exhausted := session.Stats()
	items := result.Appended
	if items == nil {
		items = []model.FeedItem{}
	}
	return pageResponse{
		SessionID: session.ID,
		Kind:      session.Kind,
		Outcome:   result.Outcome,
		Items:     items,
		Total:     total,
		Exhausted: exhausted,
	}, nil
}

// writeTriggerError は取得失敗をレスポンスに変換する。
// 取得中に破棄されたセッションは存在しないものとして扱う。
func (h *FeedHandler) writeTriggerError(w http.ResponseWriter, sessionID string, err error) {
	if errors.Is(err, feed.ErrSessionClosed) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewFeedSessionNotFoundError(sessionID))
		return
	}
	handleServiceError(w, err)
}
