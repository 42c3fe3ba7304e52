// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/memeify/internal/middleware"
	"github.com/hitoshi/memeify/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// FeedSessionCloser はログアウト時にユーザーのフィードセッションを破棄する。
type FeedSessionCloser interface {
	CloseOwner(ownerID string) int
}

// AuthHandler はGitHub OAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service      AuthServiceInterface
	config       AuthHandlerConfig
	feedSessions FeedSessionCloser // nilの場合はTTL切れまで残る
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// sessionResponse はセッション確認APIのレスポンス。
type sessionResponse struct {
	Authenticated bool               `json:"authenticated"`
	User          *middleware.Viewer `json:"user"`
}

// Login はGitHub OAuthフローを開始する。
// GET /auth/github/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_OAUTH_STATE",
			Message:  "認証リクエストの検証に失敗しました。",
			Category: "auth",
			Action:   "もう一度ログインしてください。",
		})
		return
	}

	h.clearCookie(w, oauthStateCookie, "")

	// ユーザーが認可を拒否した場合は error=access_denied で戻ってくる
	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Info("oauth authorization not granted", slog.String("error", r.URL.Query().Get("error")))
		http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
		return
	}

	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	// セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		// セッション破棄前に所有者を解決しておく
		if h.feedSessions != nil {
			if user, userErr := h.service.GetCurrentUser(r.Context(), cookie.Value); userErr == nil && user != nil {
				closed := h.feedSessions.CloseOwner(user.ID)
				slog.Debug("feed sessions closed on logout", slog.Int("count", closed))
			}
		}
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	h.clearCookie(w, middleware.SessionCookieName, h.config.CookieDomain)
	http.Redirect(w, r, h.config.BaseURL, http.StatusSeeOther)
}

// Session はログイン状態を返す。未ログインでも200を返す。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{}
	if viewer, ok := h.currentViewer(r); ok {
		resp.Authenticated = true
		resp.User = &viewer
	}
	writeJSON(w, http.StatusOK, resp)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.currentViewer(r)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, viewer)
}

// currentViewer はセッションCookieからサインイン中のユーザーを解決する。
func (h *AuthHandler) currentViewer(r *http.Request) (middleware.Viewer, bool) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return middleware.Viewer{}, false
	}
	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil || user == nil {
		return middleware.Viewer{}, false
	}
	return middleware.NewViewer(*user), true
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
