// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/memeify/internal/model"
)

// SessionCookieName はログインセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey = contextKey("user_id")
	viewerContextKey = contextKey("viewer")
)

// errNoViewer はコンテキストにサインイン中のユーザーが存在しない場合のエラー。
var errNoViewer = errors.New("viewer not found in context")

// UserResolver はセッションIDからサインイン中のユーザーを解決する。
// auth.Serviceが満たす。
type UserResolver interface {
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// Viewer はリクエストを送ったサインイン中のユーザーの読み取り専用ビュー。
// 値として受け渡すため、ハンドラーから元のセッションを書き換えることはできない。
type Viewer struct {
	ID    string `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// NewViewer はユーザーから読み取り専用ビューを生成する。
func NewViewer(u model.User) Viewer {
	return Viewer{ID: u.ID, Login: u.Login, Name: u.Name, Email: u.Email}
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みユーザーをViewerとしてリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(resolver UserResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			user, err := resolver.GetCurrentUser(r.Context(), cookie.Value)
			if err != nil || user == nil {
				if err != nil {
					slog.Debug("session rejected", slog.String("error", err.Error()))
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			annotateUserID(r.Context(), user.ID)
			ctx := ContextWithViewer(r.Context(), NewViewer(*user))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ViewerFromContext はリクエストコンテキストからサインイン中のユーザーを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func ViewerFromContext(ctx context.Context) (Viewer, error) {
	v, ok := ctx.Value(viewerContextKey).(Viewer)
	if !ok || v.ID == "" {
		return Viewer{}, errNoViewer
	}
	return v, nil
}

// ContextWithViewer はコンテキストにサインイン中のユーザーを注入する。
// ユーザーIDも併せて格納する。
func ContextWithViewer(ctx context.Context, v Viewer) context.Context {
	ctx = context.WithValue(ctx, viewerContextKey, v)
	return context.WithValue(ctx, userIDContextKey, v.ID)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDのみを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithViewer(ctx, Viewer{ID: userID})
}
