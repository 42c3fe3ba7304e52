// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code      string // エラーコード
	Message   string // エラーメッセージ
	Category  string // カテゴリ: auth, validation, feed, upstream, system
	Action    string // ユーザー向け対処方法
	Retryable bool   // ユーザー操作による再試行で回復し得るか
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidMediaType       = "INVALID_MEDIA_TYPE"
	ErrCodeInvalidQuery           = "INVALID_QUERY"
	ErrCodeInvalidCaption         = "INVALID_CAPTION"
	ErrCodeInvalidFeedKind        = "INVALID_FEED_KIND"
	ErrCodeInvalidMediaURL        = "INVALID_MEDIA_URL"
	ErrCodeInvalidRequestBody     = "INVALID_REQUEST_BODY"
	ErrCodeFetchFailed            = "FETCH_FAILED"
	ErrCodeUpstreamPayloadInvalid = "UPSTREAM_PAYLOAD_INVALID"
	ErrCodeFeedSessionNotFound    = "FEED_SESSION_NOT_FOUND"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
)

// NewInvalidMediaTypeError は未知のメディア検索モードを指定された場合のエラーを生成する。
func NewInvalidMediaTypeError(mode string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMediaType,
		Message:  fmt.Sprintf("無効な検索タイプです: %s", mode),
		Category: "validation",
		Action:   "typeには trending、search、stickers、stickers-search のいずれかを指定してください。",
	}
}

// NewInvalidQueryError は検索キーワードが空の場合のエラーを生成する。
func NewInvalidQueryError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuery,
		Message:  "検索キーワードが指定されていません。",
		Category: "validation",
		Action:   "検索キーワードを入力してください。",
	}
}

// NewInvalidCaptionError はキャプション生成リクエストが不正な場合のエラーを生成する。
func NewInvalidCaptionError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCaption,
		Message:  fmt.Sprintf("キャプションの指定が不正です: %s", reason),
		Category: "validation",
		Action:   "テンプレートを選択し、上下のテキストを入力してください。",
	}
}

// NewInvalidFeedKindError は未知のフィード種別を指定された場合のエラーを生成する。
func NewInvalidFeedKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFeedKind,
		Message:  fmt.Sprintf("無効なフィード種別です: %s", kind),
		Category: "validation",
		Action:   "フィード種別には trending または latest を指定してください。",
	}
}

// NewInvalidMediaURLError はダウンロード対象のURLが許可されていない場合のエラーを生成する。
func NewInvalidMediaURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMediaURL,
		Message:  fmt.Sprintf("ダウンロードできないURLです: %s", reason),
		Category: "validation",
		Action:   "一覧に表示されている画像のURLを指定してください。",
	}
}

// NewInvalidRequestBodyError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestBodyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequestBody,
		Message:  "リクエストボディが不正です。",
		Category: "validation",
		Action:   "JSON形式で必要な項目を送信してください。",
	}
}

// NewFetchFailedError は外部APIへのアクセスに失敗した場合のエラーを生成する。
// 状態は変更されていないため、ユーザーは再試行できる。
func NewFetchFailedError(provider string) *APIError {
	return &APIError{
		Code:      ErrCodeFetchFailed,
		Message:   fmt.Sprintf("%s からの取得に失敗しました。", provider),
		Category:  "upstream",
		Action:    "しばらく待ってから再度お試しください。",
		Retryable: true,
	}
}

// NewUpstreamPayloadError は外部APIのレスポンス形式が想定と異なる場合のエラーを生成する。
func NewUpstreamPayloadError(provider string) *APIError {
	return &APIError{
		Code:      ErrCodeUpstreamPayloadInvalid,
		Message:   fmt.Sprintf("%s から予期しない形式のレスポンスを受信しました。", provider),
		Category:  "upstream",
		Action:    "しばらく待ってから再度お試しください。",
		Retryable: true,
	}
}

// NewFeedSessionNotFoundError はフィードセッションが存在しないか終了済みの場合のエラーを生成する。
func NewFeedSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedSessionNotFound,
		Message:  fmt.Sprintf("フィードセッションが見つかりません: %s", sessionID),
		Category: "feed",
		Action:   "ページを再読み込みしてください。",
	}
}

// NewUnauthorizedError は未ログインの場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}
