// Package model はドメインモデルを定義する。
package model

// Cursor は掲示板APIが返す継続トークン。
// 空文字列はストリームの先頭、またはゲートウェイの応答ではストリームの終端を表す。
type Cursor string

// IsEnd はゲートウェイが返したカーソルがストリーム終端を示すかを返す。
func (c Cursor) IsEnd() bool {
	return c == ""
}

// FeedKind はミームフィードの種別を表す。
type FeedKind string

const (
	// FeedKindTrending は人気順（hot）のフィード。
	FeedKindTrending FeedKind = "trending"
	// FeedKindLatest は新着順（new）のフィード。
	FeedKindLatest FeedKind = "latest"
)

// ParseFeedKind は文字列からFeedKindを解析する。
func ParseFeedKind(s string) (FeedKind, error) {
	switch FeedKind(s) {
	case FeedKindTrending, FeedKindLatest:
		return FeedKind(s), nil
	default:
		return "", NewInvalidFeedKindError(s)
	}
}

// Sort は掲示板APIのソート指定に変換する。
func (k FeedKind) Sort() string {
	if k == FeedKindLatest {
		return "new"
	}
	return "hot"
}

// HintImage は画像投稿を表す投稿ヒント。
const HintImage = "image"

// RawPost は掲示板APIから取得した未正規化の投稿。
type RawPost struct {
	ID          string
	Title       string
	Ups         *int     // 取得できない場合はnil
	Hint        string   // 投稿種別のヒント（"image", "self", "link" 等）
	PreviewURLs []string // プレビュー画像URL（先頭が代表画像）
	Permalink   string   // スレッドへの絶対URL
}

// Page はゲートウェイが返す1ページ分の投稿と次のカーソル。
type Page struct {
	Posts []RawPost
	After Cursor // 空の場合はストリーム終端
}

// FeedItem は正規化済みの表示単位。
type FeedItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	MediaURL  string `json:"media_url"`
	Score     int    `json:"score"`
	Permalink string `json:"permalink,omitempty"`
}
