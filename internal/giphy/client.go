// Package giphy はGIPHY APIのGIF・ステッカー検索を中継するクライアントを提供する。
// リクエストは種別とクエリを検証してから送信し、
// レスポンスは形式を確認した上で加工せずに返す。
package giphy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/memeify/internal/model"
	"github.com/hitoshi/memeify/internal/upstream"
)

const (
	// defaultEndpoint はGIPHY APIのベースURL。
	defaultEndpoint = "https://api.giphy.com/v1"
	// providerName はメトリクスとエラーで使用する外部API名。
	providerName = "giphy"
	// maxQueryLength はGIPHYが受け付ける検索語の最大文字数。
	maxQueryLength = 50
	// DefaultLimit は1回の取得件数。
	DefaultLimit = 20
	// DefaultRating はコンテンツレーティング。
	DefaultRating = "g"
)

// Mode は検索種別。
type Mode string

const (
	ModeTrending       Mode = "trending"
	ModeSearch         Mode = "search"
	ModeStickers       Mode = "stickers"
	ModeStickersSearch Mode = "stickers-search"
)

// ParseMode は文字列からModeを解析する。空文字列はtrendingとして扱う。
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeTrending, nil
	case ModeTrending, ModeSearch, ModeStickers, ModeStickersSearch:
		return m, nil
	default:
		return "", model.NewInvalidMediaTypeError(s)
	}
}

// IsSearch はクエリを必要とする種別かを返す。
func (m Mode) IsSearch() bool {
	return m == ModeSearch || m == ModeStickersSearch
}

// path はGIPHY APIのパスを返す。
func (m Mode) path() string {
	switch m {
	case ModeSearch:
		return "/gifs/search"
	case ModeStickers:
		return "/stickers/trending"
	case ModeStickersSearch:
		return "/stickers/search"
	default:
		return "/gifs/trending"
	}
}

// Request は検証済みの検索リクエスト。
type Request struct {
	Mode  Mode
	Query string
}

// NewRequest は種別とクエリを検証してRequestを生成する。
// 検索種別ではクエリが必須。トレンド種別ではクエリを無視する。
func NewRequest(mode, query string) (Request, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return Request{}, err
	}
	if !m.IsSearch() {
		return Request{Mode: m}, nil
	}

	q := strings.TrimSpace(query)
	if q == "" || utf8.RuneCountInString(q) > maxQueryLength {
		return Request{}, model.NewInvalidQueryError()
	}
	return Request{Mode: m, Query: q}, nil
}

// searchResponse はレスポンス形式の確認に使用する最小限の構造。
type searchResponse struct {
	Data *[]json.RawMessage `json:"data"`
}

// Client はGIPHY APIのクライアント。
type Client struct {
	upstream *upstream.Client
	endpoint string // テスト用にエンドポイントを差し替え可能
	apiKey   string
	limit    int
	rating   string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(up *upstream.Client, apiKey string, limit int, rating string) *Client {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if rating == "" {
		rating = DefaultRating
	}
	return &Client{
		upstream: up,
		endpoint: defaultEndpoint,
		apiKey:   apiKey,
		limit:    limit,
		rating:   rating,
	}
}

// Search はリクエストに応じたGIF・ステッカー一覧を取得し、レスポンスボディをそのまま返す。
// dataが配列でないレスポンスはPayloadErrorとなる。
func (c *Client) Search(ctx context.Context, req Request) ([]byte, error) {
	var resp searchResponse
	body, err := c.upstream.GetJSON(ctx, providerName, c.requestURL(req), &resp)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, upstream.NewPayloadError(providerName, "missing data array")
	}
	return body, nil
}

// requestURL はGIPHY APIのURLを組み立てる。
func (c *Client) requestURL(req Request) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("rating", c.rating)
	if req.Mode.IsSearch() {
		q.Set("q", req.Query)
	}
	return fmt.Sprintf("%s%s?%s", c.endpoint, req.Mode.path(), q.Encode())
}
