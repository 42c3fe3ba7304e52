// Package forum は掲示板API（Reddit）から投稿ページを取得するゲートウェイを提供する。
// 取得形式はJSONリスティングとAtomフィードの2種類に対応し、
// どちらも未正規化のmodel.RawPostとして返す。
package forum

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/memeify/internal/model"
	"github.com/hitoshi/memeify/internal/upstream"
)

// providerName はメトリクスとエラーで使用する外部API名。
const providerName = "reddit"

// 取得形式
const (
	SourceJSON = "json"
	SourceAtom = "atom"
)

// Gateway は掲示板から1ページ分の投稿を取得するインターフェース。
type Gateway interface {
	// FetchPage はafterカーソル以降の投稿を取得する。
	// afterが空の場合はストリームの先頭から取得する。
	FetchPage(ctx context.Context, after model.Cursor) (*model.Page, error)
}

// Config はゲートウェイの設定。
type Config struct {
	BaseURL   string // 例: https://www.reddit.com
	Subreddit string // 例: memes
	PageSize  int    // 1ページあたりの取得件数
}

// NewGateway は取得形式とフィード種別に応じたGatewayを生成する。
func NewGateway(source string, client *upstream.Client, cfg Config, kind model.FeedKind) (Gateway, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	switch source {
	case SourceJSON, "":
		return NewJSONGateway(client, cfg, kind), nil
	case SourceAtom:
		return NewAtomGateway(client, cfg, kind), nil
	default:
		return nil, fmt.Errorf("unknown forum source: %s", source)
	}
}

// absolutePermalink はスレッドの相対パスを絶対URLに変換する。
func absolutePermalink(baseURL, permalink string) string {
	if permalink == "" || strings.HasPrefix(permalink, "http://") || strings.HasPrefix(permalink, "https://") {
		return permalink
	}
	return baseURL + "/" + strings.TrimLeft(permalink, "/")
}
