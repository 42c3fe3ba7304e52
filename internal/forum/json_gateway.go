package forum

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"

	"github.com/hitoshi/memeify/internal/model"
	"github.com/hitoshi/memeify/internal/upstream"
)

// listingResponse はRedditのリスティングJSONのエンベロープ。
type listingResponse struct {
	Kind string `json:"kind"`
	Data *struct {
		After    *string `json:"after"`
		Children []struct {
			Kind string      `json:"kind"`
			Data listingPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// listingPost はリスティング内の投稿。
type listingPost struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Ups       *int   `json:"ups"`
	PostHint  string `json:"post_hint"`
	Permalink string `json:"permalink"`
	Preview   *struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

// JSONGateway はRedditのJSONリスティングエンドポイントから投稿を取得する。
type JSONGateway struct {
	client *upstream.Client
	config Config
	sort   string
}

// NewJSONGateway はJSONGatewayを生成する。
func NewJSONGateway(client *upstream.Client, cfg Config, kind model.FeedKind) *JSONGateway {
	return &JSONGateway{
		client: client,
		config: cfg,
		sort:   kind.Sort(),
	}
}

// FetchPage は /r/{subreddit}/{sort}.json から1ページ分の投稿を取得する。
func (g *JSONGateway) FetchPage(ctx context.Context, after model.Cursor) (*model.Page, error) {
	var listing listingResponse
	if _, err := g.client.GetJSON(ctx, providerName, g.pageURL(after), &listing); err != nil {
		return nil, err
	}

	if listing.Kind != "Listing" || listing.Data == nil {
		return nil, upstream.NewPayloadError(providerName, "unexpected listing kind %q", listing.Kind)
	}

	page := &model.Page{
		Posts: make([]model.RawPost, 0, len(listing.Data.Children)),
	}
	if listing.Data.After != nil {
		page.After = model.Cursor(*listing.Data.After)
	}

	for _, child := range listing.Data.Children {
		page.Posts = append(page.Posts, g.toRawPost(child.Data))
	}

	return page, nil
}

// pageURL はリスティング取得URLを組み立てる。
func (g *JSONGateway) pageURL(after model.Cursor) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(g.config.PageSize))
	if after != "" {
		q.Set("after", string(after))
	}
	return fmt.Sprintf("%s/r/%s/%s.json?%s", g.config.BaseURL, url.PathEscape(g.config.Subreddit), g.sort, q.Encode())
}

// toRawPost はリスティングの投稿をRawPostに変換する。
// プレビューURLはHTMLエスケープされた状態で返る場合があるため復元する。
func (g *JSONGateway) toRawPost(p listingPost) model.RawPost {
	raw := model.RawPost{
		ID:        p.ID,
		Title:     html.UnescapeString(p.Title),
		Ups:       p.Ups,
		Hint:      p.PostHint,
		Permalink: absolutePermalink(g.config.BaseURL, p.Permalink),
	}
	if p.Preview != nil {
		for _, img := range p.Preview.Images {
			if img.Source.URL != "" {
				raw.PreviewURLs = append(raw.PreviewURLs, html.UnescapeString(img.Source.URL))
			}
		}
	}
	return raw
}
