package forum

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/memeify/internal/model"
	"github.com/hitoshi/memeify/internal/upstream"
)

// fullnamePrefix はReddit投稿のfullname接頭辞。
const fullnamePrefix = "t3_"

// imageHosts は画像を直接配信するホスト。
var imageHosts = []string{"i.redd.it", "i.imgur.com", "i.imgflip.com"}

// imageExtensions は画像とみなす拡張子。
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// AtomGateway はRedditのAtomフィード（/.rss）から投稿を取得する。
// Atomフィードには投票数と投稿ヒントが含まれないため、
// スコアは未設定とし、ヒントはリンク先URLから推定する。
type AtomGateway struct {
	client *upstream.Client
	parser *gofeed.Parser
	config Config
	sort   string
}

// NewAtomGateway はAtomGatewayを生成する。
func NewAtomGateway(client *upstream.Client, cfg Config, kind model.FeedKind) *AtomGateway {
	return &AtomGateway{
		client: client,
		parser: gofeed.NewParser(),
		config: cfg,
		sort:   kind.Sort(),
	}
}

// FetchPage は /r/{subreddit}/{sort}/.rss から1ページ分の投稿を取得する。
// 取得件数がページサイズ未満の場合はストリーム終端とみなす。
func (g *AtomGateway) FetchPage(ctx context.Context, after model.Cursor) (*model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.pageURL(after), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml, application/xml, text/xml, */*")

	body, err := g.client.Do(ctx, providerName, req)
	if err != nil {
		return nil, err
	}

	feed, err := g.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &upstream.PayloadError{Provider: providerName, Err: err}
	}

	page := &model.Page{
		Posts: make([]model.RawPost, 0, len(feed.Items)),
	}
	for _, item := range feed.Items {
		page.Posts = append(page.Posts, g.toRawPost(item))
	}

	if len(feed.Items) >= g.config.PageSize {
		if last := page.Posts[len(page.Posts)-1]; last.ID != "" {
			page.After = model.Cursor(fullnamePrefix + last.ID)
		}
	}

	return page, nil
}

// pageURL はAtomフィード取得URLを組み立てる。
func (g *AtomGateway) pageURL(after model.Cursor) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(g.config.PageSize))
	if after != "" {
		q.Set("after", string(after))
	}
	return fmt.Sprintf("%s/r/%s/%s/.rss?%s", g.config.BaseURL, url.PathEscape(g.config.Subreddit), g.sort, q.Encode())
}

// toRawPost はAtomエントリをRawPostに変換する。
func (g *AtomGateway) toRawPost(item *gofeed.Item) model.RawPost {
	raw := model.RawPost{
		ID:        strings.TrimPrefix(item.GUID, fullnamePrefix),
		Title:     item.Title,
		Permalink: absolutePermalink(g.config.BaseURL, item.Link),
	}

	target := extractLinkTarget(item.Content)
	switch {
	case target != "" && isImageURL(target):
		raw.Hint = model.HintImage
		raw.PreviewURLs = append(raw.PreviewURLs, target)
	case target == "" || target == raw.Permalink:
		raw.Hint = "self"
	default:
		raw.Hint = "link"
	}

	if thumb := thumbnailURL(item); thumb != "" && raw.Hint == model.HintImage {
		raw.PreviewURLs = append(raw.PreviewURLs, thumb)
	}

	return raw
}

// extractLinkTarget はエントリ本文HTMLから "[link]" アンカーのhrefを取り出す。
// 本文が解析できない場合は空文字列を返す。
func extractLinkTarget(content string) string {
	if content == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}

	var found string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && strings.TrimSpace(textContent(n)) == "[link]" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					found = attr.Val
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return found
}

// textContent はノード配下のテキストを連結して返す。
func textContent(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		} else {
			sb.WriteString(textContent(c))
		}
	}
	return sb.String()
}

// isImageURL はURLが画像を直接指しているかを判定する。
func isImageURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range imageHosts {
		if host == h {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// thumbnailURL はmedia:thumbnail拡張要素のURLを返す。
func thumbnailURL(item *gofeed.Item) string {
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}
	for _, ext := range media["thumbnail"] {
		if u := ext.Attrs["url"]; u != "" {
			return u
		}
	}
	return ""
}
