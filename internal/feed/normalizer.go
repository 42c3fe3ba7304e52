// Package feed は掲示板の投稿ページを順次取得し、表示用のFeedItemへ正規化して
// セッション単位で蓄積するページング処理を提供する。
package feed

import (
	"context"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/hitoshi/memeify/internal/forum"
	"github.com/hitoshi/memeify/internal/metrics"
	"github.com/hitoshi/memeify/internal/model"
)

// State は1つのフィードセッションが保持するページング状態。
// Itemsは到着順の追記専用で、IDはセッション内で一意。
type State struct {
	Items     []model.FeedItem
	Cursor    model.Cursor
	Exhausted bool

	seen map[string]struct{}
}

// NewState は空のStateを生成する。
func NewState() *State {
	return &State{
		Items: []model.FeedItem{},
		seen:  make(map[string]struct{}),
	}
}

// applyResult は1ページ分の正規化結果。
type applyResult struct {
	appended   []model.FeedItem
	filtered   int
	duplicates int
}

// Normalizer はゲートウェイからページを取得し、Stateへ反映する。
type Normalizer struct {
	gateway forum.Gateway
	metrics metrics.MetricsCollector
}

// NewNormalizer はNormalizerを生成する。metricsCollectorはnilでもよい。
func NewNormalizer(gateway forum.Gateway, metricsCollector metrics.MetricsCollector) *Normalizer {
	return &Normalizer{
		gateway: gateway,
		metrics: metricsCollector,
	}
}

// FetchNextPage は次のページを取得してstに追記し、追記されたアイテムを返す。
// 終端に達したStateに対しては何もしない。
// 取得に失敗した場合stは一切変更されない。
func (n *Normalizer) FetchNextPage(ctx context.Context, st *State) ([]model.FeedItem, error) {
	if st.Exhausted {
		return nil, nil
	}

	page, err := n.fetch(ctx, st.Cursor)
	if err != nil {
		return nil, err
	}

	return n.apply(st, page), nil
}

// fetch はゲートウェイを呼び出す。Stateには触れない。
func (n *Normalizer) fetch(ctx context.Context, cursor model.Cursor) (*model.Page, error) {
	return n.gateway.FetchPage(ctx, cursor)
}

// apply はページをStateへ反映し、メトリクスを記録する。
func (n *Normalizer) apply(st *State, page *model.Page) []model.FeedItem {
	res := st.apply(page)
	if n.metrics != nil {
		n.metrics.RecordItemsAppended(len(res.appended))
		n.metrics.RecordItemsDropped(metrics.DropReasonFiltered, res.filtered)
		n.metrics.RecordItemsDropped(metrics.DropReasonDuplicate, res.duplicates)
	}
	return res.appended
}

// apply はI/Oを伴わない正規化処理。
// 表示可能な投稿に絞り込み、FeedItemに変換し、既出IDを除いて末尾に追記する。
func (st *State) apply(page *model.Page) applyResult {
	if st.seen == nil {
		st.seen = make(map[string]struct{}, len(st.Items))
		for _, it := range st.Items {
			st.seen[it.ID] = struct{}{}
		}
	}

	kept := lo.Filter(page.Posts, func(p model.RawPost, _ int) bool {
		return isDisplayable(p)
	})
	mapped := lo.Map(kept, func(p model.RawPost, _ int) model.FeedItem {
		return toFeedItem(p)
	})

	// ページ内の重複も先勝ち
	unique := lo.UniqBy(mapped, func(it model.FeedItem) string {
		return it.ID
	})
	fresh := lo.Filter(unique, func(it model.FeedItem, _ int) bool {
		_, dup := st.seen[it.ID]
		return !dup
	})

	for _, it := range fresh {
		st.seen[it.ID] = struct{}{}
	}
	st.Items = append(st.Items, fresh...)
	st.Cursor = page.After
	st.Exhausted = page.After.IsEnd()

	return applyResult{
		appended:   fresh,
		filtered:   len(page.Posts) - len(kept),
		duplicates: len(mapped) - len(fresh),
	}
}

// isDisplayable は画像投稿で、代表プレビューが絶対http(s) URLの場合にtrueを返す。
func isDisplayable(p model.RawPost) bool {
	if p.Hint != model.HintImage || len(p.PreviewURLs) == 0 {
		return false
	}
	return isAbsoluteHTTPURL(p.PreviewURLs[0])
}

func isAbsoluteHTTPURL(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func toFeedItem(p model.RawPost) model.FeedItem {
	score := 0
	if p.Ups != nil {
		score = *p.Ups
	}
	return model.FeedItem{
		ID:        p.ID,
		Title:     p.Title,
		MediaURL:  p.PreviewURLs[0],
		Score:     score,
		Permalink: p.Permalink,
	}
}
