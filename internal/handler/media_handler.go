package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/memeify/internal/giphy"
	"github.com/hitoshi/memeify/internal/imgflip"
	"github.com/hitoshi/memeify/internal/media"
	"github.com/hitoshi/memeify/internal/middleware"
	"github.com/hitoshi/memeify/internal/model"
)

// maxCaptionBodySize はキャプション生成リクエストボディの上限。
const maxCaptionBodySize = 16 << 10

// GifSearcher はGIF・ステッカー検索のインターフェース。
type GifSearcher interface {
	Search(ctx context.Context, req giphy.Request) ([]byte, error)
}

// MemeCaptioner はミーム画像生成のインターフェース。
type MemeCaptioner interface {
	Caption(ctx context.Context, caption imgflip.Caption) ([]byte, error)
	Templates(ctx context.Context) ([]byte, error)
}

// MediaFetcher はメディアダウンロード中継のインターフェース。
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL, name string) (*media.Download, error)
}

// MediaHandler は外部メディアAPIの中継ハンドラー。
// レスポンス形式を確認した上で、外部APIのJSONを加工せずに返す。
type MediaHandler struct {
	gifs       GifSearcher
	captioner  MemeCaptioner
	downloader MediaFetcher
}

// NewMediaHandler はMediaHandlerを生成する。
func NewMediaHandler(gifs GifSearcher, captioner MemeCaptioner, downloader MediaFetcher) *MediaHandler {
	return &MediaHandler{
		gifs:       gifs,
		captioner:  captioner,
		downloader: downloader,
	}
}

// SearchGifs はGIF・ステッカーのトレンド取得または検索を行う。
// GET /api/gifs?type={trending|search|stickers|stickers-search}&query=q
func (h *MediaHandler) SearchGifs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := giphy.NewRequest(q.Get("type"), q.Get("query"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	body, err := h.gifs.Search(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeRelayedJSON(w, body)
}

// Caption はテンプレートにテキストを載せたミーム画像を生成する。
// POST /api/memes/caption
func (h *MediaHandler) Caption(w http.ResponseWriter, r *http.Request) {
	var req imgflip.CaptionRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxCaptionBodySize))
	if err := dec.Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestBodyError())
		return
	}

	caption, err := req.Validate()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	body, err := h.captioner.Caption(r.Context(), caption)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeRelayedJSON(w, body)
}

// Templates はミームテンプレートの一覧を返す。
// GET /api/memes/templates
func (h *MediaHandler) Templates(w http.ResponseWriter, r *http.Request) {
	body, err := h.captioner.Templates(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeRelayedJSON(w, body)
}

// Download はメディアを取得し、添付ファイルとしてストリーミングで返す。
// GET /api/media/download?url=U&name=N
func (h *MediaHandler) Download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawURL := q.Get("url")
	if rawURL == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidMediaURLError("URLが指定されていません"))
		return
	}

	dl, err := h.downloader.Fetch(r.Context(), rawURL, q.Get("name"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer dl.Body.Close()

	header := w.Header()
	header.Set("Content-Type", dl.ContentType)
	// Filenameは英数字・ハイフン・アンダースコアと、英小文字・数字のみの拡張子で構成される
	header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, dl.Filename))
	header.Set("Cache-Control", "private, no-store")
	if dl.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(dl.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	// ヘッダー送信後の失敗はステータスを変更できないため、ログのみ残す
	if n, err := io.Copy(w, dl.Body); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("media download interrupted",
			slog.String("url", rawURL),
			slog.Int64("bytes", n),
			slog.String("error", err.Error()),
		)
	}
}
