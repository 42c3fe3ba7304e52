// Package media はGIF・ステッカー・ミーム画像のダウンロードを中継する。
// 取得先は許可されたメディアホストに限定し、SSRF防止クライアントで接続する。
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/memeify/internal/metrics"
	"github.com/hitoshi/memeify/internal/model"
	"github.com/hitoshi/memeify/internal/upstream"
)

const (
	// providerName はメトリクスとエラーで使用する外部API名。
	providerName = "media"
	// defaultFilename はファイル名が指定されない場合の既定名。
	defaultFilename = "memeify"
	// maxFilenameLength はファイル名（拡張子を除く）の最大長。
	maxFilenameLength = 100
)

// errTooLarge はメディアが上限サイズを超えた場合のエラー。
var errTooLarge = errors.New("media exceeds size limit")

// extensions はContent-Typeに対応する拡張子。
var extensions = map[string]string{
	"image/gif":  ".gif",
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
}

// pathExtPattern はURLパスから拡張子を採用する場合の許可パターン。
var pathExtPattern = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

// URLGuard はSSRF検証のインターフェース。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Download はダウンロード中のメディア。呼び出し元はBodyを閉じる必要がある。
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // 不明な場合は-1
	Filename      string
}

// Downloader はメディアのダウンロードを行う。
type Downloader struct {
	guard   URLGuard
	client  *http.Client
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	maxSize int64
}

// NewDownloader はDownloaderの新しいインスタンスを生成する。metricsCollectorはnilでもよい。
func NewDownloader(guard URLGuard, logger *slog.Logger, metricsCollector metrics.MetricsCollector, timeout time.Duration, maxSize int64) *Downloader {
	return &Downloader{
		guard:   guard,
		client:  guard.NewSafeClient(timeout),
		logger:  logger,
		metrics: metricsCollector,
		maxSize: maxSize,
	}
}

// Fetch はメディアを取得する。URLが許可されない場合はValidationErrorを返す。
// 画像・動画以外のレスポンスや上限超過はPayloadErrorとなる。
func (d *Downloader) Fetch(ctx context.Context, rawURL, name string) (*Download, error) {
	if err := d.guard.ValidateURL(rawURL); err != nil {
		d.logger.Warn("メディアURLの検証に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInvalidMediaURLError(err.Error())
	}

	start := time.Now()
	dl, err := d.fetch(ctx, rawURL, name)
	d.record(err, time.Since(start))
	return dl, err
}

func (d *Downloader) fetch(ctx context.Context, rawURL, name string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", upstream.DefaultUserAgent)
	req.Header.Set("Accept", "image/*, video/mp4")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("メディアの取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, &upstream.TransientError{Provider: providerName, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		d.logger.Warn("メディアの取得先がエラーステータスを返しました",
			slog.String("url", rawURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &upstream.TransientError{Provider: providerName, StatusCode: resp.StatusCode}
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		resp.Body.Close()
		return nil, upstream.NewPayloadError(providerName, "unexpected content type %q", contentType)
	}
	if resp.ContentLength > d.maxSize {
		resp.Body.Close()
		return nil, &upstream.PayloadError{Provider: providerName, Err: errTooLarge}
	}

	return &Download{
		Body:          &limitedBody{rc: resp.Body, remaining: d.maxSize},
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
		Filename:      Filename(name, contentType, req.URL.Path),
	}, nil
}

func (d *Downloader) record(err error, duration time.Duration) {
	if d.metrics == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	var pe *upstream.PayloadError
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		return
	case errors.As(err, &pe):
		outcome = metrics.OutcomePayload
	case err != nil:
		outcome = metrics.OutcomeTransient
	}
	d.metrics.RecordUpstreamRequest(providerName, outcome, duration)
}

// Filename はダウンロード時のファイル名を組み立てる。
// 英数字・ハイフン・アンダースコア以外は取り除き、拡張子はContent-Typeから決める。
// 未知のContent-TypeではURLパスの拡張子を使うが、英小文字と数字のみでない場合は付けない。
func Filename(name, contentType, urlPath string) string {
	var sb strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteRune('_')
		}
		if sb.Len() >= maxFilenameLength {
			break
		}
	}
	base := sb.String()
	if base == "" {
		base = defaultFilename
	}

	ext, ok := extensions[contentType]
	if !ok {
		ext = strings.ToLower(path.Ext(urlPath))
		if !pathExtPattern.MatchString(ext) {
			ext = ""
		}
	}
	return base + ext
}

// limitedBody は上限を超えて読み進めた場合にエラーを返すReadCloser。
type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		// 上限ちょうどで終わっているかを1バイト読んで確認する
		var one [1]byte
		n, err := b.rc.Read(one[:])
		if n > 0 {
			return 0, errTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *limitedBody) Close() error {
	return b.rc.Close()
}
