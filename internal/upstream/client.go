package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/memeify/internal/metrics"
)

// DefaultUserAgent は外部APIに送信するUser-Agent。
// Redditは汎用のUser-Agentを制限するため、アプリケーション名を明示する。
const DefaultUserAgent = "Memeify/1.0 (meme aggregator)"

// errBodyTooLarge はレスポンスボディが上限を超えた場合のエラー。
var errBodyTooLarge = errors.New("response body exceeds size limit")

// Client は外部API呼び出しの共通クライアント。
// レスポンスサイズの制限、ステータスコードによるエラー分類、
// メトリクス記録、構造化ログ出力を行う。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     metrics.MetricsCollector
	maxBodySize int64
	userAgent   string
}

// NewClient はClientの新しいインスタンスを生成する。
// metricsCollectorはnilでもよい。
func NewClient(httpClient *http.Client, logger *slog.Logger, metricsCollector metrics.MetricsCollector, maxBodySize int64) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if maxBodySize <= 0 {
		maxBodySize = 5 << 20
	}
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		metrics:     metricsCollector,
		maxBodySize: maxBodySize,
		userAgent:   DefaultUserAgent,
	}
}

// Do はリクエストを実行し、2xxの場合にレスポンスボディを返す。
// ネットワーク障害・非2xxはTransientError、サイズ超過はPayloadErrorとして返す。
func (c *Client) Do(ctx context.Context, provider string, req *http.Request) ([]byte, error) {
	start := time.Now()
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	body, err := c.do(provider, req)
	c.record(provider, err, time.Since(start))
	return body, err
}

// GetJSON はGETリクエストを実行し、レスポンスをvにデコードする。
// デコード前の生のボディも返すため、呼び出し元はそのまま中継できる。
func (c *Client) GetJSON(ctx context.Context, provider, rawURL string, v any) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	body, err := c.do(provider, req)
	if err == nil {
		err = DecodeJSON(provider, body, v)
		if err != nil {
			c.logger.Warn("外部APIのレスポンスのパースに失敗しました",
				slog.String("provider", provider),
				slog.String("error", err.Error()),
			)
		}
	}
	c.record(provider, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// DecodeJSON はボディをvにデコードし、失敗した場合はPayloadErrorを返す。
func DecodeJSON(provider string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &PayloadError{Provider: provider, Err: err}
	}
	return nil
}

func (c *Client) do(provider string, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.ErrorはクエリごとURLを含むため、内側のエラーのみを扱う
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		c.logger.Error("外部APIの呼び出しに失敗しました",
			slog.String("provider", provider),
			slog.String("endpoint", req.URL.Host+req.URL.Path), // クエリにはAPIキーが含まれ得る
			slog.String("error", err.Error()),
		)
		return nil, &TransientError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("外部APIがエラーステータスを返しました",
			slog.String("provider", provider),
			slog.Int("http_status", resp.StatusCode),
		)
		// 接続を再利用できるよう読み捨てる
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &TransientError{Provider: provider, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, &TransientError{Provider: provider, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, &PayloadError{Provider: provider, Err: errBodyTooLarge}
	}

	return body, nil
}

func (c *Client) record(provider string, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	var pe *PayloadError
	switch {
	case errors.As(err, &pe):
		outcome = metrics.OutcomePayload
	case err != nil:
		outcome = metrics.OutcomeTransient
	}
	c.metrics.RecordUpstreamRequest(provider, outcome, d)
}
