// Package imgflip はImgflip APIのキャプション画像生成とテンプレート一覧取得を中継する。
package imgflip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/memeify/internal/metrics"
	"github.com/hitoshi/memeify/internal/upstream"
)

const (
	// defaultEndpoint はImgflip APIのベースURL。
	defaultEndpoint = "https://api.imgflip.com"
	// providerName はメトリクスとエラーで使用する外部API名。
	providerName = "imgflip"
)

// captionResponse はcaption_imageのレスポンスのうち成否判定に使う部分。
type captionResponse struct {
	Success      *bool  `json:"success"`
	ErrorMessage string `json:"error_message"`
}

// templatesResponse はget_memesのレスポンス形式の確認に使う部分。
type templatesResponse struct {
	Success *bool `json:"success"`
	Data    *struct {
		Memes *[]json.RawMessage `json:"memes"`
	} `json:"data"`
}

// Client はImgflip APIのクライアント。
type Client struct {
	upstream *upstream.Client
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	endpoint string // テスト用にエンドポイントを差し替え可能
	username string
	password string
}

// NewClient はClientの新しいインスタンスを生成する。metricsCollectorはnilでもよい。
func NewClient(up *upstream.Client, logger *slog.Logger, metricsCollector metrics.MetricsCollector, username, password string) *Client {
	return &Client{
		upstream: up,
		logger:   logger,
		metrics:  metricsCollector,
		endpoint: defaultEndpoint,
		username: username,
		password: password,
	}
}

// Caption はテンプレートにテキストを合成した画像を生成し、レスポンスボディをそのまま返す。
// Imgflip側の失敗（success=false）もボディとして返し、エラーにはしない。
// successが真偽値で含まれないレスポンスはPayloadErrorとなる。
func (c *Client) Caption(ctx context.Context, caption Caption) ([]byte, error) {
	form := url.Values{}
	form.Set("template_id", caption.TemplateID)
	form.Set("username", c.username)
	form.Set("password", c.password)
	form.Set("text0", caption.TopText)
	form.Set("text1", caption.BottomText)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/caption_image", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.upstream.Do(ctx, providerName, req)
	if err != nil {
		return nil, err
	}

	var resp captionResponse
	if err := upstream.DecodeJSON(providerName, body, &resp); err != nil {
		return nil, err
	}
	if resp.Success == nil {
		return nil, upstream.NewPayloadError(providerName, "missing success flag")
	}

	if c.metrics != nil {
		c.metrics.RecordCaptionResult(*resp.Success)
	}
	if !*resp.Success {
		c.logger.Warn("キャプション画像の生成に失敗しました",
			slog.String("template_id", caption.TemplateID),
			slog.String("error_message", resp.ErrorMessage),
		)
	}

	return body, nil
}

// Templates はテンプレート一覧を取得し、レスポンスボディをそのまま返す。
func (c *Client) Templates(ctx context.Context) ([]byte, error) {
	var resp templatesResponse
	body, err := c.upstream.GetJSON(ctx, providerName, c.endpoint+"/get_memes", &resp)
	if err != nil {
		return nil, err
	}
	if resp.Success == nil || !*resp.Success {
		return nil, upstream.NewPayloadError(providerName, "template list request was not successful")
	}
	if resp.Data == nil || resp.Data.Memes == nil {
		return nil, upstream.NewPayloadError(providerName, "missing data.memes array")
	}
	return body, nil
}
