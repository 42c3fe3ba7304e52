package imgflip

import (
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/memeify/internal/model"
)

// maxTextLength はキャプション1行あたりの最大文字数。
const maxTextLength = 500

// CaptionRequest はキャプション生成APIのリクエストボディ。
// text0/text1はtop_text/bottom_textの別名として受け付ける。
type CaptionRequest struct {
	TemplateID string `json:"template_id"`
	TopText    string `json:"top_text"`
	BottomText string `json:"bottom_text"`
	Text0      string `json:"text0"`
	Text1      string `json:"text1"`
}

// Caption は検証済みのキャプション生成リクエスト。
type Caption struct {
	TemplateID string
	TopText    string
	BottomText string
}

// Validate はリクエストを検証してCaptionを返す。
func (r CaptionRequest) Validate() (Caption, error) {
	c := Caption{
		TemplateID: strings.TrimSpace(r.TemplateID),
		TopText:    firstNonEmpty(r.TopText, r.Text0),
		BottomText: firstNonEmpty(r.BottomText, r.Text1),
	}

	if c.TemplateID == "" || !isDigits(c.TemplateID) {
		return Caption{}, model.NewInvalidCaptionError("テンプレートIDが不正です")
	}
	if strings.TrimSpace(c.TopText) == "" || strings.TrimSpace(c.BottomText) == "" {
		return Caption{}, model.NewInvalidCaptionError("上下のテキストを入力してください")
	}
	if utf8.RuneCountInString(c.TopText) > maxTextLength || utf8.RuneCountInString(c.BottomText) > maxTextLength {
		return Caption{}, model.NewInvalidCaptionError("テキストが長すぎます")
	}

	return c, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
