// Package upstream は外部API（掲示板・メディア検索・キャプション生成・OAuth）への
// HTTP呼び出しを共通化する。
// ステータスコードとレスポンス形式に基づいてエラーを分類し、
// 呼び出し元が状態を変更せずに失敗を返せるようにする。
package upstream

import (
	"errors"
	"fmt"
)

// TransientError はネットワーク障害または非2xxレスポンスによる一時的な失敗。
// ユーザー操作による再試行で回復し得る。
type TransientError struct {
	Provider   string
	StatusCode int // ネットワーク障害の場合は0
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: upstream request failed: %v", e.Provider, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *TransientError) Unwrap() error {
	return e.Err
}

// PayloadError は外部APIのレスポンスが想定した形式でない場合の失敗。
// 一時的な失敗と同様に扱い、部分的な反映は行わない。
type PayloadError struct {
	Provider string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: malformed upstream payload: %v", e.Provider, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *PayloadError) Unwrap() error {
	return e.Err
}

// NewPayloadError はPayloadErrorを生成する。
func NewPayloadError(provider string, format string, args ...any) *PayloadError {
	return &PayloadError{Provider: provider, Err: fmt.Errorf(format, args...)}
}

// IsRetryable はエラーがユーザー操作による再試行で回復し得る外部API起因のものかを返す。
func IsRetryable(err error) bool {
	var te *TransientError
	var pe *PayloadError
	return errors.As(err, &te) || errors.As(err, &pe)
}
