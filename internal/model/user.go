// Package model はドメインモデルを定義する。
package model

import "time"

// User はOAuthプロバイダーから取得したサインイン中のユーザーを表す。
// 永続化はせず、セッションの存続期間中のみ保持する。
type User struct {
	ID       string // "github:<provider user id>"
	Login    string
	Email    string
	Name     string
	Provider string
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	User      User
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが指定時刻の時点で期限切れかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
