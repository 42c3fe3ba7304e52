package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// defaultMediaAllowedHosts はダウンロード中継で許可するメディアホストの既定値。
var defaultMediaAllowedHosts = []string{"giphy.com", "imgflip.com", "redd.it"}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// OAuth
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string

	// Session
	SessionMaxAge int

	// Forum
	ForumSource     string
	RedditBaseURL   string
	RedditSubreddit string
	FeedPageSize    int
	FeedSessionTTL  time.Duration

	// Upstream
	UpstreamTimeout time.Duration
	UpstreamMaxSize int64

	// Giphy
	GiphyAPIKey string
	GiphyLimit  int
	GiphyRating string

	// Imgflip
	ImgflipUsername string
	ImgflipPassword string

	// Media download
	MediaAllowedHosts []string
	MediaMaxSize      int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitCaption int

	// Janitor
	JanitorInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.GitHubClientID = required("GITHUB_CLIENT_ID")
	cfg.GitHubClientSecret = required("GITHUB_CLIENT_SECRET")
	cfg.GitHubRedirectURL = required("GITHUB_REDIRECT_URL")
	cfg.BaseURL = required("BASE_URL")
	cfg.GiphyAPIKey = required("GIPHY_API_KEY")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.ForumSource = getEnvString("FORUM_SOURCE", "json")
	cfg.RedditBaseURL = getEnvString("REDDIT_BASE_URL", "https://www.reddit.com")
	cfg.RedditSubreddit = getEnvString("REDDIT_SUBREDDIT", "memes")
	cfg.FeedPageSize = getEnvInt("FEED_PAGE_SIZE", 20)
	cfg.FeedSessionTTL = getEnvDuration("FEED_SESSION_TTL", 30*time.Minute)
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.UpstreamMaxSize = getEnvInt64("UPSTREAM_MAX_SIZE", 5242880)
	cfg.GiphyLimit = getEnvInt("GIPHY_LIMIT", 20)
	cfg.GiphyRating = getEnvString("GIPHY_RATING", "g")
	cfg.ImgflipUsername = getEnvString("IMGFLIP_USERNAME", "")
	cfg.ImgflipPassword = getEnvString("IMGFLIP_PASSWORD", "")
	cfg.MediaAllowedHosts = getEnvList("MEDIA_ALLOWED_HOSTS", defaultMediaAllowedHosts)
	cfg.MediaMaxSize = getEnvInt64("MEDIA_MAX_SIZE", 20971520)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCaption = getEnvInt("RATE_LIMIT_CAPTION", 10)
	cfg.JanitorInterval = getEnvDuration("JANITOR_INTERVAL", 5*time.Minute)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.ForumSource != "json" && cfg.ForumSource != "atom" {
		return nil, fmt.Errorf("FORUM_SOURCE must be json or atom: %q", cfg.ForumSource)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を空要素を除いて読み込む。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	items := lo.FilterMap(strings.Split(v, ","), func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
	if len(items) == 0 {
		return defaultVal
	}
	return items
}
