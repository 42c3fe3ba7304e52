package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/memeify/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// フィード
	FeedRegistry FeedRegistry

	// 外部メディア
	Gifs       GifSearcher
	Captioner  MemeCaptioner
	Downloader MediaFetcher

	// nilの場合は/metricsを公開しない
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//	  /api/*: Session → RateLimit(General) → CSRF
//
// 認証ルート（/auth/*）とヘルスチェックはセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	if closer, ok := deps.FeedRegistry.(FeedSessionCloser); ok {
		authHandler.feedSessions = closer
	}
	feedHandler := NewFeedHandler(deps.FeedRegistry)
	mediaHandler := NewMediaHandler(deps.Gifs, deps.Captioner, deps.Downloader)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/github/login", authHandler.Login)
		r.Get("/github/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/session", authHandler.Session)
		r.Get("/me", authHandler.Me)
	})

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.AuthService))
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

			// フィードセッション
			r.Post("/feeds/{kind}/sessions", feedHandler.CreateSession)
			r.Route("/feeds/sessions/{id}", func(r chi.Router) {
				r.Get("/", feedHandler.GetSession)
				r.Delete("/", feedHandler.CloseSession)
				r.Post("/next", feedHandler.NextPage)
			})

			// GIF・ミーム
			r.Get("/gifs", mediaHandler.SearchGifs)
			r.With(deps.RateLimiter.CaptionMiddleware()).Post("/memes/caption", mediaHandler.Caption)
			r.Get("/memes/templates", mediaHandler.Templates)
			r.Get("/media/download", mediaHandler.Download)
		})
	})

	return r
}

// healthHandler はロードバランサー向けのヘルスチェック応答を返す。
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
