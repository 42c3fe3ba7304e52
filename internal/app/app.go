package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/memeify/internal/auth"
	"github.com/hitoshi/memeify/internal/config"
	"github.com/hitoshi/memeify/internal/feed"
	"github.com/hitoshi/memeify/internal/forum"
	"github.com/hitoshi/memeify/internal/giphy"
	"github.com/hitoshi/memeify/internal/handler"
	"github.com/hitoshi/memeify/internal/imgflip"
	"github.com/hitoshi/memeify/internal/logger"
	"github.com/hitoshi/memeify/internal/media"
	"github.com/hitoshi/memeify/internal/metrics"
	"github.com/hitoshi/memeify/internal/middleware"
	"github.com/hitoshi/memeify/internal/model"
	"github.com/hitoshi/memeify/internal/security"
	"github.com/hitoshi/memeify/internal/upstream"
	"github.com/hitoshi/memeify/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("forum_source", cfg.ForumSource),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServe(ctx, cfg)
}

// server はワイヤリング済みの依存関係を保持する。
type server struct {
	handler     http.Handler
	janitor     *cleanup.Janitor
	rateLimiter *middleware.RateLimiter
}

// newServer は設定から全依存関係をワイヤリングする。
func newServer(cfg *config.Config, log *slog.Logger) (*server, error) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. 外部APIクライアント
	up := upstream.NewClient(
		&http.Client{Timeout: cfg.UpstreamTimeout},
		log, collector, cfg.UpstreamMaxSize,
	)

	// 3. フィード
	gateways := make(map[model.FeedKind]forum.Gateway, 2)
	for _, kind := range []model.FeedKind{model.FeedKindTrending, model.FeedKindLatest} {
		gw, err := forum.NewGateway(cfg.ForumSource, up, forum.Config{
			BaseURL:   cfg.RedditBaseURL,
			Subreddit: cfg.RedditSubreddit,
			PageSize:  cfg.FeedPageSize,
		}, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s gateway: %w", kind, err)
		}
		gateways[kind] = gw
	}
	registry := feed.NewRegistry(gateways, collector, cfg.FeedSessionTTL)

	// 4. 外部メディア
	gifs := giphy.NewClient(up, cfg.GiphyAPIKey, cfg.GiphyLimit, cfg.GiphyRating)
	captioner := imgflip.NewClient(up, log, collector, cfg.ImgflipUsername, cfg.ImgflipPassword)
	ssrfGuard := security.NewSSRFGuard(cfg.MediaAllowedHosts...)
	downloader := media.NewDownloader(ssrfGuard, log, collector, cfg.UpstreamTimeout, cfg.MediaMaxSize)

	// 5. 認証
	oauthProvider := auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		RedirectURL:  cfg.GitHubRedirectURL,
	}, up)
	authService := auth.NewService(oauthProvider, auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge})

	// 6. 期限切れセッションの掃除
	janitor := cleanup.NewJanitor(log)
	janitor.Register("auth_sessions", authService)
	janitor.Register("feed_sessions", registry)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitCaption),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		FeedRegistry: registry,

		Gifs:       gifs,
		Captioner:  captioner,
		Downloader: downloader,

		MetricsHandler: metrics.Handler(reg),
	})

	return &server{
		handler:     router,
		janitor:     janitor,
		rateLimiter: rateLimiter,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := newServer(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer srv.rateLimiter.Stop()

	go srv.janitor.Start(ctx, cfg.JanitorInterval)

	// ダウンロード中継はストリーミングのため、WriteTimeoutを長めに取る
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 60*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
