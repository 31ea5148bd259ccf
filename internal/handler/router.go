package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/toolvault/internal/authstate"
	"github.com/hitoshi/toolvault/internal/metrics"
	"github.com/hitoshi/toolvault/internal/middleware"
)

// HealthChecker はヘルスチェックで利用するDB接続のインターフェース。
// *sql.DB が実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	UserLoader        middleware.UserLoader
	ProfileLookup     authstate.ProfileLookup
	CORSAllowedOrigin string
	CookieSecure      bool
	RateLimiter       *middleware.RateLimiter
	RequestLogger     *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	AuthEvents  *authstate.Store

	// プロファイル
	ProfileService ProfileServiceInterface

	// カタログ
	ToolService    ToolServiceInterface
	CatalogService CatalogServiceInterface
	// アセットアップロードのリクエストボディ上限。0以下でデフォルト値。
	UploadMaxBytes int64

	// 観測
	Metrics       metrics.MetricsCollector
	MetricsSource prometheus.Gatherer
	HealthChecker HealthChecker

	// 静的アセット配信用のディレクトリ。空の場合は配信しない。
	AssetsDir string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → AuthSnapshot
//	→（保護ルートのみ）RequireVerified → RateLimit(General) → CSRF
//
// 認証ルート（/auth/*）には認証試行レート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.RequestLogger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.RequestLogger))
	}
	if deps.Metrics != nil {
		r.Use(newStatusMetricsMiddleware(deps.Metrics))
	}

	// 全ルートで認証スナップショットを注入する（拒否はしない）
	r.Use(middleware.NewAuthSnapshot(deps.UserLoader, deps.ProfileLookup))

	csrfConfig := middleware.CSRFConfig{CookieSecure: deps.CookieSecure}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.AuthEvents, deps.Metrics)
	guardHandler := NewGuardHandler(deps.Metrics)
	toolHandler := NewToolHandler(deps.ToolService)
	streamHandler := NewStreamHandler(deps.ToolService, deps.Metrics, nil)
	profileHandler := NewProfileHandler(deps.ProfileService)
	adminHandler := NewAdminHandler(deps.CatalogService, deps.Metrics, deps.UploadMaxBytes)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.HealthChecker))

	if deps.MetricsSource != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsSource))
	}

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	// ガード判定はスナップショットのみ参照するため認証不要
	r.Get("/api/guards/decide", guardHandler.Decide)

	// 認証ルート（認証試行レート制限を適用）
	r.Route("/auth", func(r chi.Router) {
		authAttempt := deps.RateLimiter.AuthAttemptMiddleware()

		r.With(authAttempt).Post("/sign-up", authHandler.SignUp)
		r.With(authAttempt).Post("/log-in", authHandler.SignIn)
		r.With(authAttempt).Post("/forgot-password", authHandler.ForgotPassword)
		r.With(authAttempt).Post("/reset-password", authHandler.ResetPassword)

		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)

		r.Get("/verify", authHandler.VerifyEmail)
		r.Get("/change-email/confirm", authHandler.ConfirmEmailChange)

		// 確認メール再送は未確認ユーザーのセッションでも呼べる
		r.Post("/send-email", authHandler.SendVerification)

		r.Post("/logout", authHandler.Logout)
	})

	// 静的アセット配信（ローカルディスクストア）
	if deps.AssetsDir != "" {
		fileServer := http.StripPrefix("/assets/", http.FileServer(http.Dir(deps.AssetsDir)))
		r.Get("/assets/*", fileServer.ServeHTTP)
	}

	// --- カタログ閲覧ルート ---
	// ツールパネルはパブリック着地ページなので匿名でも読み取れる。
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/tools", toolHandler.ListTools)
		r.Get("/api/tools/stream", streamHandler.ServeStream)
	})

	// --- 確認済みユーザーのみのルート ---
	// ミドルウェアスタック: RequireVerified → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequireVerified())
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		// プロファイル
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Patch("/", profileHandler.UpdateProfile)
			r.Post("/reauthenticate", profileHandler.Reauthenticate)
		})

		// カタログ管理（管理者ロールを要求）
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewRequireAdmin())

			r.Post("/tools", adminHandler.CreateTool)
			r.Route("/tools/{id}", func(r chi.Router) {
				r.Put("/", adminHandler.UpdateTool)
				r.Delete("/", adminHandler.DeleteTool)
				r.Put("/favorite", adminHandler.UpdateFavorite)
			})

			r.Post("/assets", adminHandler.UploadAsset)
		})
	})

	return r
}

// statusRecorder はレスポンスのステータスコードを記録するラッパー。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// newStatusMetricsMiddleware はレスポンスのステータスコードをメトリクスに
// 記録するミドルウェアを返す。
// WebSocketのハイジャックが必要な /api/tools/stream には適用しない。
func newStatusMetricsMiddleware(collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/tools/stream" {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			collector.RecordHTTPStatus(recorder.status)
		})
	}
}

// newHealthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		statusCode := http.StatusOK

		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				status = "unavailable"
				statusCode = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
