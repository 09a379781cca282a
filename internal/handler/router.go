package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/rhystic/internal/metrics"
	"github.com/hitoshi/rhystic/internal/middleware"
	"github.com/hitoshi/rhystic/internal/model"
)

// HealthChecker はDB疎通確認のインターフェース。sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Collector         metrics.MetricsCollector

	// 監視
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール・コレクション
	UserService       UserServiceInterface
	CollectionService CollectionServiceInterface
	FlashStore        FlashStore

	// ストア（カタログ検索 + カート投入）
	CatalogSearch CatalogSearchInterface
	CartAdder     CartAdder

	// カート・出品
	CartService  CartServiceInterface
	TradeService TradeServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → CSRF
//	（セッション必須グループのみ）→ Session → RateLimit(General)
//
// /welcome、/signup、/login、/store/search、/health、/metricsは認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.UserService, deps.CollectionService, deps.FlashStore)
	storeHandler := NewStoreHandler(deps.CatalogSearch, deps.CartAdder)
	cartHandler := NewCartHandler(deps.CartService, deps.FlashStore)
	tradeHandler := NewTradeHandler(deps.TradeService)

	// --- 認証不要のルート ---

	r.Get("/welcome", Welcome)
	r.Post("/signup", authHandler.Signup)
	r.Post("/login", authHandler.Login)
	r.Get("/store/search", storeHandler.Search)
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/logout", authHandler.Logout)

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Post("/edit", profileHandler.EditProfile)
			r.Post("/add_card", profileHandler.AddCard)
		})

		r.Post("/store/search/add", storeHandler.AddToCart)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.ListCart)
			r.Post("/remove", cartHandler.RemoveFromCart)
			// POST /cart/buy - チェックアウト（専用レート制限を追加）
			r.With(deps.RateLimiter.CheckoutMiddleware()).Post("/buy", cartHandler.Checkout)
		})

		r.Route("/trade", func(r chi.Router) {
			r.Get("/", tradeHandler.ListTrades)
			r.Post("/create", tradeHandler.CreateTrade)
			r.Post("/add", tradeHandler.AddToCart)
		})
	})

	return r
}

// Welcome は疎通確認用のエンドポイント。
// GET /welcome
func Welcome(w http.ResponseWriter, r *http.Request) {
	writeStatusMessage(w, http.StatusOK, "Welcome!")
}

// NewHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checker.PingContext(r.Context()); err != nil {
			writeAPIErrorResponse(w, http.StatusServiceUnavailable, &model.APIError{
				Code:     "UNHEALTHY",
				Message:  "データベースに接続できません。",
				Category: "system",
				Action:   "しばらく待ってから再度お試しください。",
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
