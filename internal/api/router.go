package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/api/handlers"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/api/middleware"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/repository"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/storage"
	ws "github.com/welldanyogia/webrana-infinimail-backend/internal/websocket"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB      *gorm.DB
	Archive storage.Archive
	Logger  *slog.Logger

	// Pipeline surfaces
	Sync       handlers.SyncController
	Reclassify handlers.Reclassifier
	Searcher   handlers.Searcher
	Suggester  handlers.Suggester
	Sender     handlers.ReplySender
	Knowledge  handlers.KnowledgeWriter
	Hub        *ws.Hub

	// Security configuration
	APIKey         string   // API key for authentication (empty = disabled)
	AllowedOrigins []string // Allowed CORS + WebSocket origins
	RateLimit      int      // Requests per second per client IP
	RateBurst      int      // Burst size for rate limiter
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware order matters: recover outermost, then headers, CORS,
	// throttling, and finally request logging around the handlers.
	e.Use(middleware.Recover())
	e.Use(middleware.SecureHeaders())
	e.Use(middleware.CORS(cfg.AllowedOrigins))
	e.Use(middleware.RateLimiter(float64(cfg.RateLimit), cfg.RateBurst, cfg.Logger))
	if cfg.Logger != nil {
		e.Use(middleware.RequestLogger(cfg.Logger))
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(cfg.DB)
	messageRepo := repository.NewMessageRepository(cfg.DB)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB)
	accountHandler := handlers.NewAccountHandler(accountRepo, cfg.Sync)
	messageHandler := handlers.NewMessageHandler(messageRepo, cfg.Archive, cfg.Reclassify)
	searchHandler := handlers.NewSearchHandler(cfg.Searcher)
	suggestHandler := handlers.NewSuggestHandler(messageRepo, accountRepo, cfg.Suggester, cfg.Sender)
	knowledgeHandler := handlers.NewKnowledgeHandler(cfg.Knowledge)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	// Live message events
	if cfg.Hub != nil {
		wsHandler := handlers.NewWSHandler(cfg.Hub, ws.NewSecureUpgrader(cfg.AllowedOrigins, cfg.Logger), cfg.Logger)
		e.GET("/ws", wsHandler.Connect)
	}

	// API routes
	api := e.Group("/api")

	// An empty key disables authentication; useful for local development.
	api.Use(middleware.APIKeyAuth(cfg.APIKey, cfg.Logger))

	// Account routes
	accounts := api.Group("/accounts")
	accounts.POST("", accountHandler.Create)
	accounts.GET("", accountHandler.List)
	accounts.GET("/:id", accountHandler.Get)
	accounts.GET("/:id/status", accountHandler.Status)
	accounts.PATCH("/:id/active", accountHandler.SetActive)
	accounts.DELETE("/:id", accountHandler.Delete)

	// Sync worker status
	api.GET("/sync/status", accountHandler.SyncStatus)

	// Message routes
	messages := api.Group("/messages")
	messages.GET("", messageHandler.List)
	messages.GET("/:id", messageHandler.Get)
	messages.GET("/:id/raw", messageHandler.GetRaw)
	messages.POST("/:id/reclassify", messageHandler.Reclassify)
	messages.DELETE("/:id", messageHandler.Delete)

	// Reply suggestion routes
	messages.POST("/:id/suggest-reply", suggestHandler.Suggest)
	messages.POST("/:id/reply", suggestHandler.SendReply)

	// Full-text search
	api.GET("/search", searchHandler.Search)

	// Knowledge base for reply grounding
	api.POST("/knowledge", knowledgeHandler.Add)

	return e
}
