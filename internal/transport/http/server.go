package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lojistavip/vipchat-server/internal/auth"
	"github.com/lojistavip/vipchat-server/internal/config"
	"github.com/lojistavip/vipchat-server/internal/store"
)

// NewServer builds the HTTP server: REST endpoints for auth, user
// directory and message history, and the WebSocket chat endpoint.
func NewServer(st store.Store, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	api := NewAPIHandlers(authService, logger)
	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)
	router.POST("/api/guest", api.GuestLogin)

	users := NewUserHandlers(st, logger)
	history := NewHistoryHandlers(st, cfg.HistoryPageSize, logger)

	authorized := router.Group("/", AuthMiddleware(authService, logger))
	authorized.GET("/api/users", users.Search)
	authorized.GET("/api/channels/community/messages", history.Community)
	authorized.GET("/api/channels/direct/:peer/messages", history.Direct)

	router.GET("/ws", gin.WrapH(NewWSHandler(st, authService, cfg, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
