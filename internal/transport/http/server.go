package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/awayrelay/internal/auth"
	"github.com/vovakirdan/awayrelay/internal/config"
	"github.com/vovakirdan/awayrelay/internal/core"
	"github.com/vovakirdan/awayrelay/internal/store"
)

// NewServer builds the HTTP server: REST API, health check and the /ws gateway.
// presence may differ from st when presence lives in a separate backend.
// The returned WSHandler lets the caller wait for live sockets on shutdown.
func NewServer(
	hub *core.Hub,
	authService *auth.Service,
	st store.Store,
	presence store.PresenceStore,
	cfg *config.Config,
	logger *zerolog.Logger,
) (*stdhttp.Server, *WSHandler) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, presence, logger)

	router.GET("/health", healthHandler)
	router.POST("/api/register", apiHandlers.Register)
	router.POST("/api/login", apiHandlers.Login)

	protected := router.Group("/api", AuthMiddleware(authService, logger))
	protected.GET("/users", userHandlers.ListUsers)
	protected.GET("/messages/:peer", userHandlers.ListConversation)

	// The gateway hijacks the connection, which gin's ResponseWriter refuses
	// once websocket.Accept has flushed headers, so it bypasses the router.
	wsHandler := NewWSHandler(hub, authService, cfg.MaxMessageBytes, cfg.RateLimitPerMinute, logger)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}, wsHandler
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
