package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/awayrelay/internal/auth"
)

// ContextKeyUsername is the context key for storing the verified username.
const ContextKeyUsername = "username"

// AuthMiddleware creates a middleware that validates bearer tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ParseBearer(c.GetHeader("Authorization"))
		if err != nil {
			logger.Debug().Err(err).Msg("invalid authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication failed"})
			return
		}

		identity, err := authService.Verify(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication failed"})
			return
		}

		c.Set(ContextKeyUsername, identity.Username)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func usernameFrom(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextKeyUsername)
	if !ok {
		return "", false
	}
	username, ok := v.(string)
	return username, ok && username != ""
}
