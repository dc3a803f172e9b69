package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mirko1075/in-one-button-be/internal/adapters/stream"
	"github.com/mirko1075/in-one-button-be/internal/app"
	"github.com/mirko1075/in-one-button-be/internal/config"
	"github.com/mirko1075/in-one-button-be/internal/core"
)

// IdentityMiddleware verifies the bearer token before any stream event is
// processed. The token arrives in the Authorization header or, for browser
// websocket clients that cannot set headers, the `token` query parameter.
func IdentityMiddleware(verifier core.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			h := c.GetHeader("Authorization")
			token = strings.TrimPrefix(h, "Bearer ")
		}
		identity, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("identity", string(identity))
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, coord *app.Coordinator, verifier core.Verifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("TranscriptionSessions", store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	limiter := stream.NewStartRateLimiter(cfg.StartRateLimit, cfg.StartRateInterval)
	ctrl := stream.NewStreamWSController(coord, limiter)
	ctrl.ReadLimit = cfg.ReadLimit

	api := r.Group("/api")

	api.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"active": coord.ActiveSessions()})
	})

	api.GET("/ws/stream", IdentityMiddleware(verifier), func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("identity", c.GetString("identity")).Msg("ws stream endpoint hit")
		ctrl.HandleStream(ctx, c)
	})

	return r
}
