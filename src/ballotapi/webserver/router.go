package webserver

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/privyballot/privyballot-sync/src/ballotapi/config"
)

func attachRoutes(r *gin.Engine, cfg config.Config, rdb *redis.Client, props Proposals) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	secret := []byte(cfg.JWTSecret)
	authH := NewAuth(rdb, secret)
	writeLimiter := NewRateLimiter(10, time.Minute)

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/challenge", authH.Challenge)
		v1.POST("/auth/verify", authH.Verify)

		// Reads work anonymously; a token only adds the caller's
		// hasVoted and deletion overlay.
		reads := v1.Group("")
		reads.Use(OptionalJWT(secret))
		reads.GET("/proposals", props.List)
		reads.GET("/proposals/:id", props.Get)
		reads.GET("/proposals/:id/status", props.Status)

		writes := v1.Group("")
		writes.Use(JWTMiddleware(secret), RateLimitMiddleware(writeLimiter))
		writes.POST("/proposals", props.Create)
		writes.POST("/proposals/:id/vote", props.Vote)
		writes.POST("/proposals/:id/reveal", props.Reveal)
		writes.DELETE("/proposals/:id", props.Delete)
		writes.POST("/local/reset", props.Reset)
	}
}
