package webserver

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/privyballot/privyballot-sync/src/ballotapi/config"
)

func New(cfg config.Config, rdb *redis.Client, props Proposals) *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	attachRoutes(g, cfg, rdb, props)
	return g
}
