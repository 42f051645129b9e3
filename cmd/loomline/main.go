package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/loomworks/loomline/internal/clock"
	"github.com/loomworks/loomline/internal/config"
	"github.com/loomworks/loomline/internal/lifecycle"
	"github.com/loomworks/loomline/internal/logger"
	"github.com/loomworks/loomline/internal/migration"
	"github.com/loomworks/loomline/internal/server"
	"github.com/loomworks/loomline/pkg/db"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(RegisterRedis),
		fx.Provide(lifecycle.NewLocker),
		db.Module,
		clock.Module,
		server.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}

// RegisterRedis returns nil when no redis address is configured; the
// transition lock degrades to row-level locking only.
func RegisterRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
