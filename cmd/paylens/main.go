package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paylens/internal/clock"
	"github.com/smallbiznis/paylens/internal/config"
	"github.com/smallbiznis/paylens/internal/logger"
	"github.com/smallbiznis/paylens/internal/migration"
	"github.com/smallbiznis/paylens/internal/server"
	"github.com/smallbiznis/paylens/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
