package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/provwatch/internal/clock"
	"github.com/smallbiznis/provwatch/internal/config"
	"github.com/smallbiznis/provwatch/internal/expiration"
	"github.com/smallbiznis/provwatch/internal/migration"
	"github.com/smallbiznis/provwatch/internal/observability"
	"github.com/smallbiznis/provwatch/internal/ratelimit"
	"github.com/smallbiznis/provwatch/internal/record"
	"github.com/smallbiznis/provwatch/internal/runledger"
	"github.com/smallbiznis/provwatch/internal/scheduler"
	"github.com/smallbiznis/provwatch/internal/server"
	"github.com/smallbiznis/provwatch/internal/snapshot"
	"github.com/smallbiznis/provwatch/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		ratelimit.Module,
		record.Module,
		snapshot.Module,
		expiration.Module,
		runledger.Module,
		scheduler.Module,
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
