package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"contestplane/internal/httpapi"
	"contestplane/pkg/config"
	"contestplane/pkg/db"
	"contestplane/pkg/health"
	"contestplane/pkg/logger"
	"contestplane/pkg/redis"
	"contestplane/pkg/sequence"
	"contestplane/pkg/server"
	"contestplane/services/adjustment"
	"contestplane/services/campaign"
	"contestplane/services/distribution"
	"contestplane/services/ledger"
	"contestplane/services/result"
	"contestplane/services/scoring"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		health.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		fx.Invoke(migrate),
		campaign.Module,
		ledger.Module,
		scoring.Module,
		result.Module,
		distribution.Module,
		adjustment.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&campaign.Campaign{},
		&campaign.Event{},
		&campaign.Prediction{},
		&campaign.Participation{},
		&ledger.Balance{},
		&ledger.PointTransaction{},
	)
}
