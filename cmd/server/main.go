package main

import (
	"github.com/netframe/coreengine/internal/app"
	"github.com/netframe/coreengine/internal/config"
	"github.com/netframe/coreengine/internal/observability"
)

func main() {
	logger := observability.NewStdLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration: %v", err)
	}

	application := app.NewApp(cfg, logger, nil)

	logger.Info("coreengine server starting...")

	if err := application.Run(); err != nil {
		logger.Fatal("server error: %v", err)
	}
}
