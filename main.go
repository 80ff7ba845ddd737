package main

import (
	"context"
	"github.com/lefinal/gacha-arena/app"
	"github.com/lefinal/gacha-arena/errors"
	"go.uber.org/zap"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// The actual logger is configured via the loaded config.
	bootLogger, _ := zap.NewDevelopment()
	config, err := app.LoadConfig(".env")
	if err != nil {
		errors.Log(bootLogger, errors.Wrap(err, "load config", nil))
		os.Exit(1)
	}
	err = app.NewApp(config).Boot(ctx)
	if err != nil {
		// Already logged.
		os.Exit(1)
	}
}
