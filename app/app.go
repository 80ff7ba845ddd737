// Package app wires all components and runs them.
package app

import (
	"context"
	"github.com/jonboulle/clockwork"
	"github.com/lefinal/gacha-arena/arena"
	"github.com/lefinal/gacha-arena/arenasvc"
	"github.com/lefinal/gacha-arena/debugstatssvc"
	"github.com/lefinal/gacha-arena/display"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/logging"
	"github.com/lefinal/gacha-arena/logpublishsvc"
	"github.com/lefinal/gacha-arena/portal"
	"github.com/lefinal/gacha-arena/service"
	"github.com/lefinal/gacha-arena/store"
	"github.com/lefinal/gacha-arena/webserver"
	"github.com/lefinal/gacha-arena/ws"
	"go.uber.org/zap"
	"time"
)

// App is a complete arena server instance.
type App struct {
	// config is the main config used for the App.
	config Config
}

// NewApp creates a new App with the given Config. Boot it with App.Boot.
func NewApp(config Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and runs until the given
// context.Context is done.
func (app *App) Boot(ctx context.Context) error {
	err := ValidateConfig(app.config)
	if err != nil {
		return errors.Wrap(err, "invalid config", nil)
	}
	logger, publishLog := logging.NewLogger(ctx, app.config.Log)
	defer func() { _ = logger.Sync() }()
	err = app.boot(ctx, logger, publishLog)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logger, err)
		return err
	}
	return nil
}

func (app *App) boot(ctx context.Context, logger *zap.Logger, publishLog <-chan logging.LogEntry) error {
	logger.Info("booting up")
	// Connect database.
	logger.Debug("connecting to database")
	db, err := connectDB(ctx, logger.Named("db"), app.config.DBConn, app.config.MaxDBConnections)
	if err != nil {
		return errors.Wrap(err, "connect database", nil)
	}
	defer db.Close()
	mall := store.NewMall(logger.Named("store"), db)
	logger.Debug("database ready")
	// Setup communication.
	portalBase, err := portal.NewBase(logger.Named("portal"), portal.Config{
		MQTTAddr: app.config.MQTTAddr,
		ClientID: app.config.MQTTClientID,
	})
	if err != nil {
		return errors.Wrap(err, "new portal base", nil)
	}
	wsHub := ws.NewHub(logger.Named("ws"))
	// Setup arena.
	arenaDisplay := display.Multi(
		display.NewMQTT(portalBase.NewPortal("display")),
		display.NewSpectators(wsHub))
	a := arena.NewArena(logger.Named("arena"), app.config.Arena, mall, arenaDisplay, clockwork.NewRealClock())
	// Setup web server.
	webServer, err := webserver.NewWebServer(logger.Named("web-server"), app.config.WebServer)
	if err != nil {
		return errors.Wrap(err, "new web server", nil)
	}
	webServer.PopulateRoutes(ctx, wsHub, a, mall)
	// Run everything.
	s := services{
		"portal":        service.Func(portalBase.Open),
		"ws-hub":        wsHub,
		"arena":         a,
		"web-server":    webServer,
		"arena-service": arenasvc.NewArenaService(logger.Named("arena-service"), portalBase.NewPortal("arena-service"), a),
		"debug-stats": debugstatssvc.NewService(logger.Named("debug-stats"), debugstatssvc.Config{
			IsEnabled: app.config.SystemDebugStatsInterval.Valid,
			Interval:  time.Duration(app.config.SystemDebugStatsInterval.Int) * time.Minute,
		}, a),
		"log-publish": logpublishsvc.New(logger.Named("log-publish"), portalBase.NewUnpublishedPortal("log-publish"), publishLog),
	}
	logger.Info("boot completed")
	err = s.run(ctx, logger.Named("services"))
	logger.Info("shut down")
	if err != nil {
		return errors.Wrap(err, "run services", nil)
	}
	return nil
}
