package engine

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"papertrader/src/connectors"
	"papertrader/src/database"
	tradingengine "papertrader/src/engine"
	"papertrader/src/events"
	"papertrader/src/handler"
	"papertrader/src/repository"
	"papertrader/src/security"
	"papertrader/src/server"

	"github.com/sirupsen/logrus"
)

type Runner struct {
	Log *logrus.Entry
}

func (t *Runner) Start() error {
	config := GetConfig()
	engineConfig := tradingengine.GetConfig()
	connectorsConfig := connectors.GetConfig()
	serverConfig := server.GetConfig()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		t.Log.WithError(err).Error("Failed to connect to main database")
		return err
	}

	store := repository.NewStore(database.MainDB)
	bus := events.NewBus(t.Log, config.EventBuffer)

	deps := tradingengine.Deps{
		MarketData: connectors.NewBinanceMarketData(connectorsConfig, t.Log),
		Signals:    connectors.NewAISignalClient(connectorsConfig, t.Log),
		Store:      store,
		Publisher:  bus,
		Logger:     t.Log,
	}
	if optimizer := connectors.NewOptimizerClient(connectorsConfig, t.Log); optimizer != nil {
		deps.Optimizer = optimizer
	}

	eng, err := tradingengine.New(engineConfig, deps)
	if err != nil {
		return err
	}
	eng.OnPanic(store.Exceptions.PanicRecorder(engineConfig.ServiceName, "engine"))

	if err := eng.Start(ctx); err != nil {
		t.Log.WithError(err).Error("Failed to start engine")
		return err
	}

	var serveErr error
	if config.DisableHTTP {
		<-ctx.Done()
	} else {
		router := server.NewRouter(server.Routes{
			Engine:    eng,
			Positions: handler.SearchPositionsHandler(store.Positions),
			Events:    server.NewEventStream(bus, *serverConfig),
			APIToken:  security.GetConfig().APIToken,
		})
		serveErr = server.StartServer(ctx, serverConfig.Port, router, serverConfig.ShutdownTimeout)
		if serveErr != nil {
			t.Log.WithError(serveErr).Error("HTTP server failed")
		}
	}

	// the signal context is done here, so stop with a fresh one
	if err := eng.Stop(context.Background()); err != nil {
		t.Log.WithError(err).Warn("Engine stop")
	}
	eng.Wait()
	t.Log.Info("Engine stopped")

	return serveErr
}
