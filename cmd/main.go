package main

import (
	"fmt"
	"os"
	"strings"

	"papertrader/cmd/engine"
	"papertrader/cmd/report"
	"papertrader/cmd/reset"
	"papertrader/src/database"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func SetupLogger() {
	config := database.GetConfig()

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(config.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	// .env is optional, the real environment wins
	_ = godotenv.Load()
	SetupLogger()

	app := cli.NewApp()
	app.Name = "papertrader"
	app.Usage = "Leveraged paper-trading engine"
	app.Version = Version

	app.Commands = []cli.Command{
		engineCMD,
		reportCMD,
		resetCMD,
		migrateCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run the trading engine and its HTTP API",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the price, signal, monitor, performance, optimization and daily loops until SIGINT/SIGTERM`,
	}
	reportCMD = cli.Command{
		Name:      "report",
		Usage:     "print performance of the current session",
		Action:    reportAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.IntFlag{Name: "days", Value: 30, Usage: "daily rows to include"},
		},
		Description: `Read the latest snapshot and positions and print metrics as JSON`,
	}
	resetCMD = cli.Command{
		Name:        "reset",
		Usage:       "start a new paper-trading session",
		Action:      resetAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Store a fresh snapshot at the configured initial balance. History is kept`,
	}
	migrateCMD = cli.Command{
		Name:        "migrate",
		Usage:       "create or update the database schema",
		Action:      migrateAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run schema and data migrations, then exit`,
	}
)

func engineAction(_ *cli.Context) error {
	logrus.Info("Starting engine CMD")

	runner := &engine.Runner{Log: logrus.WithField("cmd", "engine")}
	if err := runner.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func reportAction(c *cli.Context) error {
	logrus.Info("Starting report CMD")

	r := &report.Report{
		Log:  logrus.WithField("cmd", "report"),
		Out:  os.Stdout,
		Days: c.Int("days"),
	}
	if err := r.Start(); err != nil {
		logrus.WithError(err).Error("Starting report cmd")
		return err
	}
	return nil
}

func resetAction(_ *cli.Context) error {
	logrus.Info("Starting reset CMD")

	r := &reset.Reset{Log: logrus.WithField("cmd", "reset")}
	if err := r.Start(); err != nil {
		logrus.WithError(err).Error("Starting reset cmd")
		return err
	}
	return nil
}

func migrateAction(_ *cli.Context) error {
	logrus.Info("Starting migrate CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to migrate database")
		return err
	}
	return nil
}
