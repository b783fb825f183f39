package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/trendradar-webui/internal/application"
	"github.com/eugenenazirov/trendradar-webui/internal/config"
	"github.com/eugenenazirov/trendradar-webui/internal/logging"
)

var signalNotify = signal.Notify

type flags struct {
	settingsFile   *string
	envFile        *string
	port           *string
	configFile     *string
	keywordsFile   *string
	restartCommand *string
	logLevel       *string
	logFile        *string
	rateLimitRPS   *float64
	rateLimitBurst *int
}

func newCLI() (*kingpin.Application, *flags) {
	app := kingpin.New("trendradar-webui", "TrendRadar Web UI - edit the TrendRadar configuration and keyword files over HTTP")
	f := &flags{
		settingsFile:   app.Flag("settings", "Path to YAML settings file for the web UI itself").String(),
		envFile:        app.Flag("env-file", "Path to a .env file with overlay variables").String(),
		port:           app.Flag("port", "HTTP port exposed by the service").String(),
		configFile:     app.Flag("config-file", "Path to the TrendRadar config.yaml").String(),
		keywordsFile:   app.Flag("keywords-file", "Path to the TrendRadar frequency_words.txt").String(),
		restartCommand: app.Flag("restart-command", "Command that restarts the TrendRadar container").String(),
		logLevel:       app.Flag("log-level", "Log level (debug, info, warn, error)").String(),
		logFile:        app.Flag("log-file", "Optional rotated log file").String(),
		rateLimitRPS:   app.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64(),
		rateLimitBurst: app.Flag("rate-limit-burst", "Burst capacity for rate limiter").Default("-1").Int(),
	}
	return app, f
}

// overrides converts parsed flags into config overrides. Unset flags are left nil.
func (f *flags) overrides() *config.CLIOverrides {
	o := &config.CLIOverrides{
		SettingsFile: *f.settingsFile,
	}
	for _, p := range []struct {
		dst **string
		src *string
	}{
		{&o.Port, f.port},
		{&o.ConfigFile, f.configFile},
		{&o.KeywordsFile, f.keywordsFile},
		{&o.RestartCommand, f.restartCommand},
		{&o.LogLevel, f.logLevel},
		{&o.LogFile, f.logFile},
	} {
		if *p.src != "" {
			*p.dst = p.src
		}
	}
	if *f.rateLimitRPS >= 0 {
		o.RateLimitRPS = f.rateLimitRPS
	}
	if *f.rateLimitBurst >= 0 {
		o.RateLimitBurst = f.rateLimitBurst
	}
	return o
}

func main() {
	cli, f := newCLI()
	kingpin.MustParse(cli.Parse(os.Args[1:]))

	envFile := *f.envFile
	if envFile == "" {
		envFile = config.DefaultEnvFile()
	}
	envLoaded, err := config.LoadEnvFile(envFile)
	if err != nil {
		panic(fmt.Sprintf("failed to load env file: %v", err))
	}

	cfg, err := config.Load(f.overrides())
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	if envLoaded {
		logger.Info("loaded env file", zap.String("path", envFile))
	}

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info("shutting down server", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
