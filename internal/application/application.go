package application

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eugenenazirov/trendradar-webui/internal/api"
	"github.com/eugenenazirov/trendradar-webui/internal/config"
	"github.com/eugenenazirov/trendradar-webui/internal/merge"
	"github.com/eugenenazirov/trendradar-webui/internal/overlay"
	"github.com/eugenenazirov/trendradar-webui/internal/restart"
	"github.com/eugenenazirov/trendradar-webui/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	logger *zap.Logger
	server *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	configStore := storage.NewYAMLFileStore(cfg.ConfigPath)
	keywordStore := storage.NewTextFileStore(cfg.KeywordsPath)
	resolver := overlay.NewResolver(nil)
	service := merge.NewService(configStore, resolver, logger)
	restarter := restart.New(cfg.RestartCommand, cfg.RestartTimeout, logger)

	handler := api.NewHandler(service, keywordStore, restarter, api.WithLogger(logger))
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	rootHandler, err := BuildRootHandler(apiRouter)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	logger.Info("configuration sources",
		zap.String("config_file", configStore.Path()),
		zap.String("keywords_file", keywordStore.Path()),
		zap.Strings("env_overrides", overrideNames(resolver)),
		zap.String("restart_command", restarter.Command()),
	)

	return &App{
		logger: logger,
		server: NewServer(cfg, rootHandler),
	}, nil
}

// overrideNames lists the overlay variables currently set. Values are
// secrets and never logged.
func overrideNames(resolver *overlay.Resolver) []string {
	set := resolver.Resolve()
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildRootHandler constructs the root HTTP handler that serves static files,
// metrics, and routes API requests.
func BuildRootHandler(apiHandler http.Handler) (http.Handler, error) {
	mux := http.NewServeMux()

	staticPath, err := resolveProjectPath(filepath.Join("web", "static"))
	if err != nil {
		return nil, err
	}
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticPath))))
	mux.Handle("/api/", apiHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	indexPath, err := resolveProjectPath(filepath.Join("web", "templates", "index.html"))
	if err != nil {
		return nil, err
	}
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, indexPath)
	}))

	return mux, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// resolveProjectPath locates a file or directory relative to the project root
// by walking up from the working directory. Inside the container image the
// assets live under /app.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	candidate := filepath.Join(config.ProjectRoot(), relative)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
