package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ciex/internal/api"
	"ciex/internal/appconfig"
	"ciex/internal/config"
	"ciex/internal/contrib"
	"ciex/internal/core"
	fileutil "ciex/internal/file"
	"ciex/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yml", "daemon config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	level, _ := cfg.Level()
	zerolog.SetGlobalLevel(level)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	ciCore, supervisor := buildCore(baseCtx, cfg)

	// settings errors are reported by the core and fixed with a reload
	if err := ciCore.Initialize(); err != nil {
		log.Warn().Err(err).Str("apps_config", cfg.AppsConfig).Msg("initial load failed; waiting for reload")
	}

	router := setupRouter()
	wireAPI(router, ciCore)

	const readHeaderTimeout = 5 * time.Second
	srv := &http.Server{Handler: router, ReadHeaderTimeout: readHeaderTimeout}

	ln, err := listen(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("listen failed")
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("ciexd listening")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdownSignal()

	gracefulShutdown(srv, baseCancel, supervisor, ciCore, cfg)
}

func buildCore(baseCtx context.Context, cfg config.Config) (*core.Core, *worker.Supervisor) {
	registry := worker.NewRegistry()
	contrib.Register(registry, contrib.ExecRunner{})

	supervisor := worker.NewSupervisor()
	supervisor.SetBaseContext(baseCtx)

	return core.New(core.Options{
		Source:     appconfig.File(cfg.AppsConfig),
		Registry:   registry,
		Supervisor: supervisor,
	}), supervisor
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	return r
}

func wireAPI(router *gin.Engine, c *core.Core) {
	apiHandler := api.NewAPI(c)
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)
}

// listen opens the unix socket when one is configured, TCP otherwise.
func listen(cfg config.Config) (net.Listener, error) {
	if cfg.Socket == "" {
		return net.Listen("tcp", cfg.Addr())
	}
	if fileutil.IsDir(cfg.Socket) {
		return nil, errors.New("socket path is a directory: " + cfg.Socket)
	}
	// stale socket from a previous run
	if err := os.Remove(cfg.Socket); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return net.Listen("unix", cfg.Socket)
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, supervisor *worker.Supervisor, c *core.Core, cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if !supervisor.WaitAll(ctx) {
		log.Warn().Msg("workers did not finish before timeout")
	}
	c.Shutdown(ctx)
	if cfg.Socket != "" {
		_ = os.Remove(cfg.Socket)
	}
	log.Info().Msg("ciexd exited cleanly")
}
