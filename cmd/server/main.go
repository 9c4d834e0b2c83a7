package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/pokerdash/internal/api"
	"github.com/kiliankoe/pokerdash/internal/config"
	"github.com/kiliankoe/pokerdash/internal/game"
	"github.com/kiliankoe/pokerdash/internal/storage"
	"github.com/kiliankoe/pokerdash/internal/storage/memory"
	"github.com/kiliankoe/pokerdash/internal/storage/sqlstore"
	"github.com/kiliankoe/pokerdash/internal/telemetry"
	"github.com/kiliankoe/pokerdash/internal/ws"
)

const version = "v1.0.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Pokerdash - Real-time planning poker

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 3000 or PORT env var)

Environment Variables (also read from .env):
  PORT                Port to listen on (default: 3000)
  STORAGE_DRIVER      "memory", "sqlite" or "postgres" (default: memory)
  DATABASE_URL        SQLite path or Postgres DSN (default: pokerdash.db)
  FRONTEND_URL        Comma-separated allowed origins (default: http://localhost:3001)
  SESSION_COOKIE      Identity cookie name (default: sessionId)
  SESSION_COOKIE_TTL  Identity cookie lifetime (default: 24h)
  COOKIE_SECURE       Mark the identity cookie Secure (default: false)
  LOG_LEVEL           debug, info, warn or error (default: info)
  LOG_FORMAT          console or json (default: console)
  OTEL_ENDPOINT       OTLP/HTTP traces endpoint; tracing is off when empty
  WS_PING_INTERVAL    Websocket keep-alive period (default: 15s)

Examples:
  %s                              Start with in-memory storage
  STORAGE_DRIVER=sqlite %s        Persist games to ./pokerdash.db
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Pokerdash %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}
	setupLogging(cfg)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "pokerdash", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	mgr := game.NewManager(store)
	hub := ws.NewHub(mgr)
	origins := api.NewOrigins(cfg.FrontendURLs)

	// Gin setup with custom logger (skip realtime noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.RequestLogger("/ws", "/socket.io"))
	r.Use(api.CORS(origins))

	r.GET("/ws", hub.WebSocketHandler(ws.WebSocketOptions{
		CookieName:   cfg.CookieName,
		PingInterval: cfg.PingInterval,
		CheckOrigin:  origins.CheckOrigin,
	}))
	io := hub.MountSocketIO(r, ws.SocketIOOptions{
		CookieName:  cfg.CookieName,
		CheckOrigin: origins.CheckOrigin,
	})
	defer io.Close()

	api.NewServer(mgr, api.CookieOptions{
		Name:   cfg.CookieName,
		TTL:    cfg.CookieTTL,
		Secure: cfg.CookieSecure,
	}).Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("storage", cfg.StorageDriver).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	hub.Close()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		return sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.DatabaseURL)
	case config.DriverPostgres:
		return sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.DatabaseURL)
	default:
		return memory.New(), nil
	}
}
