package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ganot/teamescrow/internal/app"
	"github.com/ganot/teamescrow/internal/config"
	"github.com/ganot/teamescrow/internal/escrow"
	"github.com/ganot/teamescrow/internal/mcp"
	"github.com/ganot/teamescrow/internal/notify"
	"github.com/ganot/teamescrow/internal/sqlite"
	"github.com/ganot/teamescrow/internal/transport"
	"github.com/ganot/teamescrow/internal/userdir"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if cfg.Log.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
		}
		defer rotator.Close()
		logWriter = rotator
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	directory, closeDirectory, err := openDirectory(cfg.Directory, logger)
	if err != nil {
		logger.Error("failed to open user directory", "error", err)
		os.Exit(1)
	}
	defer closeDirectory()

	notifier, closeNotifier := buildNotifier(cfg.Notify, directory, logger)
	defer closeNotifier()

	var reporter escrow.Reporter = escrow.NopReporter{}
	if cfg.Sentry.DSN != "" {
		sentryReporter, err := escrow.NewSentryReporter(cfg.Sentry.DSN, cfg.Sentry.Environment)
		if err != nil {
			logger.Error("failed to initialize sentry", "error", err)
			os.Exit(1)
		}
		defer sentryReporter.Flush(2 * time.Second)
		reporter = sentryReporter
	}

	engine, err := app.New(app.Options{
		DB:            db,
		Directory:     directory,
		Notifier:      notifier,
		Reporter:      reporter,
		ReleaseDelay:  cfg.Escrow.ReleaseDelay,
		InvitationTTL: cfg.Recruit.InvitationTTL,
		MaxInvites:    cfg.Recruit.MaxInvites,
		Escrow: escrow.Config{
			SweepInterval:  cfg.Escrow.SweepInterval,
			ExpiryInterval: cfg.Recruit.ExpiryInterval,
			ReplayBatch:    cfg.Escrow.ReplayBatch,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to assemble services", "error", err)
		os.Exit(1)
	}

	mcpServices := mcp.Services{
		Projects:  engine.Projects,
		Payouts:   engine.Payouts,
		Recruiter: engine.Recruiter,
		Activity:  engine.Activity,
	}

	// Branch based on transport mode
	if cfg.Transport.Mode == "stdio" {
		runStdioMode(logger, mcp.NewServer(mcp.Config{Services: mcpServices, Logger: logger}))
		return
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Error("auth.jwt_secret is required in http mode")
		os.Exit(1)
	}
	resolver := transport.NewJWTResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	if err := engine.Scheduler.Start(); err != nil {
		logger.Error("failed to start escrow scheduler", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := engine.Scheduler.Stop(); err != nil {
			logger.Error("failed to stop escrow scheduler", "error", err)
		}
	}()

	router := transport.NewServer(engine.Services(), transport.AuthMiddleware(resolver), logger)
	if cfg.Server.MCPPath != "" {
		mcpServer := mcp.NewServer(mcp.Config{Services: mcpServices, Resolver: resolver, Logger: logger})
		mcpHandler := sdkmcp.NewStreamableHTTPHandler(
			func(r *http.Request) *sdkmcp.Server { return mcpServer },
			&sdkmcp.StreamableHTTPOptions{
				Stateless:      false,
				SessionTimeout: 30 * time.Minute,
			},
		)
		router.Handle(cfg.Server.MCPPath, mcpHandler)
		router.Handle(cfg.Server.MCPPath+"/*", mcpHandler)
	}

	runHTTPMode(logger, router, cfg.Server.Host, cfg.Server.Port)
}

func openDirectory(cfg config.DirectoryConfig, logger *slog.Logger) (app.Directory, func(), error) {
	if cfg.Driver == "postgres" {
		pg, err := userdir.OpenPostgres(cfg.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Migrate {
			if err := pg.Migrate(); err != nil {
				_ = pg.Close()
				return nil, nil, err
			}
		}
		return pg, func() { _ = pg.Close() }, nil
	}

	mem := userdir.NewMemory()
	if cfg.SeedFile != "" {
		users, err := userdir.LoadSeed(cfg.SeedFile)
		if err != nil {
			return nil, nil, err
		}
		mem.Seed(users)
		logger.Info("seeded user directory", "users", len(users))
	}
	return mem, func() {}, nil
}

func buildNotifier(cfg config.NotifyConfig, profiles notify.ProfileReader, logger *slog.Logger) (notify.Notifier, func()) {
	notifiers := []notify.Notifier{notify.NewLog(logger)}
	closers := []func(){}

	if cfg.RedisAddr != "" {
		r := notify.NewRedis(notify.RedisConfig{
			Address:       cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			ChannelPrefix: cfg.ChannelPrefix,
		})
		notifiers = append(notifiers, r)
		closers = append(closers, func() { _ = r.Close() })
	}
	if cfg.SMTP.Host != "" {
		notifiers = append(notifiers, notify.NewMail(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		}, profiles, logger))
	}

	return notify.NewMulti(logger, notifiers...), func() {
		for _, c := range closers {
			c()
		}
	}
}

func runStdioMode(logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport", "auth", "disabled")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stdio server error", "error", err)
	}
}

func runHTTPMode(logger *slog.Logger, handler http.Handler, host string, port int) {
	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer)
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
