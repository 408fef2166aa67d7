package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"dlgen/internal/audit"
	"dlgen/internal/auth"
	"dlgen/internal/config"
	"dlgen/internal/convert"
	"dlgen/internal/logging"
	"dlgen/internal/pipeline"
	"dlgen/internal/printing"
	"dlgen/internal/server"
	"dlgen/internal/session"
	"dlgen/internal/templates"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, configPath, usedDefaults, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	if usedDefaults {
		logger.Warn("no config file found, using defaults",
			logging.String("expected_path", configPath))
	}

	lock := flock.New(filepath.Join(cfg.Paths.LogDir, "dlgend.lock"))
	held, err := lock.TryLock()
	if err != nil {
		logger.Error("acquire daemon lock", logging.Error(err))
		os.Exit(1)
	}
	if !held {
		logger.Error("another dlgend instance is already running")
		os.Exit(1)
	}
	defer lock.Unlock() //nolint:errcheck

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("initialize services", logging.Error(err))
		os.Exit(1)
	}
	defer deps.close()

	srv, err := server.New(server.Options{
		Bind:      cfg.Paths.APIBind,
		Logger:    logger,
		Sessions:  deps.sessions,
		Runner:    deps.pipeline,
		Printer:   deps.printer,
		Audits:    deps.audits,
		AuthStore: deps.authStore,
		Provider:  deps.provider,
	})
	if err != nil {
		logger.Error("create api server", logging.Error(err))
		os.Exit(1)
	}
	if err := srv.Start(ctx); err != nil {
		logger.Error("start api server", logging.Error(err))
		os.Exit(1)
	}
	defer srv.Stop()

	go sweepSessions(ctx, cfg, deps, logger)

	logger.Info("dlgend running",
		logging.String("config", configPath),
		logging.String("bind", cfg.Paths.APIBind))
	<-ctx.Done()
	logger.Info("dlgend shutting down")
}

// sweepSessions periodically drops idle user sessions and expired logins.
func sweepSessions(ctx context.Context, cfg *config.Config, deps *dependencies, logger *slog.Logger) {
	interval := time.Duration(cfg.Generation.SessionSweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		return
	}
	maxIdle := 4 * interval

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deps.sessions.Sweep(maxIdle)
			if deps.authStore != nil {
				if _, err := deps.authStore.PurgeExpired(ctx); err != nil {
					logger.Warn("purge login sessions", logging.Error(err))
				}
			}
		}
	}
}

type dependencies struct {
	sessions  *session.Store
	pipeline  *pipeline.Pipeline
	printer   *printing.Service
	audits    *audit.Store
	authStore *auth.Store
	provider  auth.Provider
}

func (d *dependencies) close() {
	_ = d.audits.Close()
	if d.authStore != nil {
		_ = d.authStore.Close()
	}
}

func buildDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dependencies, error) {
	deps := &dependencies{}

	var err error
	deps.sessions, err = session.NewStore(cfg.Paths.WorkDir, logger)
	if err != nil {
		return nil, err
	}
	deps.audits, err = audit.Open(filepath.Join(cfg.Paths.DataDir, "audit.db"))
	if err != nil {
		return nil, err
	}

	lookup, err := templates.NewSheetsLookup(ctx,
		cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName)
	if err != nil {
		return nil, err
	}
	fetcher, err := templates.NewFTPFetcher(cfg.FTP, cfg.Generation.SignatureFallbackDays)
	if err != nil {
		return nil, err
	}
	converter, err := convert.New(cfg.Converter.Binary, cfg.Converter.BatchSize,
		cfg.Converter.TimeoutSeconds, cfg.Converter.MaxRetries,
		cfg.Converter.CooldownSeconds, cfg.Converter.Workers, logger)
	if err != nil {
		return nil, err
	}
	deps.pipeline, err = pipeline.New(lookup, fetcher, converter, deps.audits,
		cfg.Generation.ManifestPageSize, logger)
	if err != nil {
		return nil, err
	}

	deps.printer, err = printing.New(cfg.Printing.ListBinary, cfg.Printing.PrintBinary,
		cfg.Printing.DefaultPrinter, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Auth.ClientID != "" {
		deps.authStore, err = auth.OpenStore(filepath.Join(cfg.Paths.DataDir, "auth.db"),
			time.Duration(cfg.Auth.SessionTTLHours)*time.Hour)
		if err != nil {
			return nil, err
		}
		deps.provider, err = auth.NewOAuthProvider(cfg.Auth)
		if err != nil {
			return nil, err
		}
	}
	return deps, nil
}
