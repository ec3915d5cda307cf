// Package server initializes and runs the sync server. It wires the
// database, object storage, mail, background workers and the HTTP
// endpoint, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wayfarerapp/wayfarer-server/internal/logging"
	"github.com/wayfarerapp/wayfarer-server/internal/server/config"
	"github.com/wayfarerapp/wayfarer-server/internal/server/httpapi"
	"github.com/wayfarerapp/wayfarer-server/internal/server/mail"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/repomanager"
	"github.com/wayfarerapp/wayfarer-server/internal/server/services"
	"github.com/wayfarerapp/wayfarer-server/internal/server/storage"
	"github.com/wayfarerapp/wayfarer-server/internal/server/worker"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	pool   *worker.Pool
	sync   *services.SyncService
	export *services.ExportService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store := storage.NewS3Storage(storage.S3Config{
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})

	var mailer mail.Mailer
	if cfg.SMTPAddr != "" {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	} else {
		mailer = mail.NewLogMailer(logger)
	}

	pool := worker.NewPool(logger)

	ss := services.NewSyncService(db, rm, logger)
	es := services.NewExportService(db, rm, store, mailer, pool, logger, cfg.ExportRetention)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		pool:   pool,
		sync:   ss,
		export: es,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger, app.sync, app.export, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.pool.RunEvery("export-housekeeping", app.config.HousekeepingInterval, app.export.SweepExpired)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.pool.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "worker pool shutdown", "error", err.Error())
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close", "error", err.Error())
	}
}
