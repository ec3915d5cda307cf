// Package httpapi exposes the sync and export services over HTTP. The
// router, request ids and panic recovery come from chi; everything
// behind the auth middleware speaks JSON.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wayfarerapp/wayfarer-server/internal/logging"
	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
	"github.com/wayfarerapp/wayfarer-server/internal/server/services"
)

// SyncAPI is the slice of the sync service the HTTP layer consumes.
type SyncAPI interface {
	GetStatus(ctx context.Context, accountID, deviceID string) (*services.SyncStatus, error)
	ApplyDelta(ctx context.Context, accountID, deviceID string, sinceVersion int64, incoming []*models.Envelope) (*services.DeltaResult, error)
	ResolveConflict(ctx context.Context, accountID, deviceID, conflictID, entityID, chosenPayload string, isEncrypted bool) (*services.Resolution, error)
}

// ExportAPI is the slice of the export service the HTTP layer consumes.
type ExportAPI interface {
	Request(ctx context.Context, accountID, deviceID, notifyEmail string) (*models.ExportJob, error)
	GetStatus(ctx context.Context, jobID, accountID string) (*models.ExportJob, error)
}

// Server hosts the public HTTP endpoint.
type Server struct {
	address   string
	logger    logging.Logger
	sync      SyncAPI
	export    ExportAPI
	jwtSecret []byte
}

// NewServer constructs a Server.
func NewServer(address string, l logging.Logger, sync SyncAPI, export ExportAPI, secretKey string) *Server {
	return &Server{
		address:   address,
		logger:    l.With("module", "http_server"),
		sync:      sync,
		export:    export,
		jwtSecret: []byte(secretKey),
	}
}

// Router assembles the chi router with middleware and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/api/v1/sync/status", s.handleSyncStatus)
		r.Post("/api/v1/sync/delta", s.handleSyncDelta)
		r.Post("/api/v1/sync/resolve-conflict", s.handleResolveConflict)

		r.Post("/api/v1/export", s.handleRequestExport)
		r.Get("/api/v1/export/{id}/status", s.handleExportStatus)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
