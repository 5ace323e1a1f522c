// Package server exposes a recgo.Model over HTTP.
//
// Routes:
//
//	POST /v1/artists        recommend for a list of artist names
//	POST /v1/playlists      recommend for a submitted playlist
//	POST /v1/admin/save     start a background save (202)
//	GET  /v1/admin/save     state of the last background save
//	GET  /v1/status         model status
//	GET  /metrics           Prometheus metrics
//	GET  /healthz           liveness
//
// The model is guarded by a read/write lock: pipeline calls may register
// playlists and take the write lock, status and save encoding take the read
// lock.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/recgo"
)

// RequestRecorder observes served requests.
type RequestRecorder interface {
	RecordRequest(method, route string, code int, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordRequest(string, string, int, time.Duration) {}

// Options configures a Server.
type Options struct {
	// Folder is the snapshot folder used by saves.
	Folder string
	// Logger receives request and save logs. Defaults to slog.Default().
	Logger *slog.Logger
	// Recorder observes requests. Defaults to a no-op.
	Recorder RequestRecorder
	// Gatherer serves /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	// RateLimitRequests per RateLimitWindow and client IP on /v1. 0 disables it.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// DefaultLimit is the result limit when a request sets none.
	DefaultLimit int
}

// Server serves a Model.
type Server struct {
	mu    sync.RWMutex
	model *recgo.Model

	opts     Options
	validate *validator.Validate
	handler  http.Handler

	taskMu   sync.Mutex
	lastTask *recgo.SaveTask
}

// New creates a server for model.
func New(model *recgo.Model, optFns ...func(o *Options)) *Server {
	opts := Options{
		Folder:          "model",
		Logger:          slog.Default(),
		Recorder:        noopRecorder{},
		RateLimitWindow: time.Minute,
		DefaultLimit:    recgo.DefaultLimit,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}

	s := &Server{
		model:    model,
		opts:     opts,
		validate: validator.New(),
	}
	s.handler = s.routes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Save starts a background save of the model into the configured folder.
func (s *Server) Save(ctx context.Context) (*recgo.SaveTask, error) {
	s.mu.RLock()
	task, err := s.model.SaveAsync(ctx, s.opts.Folder)
	s.mu.RUnlock()

	if err != nil {
		return nil, err
	}

	s.taskMu.Lock()
	s.lastTask = task
	s.taskMu.Unlock()

	return task, nil
}

// AutoSave saves the model every interval while it has unsaved changes,
// until ctx is done. Each save is awaited before the next tick is handled.
func (s *Server) AutoSave(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.RLock()
		dirty := s.model.DirtyArtists() || s.model.DirtyPlaylists()
		s.mu.RUnlock()

		if !dirty {
			continue
		}

		task, err := s.Save(ctx)
		if err != nil {
			s.opts.Logger.ErrorContext(ctx, "auto save failed", slog.Any("error", err))
			continue
		}

		if err := task.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.opts.Logger.ErrorContext(ctx, "auto save failed", slog.String("task", task.ID), slog.Any("error", err))
		}
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	srv.Handler = s

	errCh := make(chan error, 1)

	go func() {
		s.opts.Logger.Info("listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
