// Package app assembles the application: configuration, database pool,
// Gemini gateway, domain stores, background scheduler, and the HTTP
// server. Setup wires everything; Close releases it in reverse order.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chalssak/chalssak/internal/api"
	"github.com/chalssak/chalssak/internal/channel"
	"github.com/chalssak/chalssak/internal/chat"
	"github.com/chalssak/chalssak/internal/config"
	"github.com/chalssak/chalssak/internal/crawler"
	"github.com/chalssak/chalssak/internal/favorite"
	"github.com/chalssak/chalssak/internal/gemini"
	"github.com/chalssak/chalssak/internal/metrics"
	"github.com/chalssak/chalssak/internal/note"
	"github.com/chalssak/chalssak/internal/scheduler"
	"github.com/chalssak/chalssak/internal/trash"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool      *pgxpool.Pool
	Gateway   *gemini.Client
	Channels  *channel.Store
	Notes     *note.Store
	Favorites *favorite.Store
	Messages  *chat.MessageStore
	Chat      *chat.Service
	Trash     *trash.Manager
	Crawler   *crawler.Crawler
	Metrics   *metrics.Recorder

	// Scheduler is nil when scheduler.enabled is false.
	Scheduler *scheduler.Scheduler

	Server *api.Server

	traceShutdown func(context.Context) error
}

// Close releases application resources. Safe to call after a partial
// Setup failure.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
	if a.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.traceShutdown(ctx); err != nil {
			a.Logger.Warn("shutting down tracer provider", "error", err)
		}
	}
	return nil
}
