package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/exam-shuffler/internal/ai"
	"github.com/p-n-ai/exam-shuffler/internal/api"
	"github.com/p-n-ai/exam-shuffler/internal/exam"
	"github.com/p-n-ai/exam-shuffler/internal/export"
	"github.com/p-n-ai/exam-shuffler/internal/extract"
	"github.com/p-n-ai/exam-shuffler/internal/platform/cache"
	"github.com/p-n-ai/exam-shuffler/internal/platform/config"
	"github.com/p-n-ai/exam-shuffler/internal/platform/logging"
	"github.com/p-n-ai/exam-shuffler/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stdout, cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute, // large uploads
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "session_store", cfg.Session.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

const sweepInterval = time.Minute

type app struct {
	handler http.Handler
	manager *session.Manager
	cache   *cache.Cache
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("closing cache", "error", err)
		}
	}
}

// newApp wires providers, the page processor, session storage and the HTTP API.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	router, err := ai.NewRouterFromConfig(cfg.AI)
	if err != nil {
		return nil, err
	}

	a := &app{}
	var store session.Store
	switch cfg.Session.Store {
	case "redis":
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting session store: %w", err)
		}
		a.cache = c
		store = session.NewRedisStore(c, cfg.Session.TTL())
	default:
		ms := session.NewMemoryStore(session.WithTTL(cfg.Session.TTL()))
		go ms.RunSweeper(ctx, sweepInterval)
		store = ms
	}

	hub := session.NewHub()
	budget := ai.NewInMemoryBudget(cfg.AI.TokenBudget)
	engine := exam.NewEngine(nil)
	extractor := extract.New(router, extract.WithTimeout(cfg.AI.Timeout()))
	processor := session.NewProcessor(extractor, engine,
		session.WithBudget(budget),
		session.WithEvents(hub),
		session.WithRenderDPI(float64(cfg.Processing.RenderDPI)),
	)
	a.manager = session.NewManager(store, processor, engine,
		session.WithManagerEvents(hub),
		session.WithSessionBudget(budget),
		session.WithIncludeImages(cfg.Processing.IncludeImages),
		session.WithPreviewDPI(float64(cfg.Processing.PreviewDPI)),
		session.WithExportOptions(export.Options{
			Title:          cfg.Export.Title,
			AnswerKeyTitle: cfg.Export.AnswerKeyTitle,
			PDFFont:        cfg.Export.PDFFont,
		}),
	)

	server := api.NewServer(a.manager, hub, api.Config{
		CookieSecret:   cfg.Server.CookieSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		Secure:         cfg.Server.SecureCookies,
		Ready: func(ctx context.Context) error {
			if !router.HasProvider() {
				return ai.ErrNoProvider
			}
			return store.Ping(ctx)
		},
	})
	a.handler = server.Routes()
	return a, nil
}
