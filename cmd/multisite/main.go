package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mshttp "github.com/brighttutors/multisite/internal/adapter/http"
	msnats "github.com/brighttutors/multisite/internal/adapter/nats"
	"github.com/brighttutors/multisite/internal/adapter/natskv"
	otelx "github.com/brighttutors/multisite/internal/adapter/otel"
	"github.com/brighttutors/multisite/internal/adapter/ristretto"
	"github.com/brighttutors/multisite/internal/adapter/sanity"
	"github.com/brighttutors/multisite/internal/adapter/tiered"
	"github.com/brighttutors/multisite/internal/config"
	"github.com/brighttutors/multisite/internal/logger"
	"github.com/brighttutors/multisite/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"store_dataset", cfg.Store.Dataset,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownOtel, err := otelx.Setup(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdownOtel(context.Background()) }()

	metrics, err := otelx.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// NATS: revalidation fan-out plus the durable KV cache tiers.
	nbus, err := msnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = nbus.Close() }()

	queryKV, err := nbus.KeyValue(ctx, cfg.NATS.KVBucket+"-queries", cfg.Cache.ContentTTL)
	if err != nil {
		return fmt.Errorf("query kv: %w", err)
	}
	slugKV, err := nbus.KeyValue(ctx, cfg.NATS.KVBucket+"-slugs", cfg.Cache.SlugTTL)
	if err != nil {
		return fmt.Errorf("slug kv: %w", err)
	}

	// Caches: a tiered query cache behind the store gateway, and a separate
	// in-process cache for domain resolution so a clone-change flush does not
	// dump unrelated query results.
	queryL1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("query cache: %w", err)
	}
	defer queryL1.Close()

	domainCache, err := ristretto.New(8 << 20)
	if err != nil {
		return fmt.Errorf("domain cache: %w", err)
	}
	defer domainCache.Close()

	queryCache := tiered.New(queryL1, natskv.New(queryKV), cfg.Cache.ContentTTL)

	// --- Store gateway ---
	store := sanity.New(sanity.Config{
		ProjectID:  cfg.Store.ProjectID,
		Dataset:    cfg.Store.Dataset,
		APIVersion: cfg.Store.APIVersion,
		Token:      cfg.Store.Token,
		BaseURL:    cfg.Store.BaseURL,
	}, queryCache, metrics)

	// --- Services ---
	domains := service.NewDomainResolver(store, domainCache, cfg.Cache.DomainTTL, metrics)
	resolver := service.NewContentResolver(store, cfg.Cache.ContentTTL)
	slugs := service.NewSlugCache(store, natskv.New(slugKV), cfg.Cache.SlugTTL)
	links := service.NewLinkPolicy(store, cfg.Cache.LinkTTL)
	reval := service.NewRevalidator(store, domains, slugs, nbus, metrics)

	stopSubscriber, err := reval.StartSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("revalidation subscriber: %w", err)
	}
	defer stopSubscriber()

	// --- HTTP ---
	handlers := &mshttp.Handlers{
		Domains: domains,
		Content: resolver,
		Slugs:   slugs,
		Links:   links,
		Reval:   reval,
	}

	r := chi.NewRouter()

	r.Use(mshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(mshttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(otelx.HTTPMiddleware(cfg.Logging.Service))

	r.Get("/health", healthHandler(cfg))

	mshttp.MountRoutes(r, handlers, cfg.Webhook.Secret)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config) http.HandlerFunc {
	type healthStatus struct {
		Status  string `json:"status"`
		NATS    string `json:"nats"`
		Dataset string `json:"dataset"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:  "ok",
			NATS:    cfg.NATS.URL,
			Dataset: cfg.Store.Dataset,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
