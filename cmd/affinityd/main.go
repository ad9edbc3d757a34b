// Command affinityd serves the affinity API over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahrav/go-affinity/infrastructure/cache"
	"github.com/ahrav/go-affinity/infrastructure/export"
	"github.com/ahrav/go-affinity/infrastructure/middleware"
	"github.com/ahrav/go-affinity/infrastructure/storage/memstore"
	"github.com/ahrav/go-affinity/infrastructure/storage/sqlstore"
	"github.com/ahrav/go-affinity/internal/application"
	"github.com/ahrav/go-affinity/internal/ports"
	"github.com/ahrav/go-affinity/internal/testutils"
	"github.com/ahrav/go-affinity/internal/transport/rest"
)

// repository is what the daemon needs from a storage backend.
type repository interface {
	ports.FormRepository
	ports.AnswerRepository
	ports.ProfileRepository
	testutils.Seeder
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to the YAML config file")
		seedPath   = flag.String("seed", "", "Optional survey dataset loaded into storage at startup")
	)
	flag.Parse()

	cfg, err := application.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer closeRepo()

	if *seedPath != "" {
		dataset, err := testutils.LoadSurveyDataset(*seedPath)
		if err != nil {
			log.Fatalf("Failed to load seed dataset: %v", err)
		}
		if err := dataset.Seed(ctx, repo); err != nil {
			log.Fatalf("Failed to seed storage: %v", err)
		}
		log.Printf("Seeded form %s with %d submissions", dataset.Form.ID, len(dataset.Answers))
	}

	store, closeStore, err := openActiveStore(ctx, cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to open active result store: %v", err)
	}
	defer closeStore()

	metrics := middleware.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	svc, err := application.NewAffinityServiceFromConfig(ctx, cfg.Affinity, application.ServiceDeps{
		Forms:     repo,
		Answers:   repo,
		Profiles:  repo,
		Store:     store,
		Observer:  middleware.NewOTelComputeObserver(metrics),
		Exporters: export.All(),
	})
	if err != nil {
		log.Fatalf("Failed to create affinity service: %v", err)
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: rest.NewRouter(&rest.Container{
			Service:   svc,
			Metrics:   metrics,
			Gatherer:  prometheus.DefaultGatherer,
			RateLimit: cfg.Server.RateLimit,
			RateBurst: cfg.Server.RateBurst,
		}),
	}

	go func() {
		log.Printf("Server starting on %s (storage=%s)", cfg.Server.Addr, cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}

func openRepository(ctx context.Context, cfg application.StorageConfig) (repository, func(), error) {
	if cfg.Driver == "memory" {
		return memstore.New(), func() {}, nil
	}

	s, err := sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {
		if err := s.Close(); err != nil {
			log.Printf("Failed to close storage: %v", err)
		}
	}, nil
}

func openActiveStore(ctx context.Context, cfg application.CacheConfig) (ports.ActiveGroupStore, func(), error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryStore(cfg.TTL), func() {}, nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Connected to Redis at %s", cfg.RedisAddr)
	return cache.NewRedisStore(client, cfg.TTL), func() { _ = client.Close() }, nil
}
