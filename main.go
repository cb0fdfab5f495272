package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	analytics "basin-analytics/internal/analytics/domain"
	"basin-analytics/internal/auth"
	"basin-analytics/internal/config"
	"basin-analytics/internal/observability/metrics"
	"basin-analytics/internal/tracking/application"
	"basin-analytics/internal/tracking/infrastructure/memory"
	"basin-analytics/internal/tracking/infrastructure/sqlstore"
	runhttp "basin-analytics/internal/tracking/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "modernc.org/sqlite"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	repo, cleanup, err := buildRepository(cfg, logger)
	if err != nil {
		logger.Fatalf("repository error: %v", err)
	}
	defer cleanup()

	metrics.Init()

	defaultReducer, err := analytics.ParseReducer(cfg.DefaultReducer)
	if err != nil {
		logger.Fatalf("reducer error: %v", err)
	}

	service, err := application.NewService(
		repo,
		cfg.MinimumEventLength,
		application.WithLogger(logger),
		application.WithDefaultReducer(defaultReducer),
		application.WithProgressLog(cfg.ProgressLog),
	)
	if err != nil {
		logger.Fatalf("run service error: %v", err)
	}

	runHandler, err := runhttp.NewHandler(service)
	if err != nil {
		logger.Fatalf("run handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/runs", runHandler)
	mux.Handle("/api/v1/runs/", runHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func buildRepository(cfg config.Config, logger *log.Logger) (application.RunRepository, func(), error) {
	switch cfg.DatabaseDriver {
	case "memory":
		logger.Printf("using in-memory run store")
		return memory.NewRunRepository(), func() {}, nil
	case "postgres", "sqlite":
		driver := "pgx"
		if cfg.DatabaseDriver == "sqlite" {
			driver = "sqlite"
		}
		db, err := sql.Open(driver, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		if driver == "sqlite" {
			// modernc sqlite serializes writes through one connection.
			db.SetMaxOpenConns(1)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, err
		}
		repo, err := sqlstore.NewRunRepository(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Printf("using %s run store", cfg.DatabaseDriver)
		return repo, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
