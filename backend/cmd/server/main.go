package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"warmintro/backend/internal/api"
	"warmintro/backend/internal/services"
	"warmintro/backend/pkg/config"
	"warmintro/backend/pkg/logger"
)

// statsTTL is how long cached network stats stay valid.
const statsTTL = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting warm-intro engine", zap.String("env", cfg.Env), zap.String("port", cfg.Port))

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sm, err := services.New(startCtx, cfg)
	cancel()
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer sm.Close()

	if !cfg.ServerScheduler {
		log.Info("Maintenance scheduler left to the worker process")
	}
	if err := sm.StartScheduler(schedulerInterval(cfg)); err != nil {
		log.Fatal("Failed to start maintenance scheduler", zap.Error(err))
	}

	gin.SetMode(ginMode(cfg.Env))
	router := api.NewRouter(api.Deps{
		Search:   sm.Search,
		Network:  sm.Traversal,
		Ingest:   sm.Ingest,
		Scorer:   sm.Scoring,
		Sweeper:  sm.Dedup,
		Jobs:     sm.Jobs,
		Graph:    sm.Graph,
		Cache:    sm.Cache,
		StatsTTL: statsTTL,
	}, log)

	srv := newHTTPServer(cfg.Port, router)

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func ginMode(env string) string {
	if env == "production" {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

func newHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Searches may wait on the LLM and a traversal.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// schedulerInterval is zero, which disables the scheduler, when another
// process owns maintenance.
func schedulerInterval(cfg *config.Config) time.Duration {
	if !cfg.ServerScheduler {
		return 0
	}
	return cfg.MaintenanceInterval
}
