package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/hmori/go-civic-response/internal/activity"
	"github.com/hmori/go-civic-response/internal/api"
	"github.com/hmori/go-civic-response/internal/auth"
	"github.com/hmori/go-civic-response/internal/broadcast"
	"github.com/hmori/go-civic-response/internal/config"
	"github.com/hmori/go-civic-response/internal/logging"
	"github.com/hmori/go-civic-response/internal/media"
	"github.com/hmori/go-civic-response/internal/repository"
	"github.com/hmori/go-civic-response/internal/sheltersync"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	mediaStore, err := media.NewStore(cfg.Media.Dir, cfg.Media.MaxUploadBytes)
	if err != nil {
		logging.Fatalf("Failed to initialize media store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fan-out for the realtime alert stream
	broadcaster := broadcast.NewBroadcaster()

	// Social feed recorder
	recorder := activity.NewRecorder(cfg, db)
	recorder.Start(ctx)

	// Shelter feed sync
	shelters := sheltersync.NewManager(cfg, db)
	shelters.Start(ctx)

	sessions := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.RateLimit.RPS))

	handler := api.NewHandler(db, broadcaster, mediaStore, recorder, sessions)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	shelters.Stop()
	recorder.Stop()
	broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
