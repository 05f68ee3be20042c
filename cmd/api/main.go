// main.go - The entry point and router setup.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bosocmputer/swing_ocr/configs"
	"github.com/bosocmputer/swing_ocr/internal/api"
	"github.com/bosocmputer/swing_ocr/internal/bootstrap"
	"github.com/bosocmputer/swing_ocr/internal/common"
	"github.com/bosocmputer/swing_ocr/internal/queue"
	"github.com/gin-gonic/gin"
)

func main() {
	// Step 0: Load configuration from environment variables
	configs.LoadConfig()
	common.ConfigureLogger(configs.LOG_LEVEL, configs.LOG_FORMAT)
	log := common.Logger()

	if configs.GIN_MODE == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Step 1: Create the UPLOAD_DIR folder if uploads are archived
	if configs.UPLOAD_DIR != "" {
		if err := os.MkdirAll(configs.UPLOAD_DIR, 0755); err != nil {
			log.Fatalf("Failed to create upload directory: %v", err)
		}
	}

	// Step 2: Engines, isolator and stores
	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	app, err := bootstrap.Build(startCtx)
	cancelStart()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	var enqueuer api.Enqueuer
	if configs.REDIS_URL != "" {
		e, err := queue.NewEnqueuer(configs.REDIS_URL, configs.QUEUE_NAME)
		if err != nil {
			log.Fatalf("Failed to create queue client: %v", err)
		}
		defer e.Close()
		enqueuer = e
	}

	// Step 3: Define the API routes
	handler := api.NewHandler(api.Config{
		Analyzer:       app.Service,
		Enqueuer:       enqueuer,
		Isolator:       app.Isolator,
		Defaults:       app.Defaults,
		MaxUploadBytes: configs.MAX_UPLOAD_BYTES,
		UploadDir:      configs.UPLOAD_DIR,
	})
	router := api.NewRouter(handler, configs.ALLOWED_ORIGINS)

	// Step 4: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:           ":" + configs.PORT,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   3 * time.Minute, // Allow up to 3 minutes for the full engine matrix
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Infof("Starting server on :%s", configs.PORT)
		log.Info("  POST /api/v1/analyze-swing")
		log.Info("  GET  /api/v1/runs?user_id=")
		log.Info("  GET  /api/v1/runs/:id")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	if err := app.Close(ctx); err != nil {
		log.Errorf("Failed to release clients: %v", err)
	}

	log.Info("Server exited")
}
