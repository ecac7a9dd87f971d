package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dubforge/internal/asr"
	"github.com/dubforge/internal/config"
	"github.com/dubforge/internal/fileops"
	"github.com/dubforge/internal/handler"
	"github.com/dubforge/internal/media"
	"github.com/dubforge/internal/pipeline"
	"github.com/dubforge/internal/queue"
	"github.com/dubforge/internal/translate"
	"github.com/dubforge/internal/tts"
	"github.com/dubforge/internal/version"
	"github.com/dubforge/pkg/logger"
)

const queueName = "media-jobs"

func main() {
	// Initialize logger
	isDev := os.Getenv("ENV") != "production"
	logger.Init(isDev)
	defer logger.Sync()

	version.PrintBanner(nil)

	// Load configuration
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatalf("❌ Config error: %v", err)
	}

	if err := fileops.EnsureDir(cfg.UploadDir); err != nil {
		logger.Fatalf("❌ Upload dir error: %v", err)
	}

	// Provider factories
	asrProvider, err := asr.New(cfg.ASR)
	if err != nil {
		logger.Fatalf("❌ ASR provider: %v", err)
	}
	transProvider, err := translate.New(cfg.Translate)
	if err != nil {
		logger.Fatalf("❌ Translate provider: %v", err)
	}
	ttsProvider, err := tts.New(cfg.TTS)
	if err != nil {
		logger.Fatalf("❌ TTS provider: %v", err)
	}

	engine := pipeline.New(cfg, media.NewFFmpeg(), asrProvider, transProvider, ttsProvider)

	// Queue + worker
	rdb, err := queue.Connect(context.Background(), cfg.RedisURL)
	if err != nil {
		logger.Fatalf("❌ Redis error: %v", err)
	}
	defer rdb.Close()

	jobQueue := queue.New(rdb, queueName)
	jobQueue.Register(queue.JobProcessVideo, func(ctx context.Context, job *queue.Job, progress func(int)) (any, error) {
		var req pipeline.Request
		if err := json.Unmarshal(job.Data, &req); err != nil {
			return nil, fmt.Errorf("decode job data: %w", err)
		}
		return engine.Run(ctx, req, progress)
	})
	jobQueue.Start()
	defer jobQueue.Stop()

	// HTTP server
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	h := handler.New(jobQueue, cfg.UploadDir)
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Print startup info
	logger.Info("")
	logger.Infof("🎤 ASR: %s (timestamps=%v)", cfg.ASR.Provider, cfg.ASR.Timestamps)
	logger.Infof("🌐 Translate: %s → %s", cfg.Translate.Provider, cfg.Translate.Target)
	logger.Infof("🗣️  TTS: %s (%s)", cfg.TTS.Provider, cfg.TTS.Language)
	logger.Infof("🎛️  Merge: %s (burn=%v, enhance=%v)", cfg.Merge.Mode, cfg.Merge.BurnSubtitles, cfg.Merge.Enhance)
	logger.Infof("📂 Uploads: %s", cfg.UploadDir)
	logger.Info("")
	logger.Infof("🌐 API server: http://localhost:%d", cfg.Server.Port)
	logger.Infof("   POST /upload          - Submit a dubbing job")
	logger.Infof("   GET  /job/:id         - Job state and artifacts")
	logger.Infof("   GET  /download/:name  - Fetch an artifact")
	logger.Info("")
	logger.Info("────────────────────────────────────────────────────────────────")
	logger.Info("✅  Ready! Waiting for uploads...")
	logger.Info("────────────────────────────────────────────────────────────────")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("")
	logger.Info("🛑 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("❌ Shutdown error: %v", err)
	}

	logger.Info("👋 Goodbye!")
}

// requestLogger returns a gin middleware for logging HTTP requests
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		if path != "/health" || status >= 400 {
			latency := time.Since(start)
			logger.Debugf("HTTP %s %s → %d (%v)", c.Request.Method, path, status, latency)
		}
	}
}
