package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/database"
	"github.com/stemsi/exam-portal/internal/handler"
	"github.com/stemsi/exam-portal/internal/i18n"
	"github.com/stemsi/exam-portal/internal/logger"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stemsi/exam-portal/internal/router"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/session"
	"github.com/stemsi/exam-portal/internal/validator"
	"github.com/stemsi/exam-portal/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting exam portal")

	// ─── Initialize Validator & Translations ───────────────────────────
	validator.Setup()
	if err := i18n.Init(cfg.DefaultLang); err != nil {
		log.Fatal().Err(err).Str("lang", cfg.DefaultLang).Msg("Failed to load translations")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	leaderboardRepo := repository.NewLeaderboardRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)
	scratchRepo := repository.NewScratchRepository(rdb, cfg.ScratchTTL)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo)
	gateway := service.NewExamGateway(examRepo, submissionRepo, rdb, cfg.ExamCacheTTL, log)
	examService := service.NewExamService(examRepo, gateway, log)
	sessionService := service.NewExamSessionService(
		cfg,
		gateway,
		examRepo,
		submissionRepo,
		leaderboardRepo,
		scratchRepo,
		service.NewRedisEventBus(rdb),
		session.NewRealClock(),
		log,
	)
	monitorService := service.NewMonitorService(monitorRepo)
	mediaService := service.NewMediaService(cfg, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		StudentPortal: handler.NewStudentPortalHandler(sessionService, log),
		WS:            handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Exam:          handler.NewExamHandler(examService, log),
		Media:         handler.NewMediaHandler(mediaService, log),
		Monitor:       handler.NewMonitorHandler(rdb, examService, monitorService, log),
		System:        handler.NewSystemHandler(rdb, sessionService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	for _, w := range []interface{ Start(context.Context) }{
		worker.NewAutosaveWorker(pool, rdb, log),
		worker.NewViolationWorker(pool, rdb, log),
		worker.NewLeaderboardWorker(pool, rdb, log),
	} {
		workers.Add(1)
		go func() {
			defer workers.Done()
			w.Start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked WebSockets
	// are not tracked by Shutdown; their sessions are stopped next.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop live sessions without submitting; the next process resumes them
	// from their start records.
	sessionService.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Workers did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
