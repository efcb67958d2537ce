package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/edugraph/edugraph-api/internal/config"
	"github.com/edugraph/edugraph-api/internal/database"
	"github.com/edugraph/edugraph-api/internal/handler"
	"github.com/edugraph/edugraph-api/internal/middleware"
	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/pipeline"
	"github.com/edugraph/edugraph-api/internal/repository"
	"github.com/edugraph/edugraph-api/internal/router"
	"github.com/edugraph/edugraph-api/internal/service"
	"github.com/edugraph/edugraph-api/pkg/codexec"
	"github.com/edugraph/edugraph-api/pkg/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Organization{},
		&models.Student{},
		&models.GradingScheme{},
		&models.Assignment{},
		&models.Block{},
		&models.Choice{},
		&models.Action{},
		&models.Submission{},
		&models.Answer{},
		&models.BlockFeedback{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, domain events disabled")
			natsConn = nil
		} else {
			defer natsConn.Drain()
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	evaluator := sandbox.NewLuaEvaluator(sandbox.Config{
		Timeout: cfg.SandboxTimeout,
		Logger:  logger,
	})

	dockerExecutor, err := codexec.NewDockerExecutor(codexec.ExecutorConfig{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to create docker executor: %v", err)
	}

	execClient := codexec.NewDockerClient(dockerExecutor, logger, codexec.ClientConfig{
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: cfg.CodeRunMemoryMB,
		CPUShares:     cfg.CodeRunCPUShares,
	})

	actionCache := pipeline.NewRedisCache(redisClient, cfg.ActionCacheTTL, logger)
	runner := pipeline.NewRunner(execClient, evaluator, actionCache, logger, pipeline.RunnerConfig{
		WebhookTimeout: cfg.WebhookTimeout,
	})
	pipelineExecutor := pipeline.NewExecutor(runner, logger)

	events := service.NewNATSDispatcher(natsConn, cfg.EventSubject, logger)

	assignmentRepo := repository.NewAssignmentRepository(db)
	blockRepo := repository.NewBlockRepository(db)
	actionRepo := repository.NewActionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	schemeRepo := repository.NewGradingSchemeRepository(db)

	gradingService := service.NewGradingService(schemeRepo, evaluator, logger)
	recomputeService := service.NewRecomputeService(assignmentRepo, submissionRepo, gradingService, events, cfg.RecomputeWorkers, logger)
	feedbackService := service.NewFeedbackService(assignmentRepo, blockRepo, submissionRepo, pipelineExecutor, gradingService, events, validate, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, blockRepo, actionRepo, recomputeService, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, logger)
	schemeService := service.NewGradingSchemeService(schemeRepo, evaluator, validate, logger)

	assignmentHandler := handler.NewAssignmentHandler(assignmentService, logger)
	feedbackHandler := handler.NewFeedbackHandler(feedbackService, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, feedbackService, recomputeService, logger)
	schemeHandler := handler.NewGradingSchemeHandler(schemeService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler:    assignmentHandler,
		FeedbackHandler:      feedbackHandler,
		SubmissionHandler:    submissionHandler,
		GradingSchemeHandler: schemeHandler,
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
