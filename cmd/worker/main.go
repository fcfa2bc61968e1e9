package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/juezlab/grader/internal/artifact"
	"github.com/juezlab/grader/internal/config"
	"github.com/juezlab/grader/internal/database"
	"github.com/juezlab/grader/internal/events"
	"github.com/juezlab/grader/internal/judge"
	"github.com/juezlab/grader/internal/models"
	"github.com/juezlab/grader/internal/observability"
	"github.com/juezlab/grader/internal/queue"
	"github.com/juezlab/grader/internal/repository"
	dockerexec "github.com/juezlab/grader/pkg/docker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Challenge{}, &models.TestCase{}, &models.Submission{}, &models.GradingReport{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	sandbox, err := dockerexec.NewSandbox(dockerexec.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.SandboxTimeout,
		MemoryLimitMB: cfg.SandboxMemoryMB,
		NanoCPUs:      cfg.SandboxNanoCPUs,
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to create sandbox executor: %v", err)
	}
	defer sandbox.Close()

	artifacts, err := artifact.NewFSStore(cfg.ArtifactRoot)
	if err != nil {
		log.Fatalf("failed to create artifact store: %v", err)
	}

	stager, err := judge.NewStager(cfg.FixtureRoot, cfg.KeepFixtures, logger)
	if err != nil {
		log.Fatalf("failed to create fixture stager: %v", err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer conn.Close()
		publisher = events.NewNATSPublisher(conn, logger)
	}

	// Both mounted roots share host-path translation when the worker
	// itself runs in a container over the host's Docker socket.
	codeMapper := artifact.NewPathMapper(cfg.ArtifactRoot, cfg.HostArtifactRoot)
	fixtureMapper := artifact.NewPathMapper(cfg.FixtureRoot, cfg.HostFixtureRoot)
	mapper := chainMapper{codeMapper, fixtureMapper}

	launcher := judge.NewDockerLauncher(sandbox, mapper, judge.LauncherConfig{
		Images:       cfg.RunnerImages,
		NanoCPUs:     cfg.SandboxNanoCPUs,
		StartupSlack: cfg.SandboxSlack,
	}, logger)

	worker := judge.NewWorker(judge.WorkerDeps{
		Queue:       queue.NewRedisQueue(redisClient, cfg.QueueKey),
		Submissions: repository.NewSubmissionRepository(db),
		Challenges:  repository.NewChallengeRepository(db),
		TestCases:   repository.NewTestCaseRepository(db),
		Artifacts:   artifacts,
		Stager:      stager,
		Launcher:    launcher,
		Metrics:     observability.NewGradingMetrics(),
		Publisher:   publisher,
		Backoff:     cfg.FailureBackoff,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", observability.MetricsHandler())

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start http server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker loop exited with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("worker stopped")
}

// chainMapper applies the first mapper that changes the path. The code
// and fixture roots may live under different host prefixes.
type chainMapper []artifact.PathMapper

func (c chainMapper) HostPath(workerPath string) string {
	for _, m := range c {
		if mapped := m.HostPath(workerPath); mapped != workerPath {
			return mapped
		}
	}
	return workerPath
}
