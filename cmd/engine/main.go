// Package main is the entry point for the fitness league engine.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fitness-league/internal/badge"
	"fitness-league/internal/config"
	"fitness-league/internal/ingest"
	"fitness-league/internal/notify"
	"fitness-league/internal/pkg/clock"
	"fitness-league/internal/pkg/db"
	"fitness-league/internal/pkg/lock"
	"fitness-league/internal/queue"
	"fitness-league/internal/repository"
	"fitness-league/internal/scheduler"
	"fitness-league/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	activityRepo := repository.NewActivityRepository(dbPool.Pool)
	badgeRepo := repository.NewBadgeRepository(dbPool.Pool)
	missionRepo := repository.NewMissionRepository(dbPool.Pool)
	leagueRepo := repository.NewLeagueRepository(dbPool.Pool)
	notificationRepo := repository.NewNotificationRepository(dbPool.Pool)

	clk := clock.System{}
	locks := lock.NewKeyedLock()

	// Side effects run on the queue; it is drained before the pool closes.
	q := queue.New(queue.Config{
		Workers:     cfg.Queue.Workers,
		Buffer:      cfg.Queue.Buffer,
		MaxAttempts: cfg.Queue.MaxAttempts,
		Backoff:     cfg.Queue.Backoff,
	})
	q.Start(context.WithoutCancel(ctx))

	var publisher notify.Publisher
	if cfg.Kafka.Enabled && cfg.Kafka.NotificationTopic != "" {
		publisher = notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)
	}
	notifier := notify.NewDispatcher(q, notify.NewSink(notificationRepo, publisher), clk)

	badges := badge.NewEngine(badgeRepo, activityRepo, missionRepo, notifier, clk)
	log.Info().
		Int("evaluator_count", badges.Registry().Count()).
		Msg("Badge evaluators registered")

	scoring := service.NewScoringService(activityRepo, userRepo, clk)
	missions := service.NewMissionService(missionRepo, userRepo, badges, q, notifier, clk, cfg.Missions.Timezone)
	admission := service.NewAdmissionService(activityRepo, userRepo, scoring, missions, badges, q, notifier, locks, clk,
		service.AdmissionConfig{
			MinHeartRate: cfg.Admission.MinHeartRate,
			LockTimeout:  cfg.Admission.LockTimeout,
		})
	leagues := service.NewLeagueService(userRepo, leagueRepo, badges, q, notifier, service.LeagueConfig{
		PromoteCount:  cfg.League.PromoteCount,
		RelegateCount: cfg.League.RelegateCount,
	})

	if err := ensureLadder(ctx, leagues, cfg.League.Categories); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare ranking ladder")
	}

	var wg sync.WaitGroup

	if err := startJobs(ctx, &wg, cfg, locks, clk, missions, leagues); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule jobs")
	}

	var consumer *ingest.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = ingest.NewConsumer(ingest.Config{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.ActivityTopic,
			GroupID:     cfg.Kafka.GroupID,
			PollTimeout: cfg.Kafka.PollTimeout,
			Attempts:    cfg.Kafka.HandleAttempts,
		}, admission)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create activity consumer")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("topic", cfg.Kafka.ActivityTopic).Msg("Activity consumer is starting...")
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Activity consumer stopped")
			}
		}()
	} else {
		log.Warn().Msg("Kafka disabled, activities will not be ingested")
	}

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close activity consumer")
		}
	}
	wg.Wait()

	q.Close()
	stats := q.Stats()
	log.Info().
		Int64("succeeded", stats.Succeeded).
		Int64("failed", stats.Failed).
		Int64("dropped", stats.Dropped).
		Msg("Side-effect queue drained")

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close notification publisher")
		}
	}
	log.Info().Msg("Engine stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// ensureLadder seeds the ladder on first start.
func ensureLadder(ctx context.Context, leagues *service.LeagueService, categories []string) error {
	ladder, err := leagues.LoadLadder(ctx)
	if errors.Is(err, service.ErrEmptyLadder) {
		ladder, err = leagues.SeedLadder(ctx, categories)
	}
	if err != nil {
		return err
	}
	log.Info().
		Int("leagues", ladder.Len()).
		Str("bottom_league", ladder.Bottom().ID).
		Msg("Ranking ladder ready")
	return nil
}

func startJobs(
	ctx context.Context,
	wg *sync.WaitGroup,
	cfg *config.Config,
	locks *lock.KeyedLock,
	clk clock.Clock,
	missions *service.MissionService,
	leagues *service.LeagueService,
) error {
	missionLoc, err := clock.Resolve(cfg.Missions.Timezone)
	if err != nil {
		return err
	}
	leagueLoc, err := clock.Resolve(cfg.League.Timezone)
	if err != nil {
		return err
	}
	weekday, err := cfg.League.Weekday()
	if err != nil {
		return err
	}
	hour, minute, second, err := cfg.League.Clock()
	if err != nil {
		return err
	}

	finalize := scheduler.NewJob("missions.finalize", locks, func(ctx context.Context) error {
		n, err := missions.FinalizeDue(ctx)
		if n > 0 {
			log.Info().Int("missions", n).Msg("Due missions finalized")
		}
		return err
	})
	rotate := scheduler.NewJob("league.rotate", locks, func(ctx context.Context) error {
		_, err := leagues.Rotate(ctx)
		return err
	})

	jobs := []struct {
		job   *scheduler.Job
		sched scheduler.Schedule
	}{
		{finalize, scheduler.Daily{Hour: cfg.Missions.FinalizeHour, Minute: cfg.Missions.FinalizeMinute, Loc: missionLoc}},
		{rotate, scheduler.Weekly{Weekday: weekday, Hour: hour, Minute: minute, Second: second, Loc: leagueLoc}},
	}
	for _, j := range jobs {
		j := j
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx, j.job, j.sched, clk)
		}()
	}
	return nil
}
