// Package ingest consumes normalized activity events from Kafka and feeds
// them to admission.
package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"fitness-league/internal/pkg/clock"
	"fitness-league/internal/repository"
	"fitness-league/internal/service"
)

// Config holds the consumer settings.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
	// Attempts is how many times a message is handed to admission before it
	// is skipped.
	Attempts int
}

// Admitter admits activity candidates.
type Admitter interface {
	AdmitActivity(ctx context.Context, c service.Candidate) (*service.AdmissionResult, error)
}

type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads activity events and admits them. Offsets are committed after
// each message is handled, including messages that could not be decoded or
// admitted, so one bad event never blocks the partition.
type Consumer struct {
	cfg    Config
	reader fetcher
	admit  Admitter
}

// NewConsumer builds a Kafka consumer group reader.
func NewConsumer(cfg Config, admit Admitter) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("activity topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(cfg, reader, admit), nil
}

func newConsumer(cfg Config, reader fetcher, admit Admitter) *Consumer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	return &Consumer{cfg: cfg, reader: reader, admit: admit}
}

// Close shuts down the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Run consumes until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	log.Info().
		Str("topic", c.cfg.Topic).
		Str("group", c.cfg.GroupID).
		Strs("brokers", c.cfg.Brokers).
		Dur("poll_timeout", c.cfg.PollTimeout).
		Msg("Activity consumer started")
	defer log.Info().Msg("Activity consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			log.Error().Err(err).Msg("Failed to fetch activity event")
			continue
		}

		c.Handle(ctx, msg)

		commitCtx, commitCancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				log.Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit activity event")
			}
		}
		commitCancel()
	}
}

// Handle decodes and admits one message. It reports whether the activity was
// admitted (valid, invalid or duplicate).
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) bool {
	cand, err := decodeEvent(msg.Value)
	if err != nil {
		log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable activity event")
		return false
	}

	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		res, err := c.admit.AdmitActivity(ctx, cand)
		if err == nil {
			log.Debug().
				Str("external_id", cand.ExternalID).
				Bool("duplicate", res.Duplicate).
				Bool("valid", res.Valid).
				Msg("Activity event handled")
			return true
		}
		if permanent(err) || ctx.Err() != nil {
			log.Warn().Err(err).Str("external_id", cand.ExternalID).Msg("Activity event rejected")
			return false
		}
		log.Warn().Err(err).
			Str("external_id", cand.ExternalID).
			Int("attempt", attempt).
			Msg("Activity admission failed")
	}

	log.Error().Str("external_id", cand.ExternalID).Int("attempts", c.cfg.Attempts).Msg("Giving up on activity event")
	return false
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, service.ErrInvalidCandidate) ||
		errors.Is(err, repository.ErrUserNotFound) ||
		errors.Is(err, clock.ErrUnknownTimezone)
}
