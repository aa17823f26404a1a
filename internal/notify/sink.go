// Package notify persists notifications and publishes them for delivery.
// Delivery runs on the side-effect queue, so a failing transport never
// fails the operation that produced the notification.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"fitness-league/internal/model"
)

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *model.Notification) (*model.Notification, error)
}

// Sink stores a notification and then publishes it. The publisher is optional.
type Sink struct {
	store Store
	pub   Publisher
}

// NewSink creates a sink. pub may be nil when no transport is configured.
func NewSink(store Store, pub Publisher) *Sink {
	return &Sink{store: store, pub: pub}
}

// Send persists n and publishes the stored record.
func (s *Sink) Send(ctx context.Context, n *model.Notification) error {
	stored, err := s.Store(ctx, n)
	if err != nil {
		return err
	}
	return s.Publish(ctx, stored)
}

// Store persists n.
func (s *Sink) Store(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	stored, err := s.store.Create(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}
	return stored, nil
}

// Publish sends a stored notification as JSON keyed by user id. It is a
// no-op without a publisher.
func (s *Sink) Publish(ctx context.Context, n *model.Notification) error {
	if s.pub == nil {
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := s.pub.Publish(ctx, n.UserID, payload); err != nil {
		return err
	}

	log.Debug().
		Str("notification_id", n.ID).
		Str("user_id", n.UserID).
		Str("type", string(n.Type)).
		Msg("Notification published")
	return nil
}
