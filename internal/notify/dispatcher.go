package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"fitness-league/internal/model"
	"fitness-league/internal/pkg/clock"
	"fitness-league/internal/queue"
)

// Enqueuer accepts fire-and-forget work.
type Enqueuer interface {
	Enqueue(name string, fn queue.TaskFunc) bool
}

// Dispatcher turns notification intents into queued Sink deliveries.
type Dispatcher struct {
	enq   Enqueuer
	sink  *Sink
	clock clock.Clock
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(enq Enqueuer, sink *Sink, clk clock.Clock) *Dispatcher {
	return &Dispatcher{enq: enq, sink: sink, clock: clk}
}

// Notify queues a notification for user. It never blocks; a dropped
// notification is logged by the queue. A retried delivery stores the
// record once and only retries the publish.
func (d *Dispatcher) Notify(_ context.Context, user *model.User, importance int, typ model.NotificationType, message, title string) {
	now := d.clock.Now().UTC()
	local := now
	if loc, err := clock.Resolve(user.Timezone); err == nil {
		local = now.In(loc)
	} else {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("Unknown user timezone, notification stamped in UTC")
	}

	n := &model.Notification{
		UserID:          user.ID,
		Importance:      importance,
		Type:            typ,
		Title:           title,
		Message:         message,
		CreatedAt:       now,
		CreatedAtUserTZ: local.Format(time.RFC3339),
	}
	var stored *model.Notification
	d.enq.Enqueue("notify."+string(typ), func(ctx context.Context) error {
		if stored == nil {
			s, err := d.sink.Store(ctx, n)
			if err != nil {
				return err
			}
			stored = s
		}
		return d.sink.Publish(ctx, stored)
	})
}
