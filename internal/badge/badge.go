// Package badge evaluates and awards badges. Each badge type has one
// Evaluator registered in a Registry; the Engine applies the checks shared by
// every type before asking the evaluator whether the criteria are met.
package badge

import (
	"context"
	"errors"
	"time"

	"fitness-league/internal/model"
)

// Badge engine errors.
var (
	ErrAlreadyAwarded = errors.New("badge already awarded")
	ErrNoEvaluator    = errors.New("no evaluator registered for badge type")
)

// Store is the badge persistence the engine needs.
type Store interface {
	ListForActivity(ctx context.Context, types []model.BadgeType, sportType string) ([]*model.Badge, error)
	ListByMission(ctx context.Context, missionID string) ([]*model.Badge, error)
	ListByLeague(ctx context.Context, leagueID string) ([]*model.Badge, error)
	HasBadge(ctx context.Context, userID, badgeID string) (bool, error)
	HeldBadgeIDs(ctx context.Context, userID string, badgeIDs []string) ([]string, error)
	Award(ctx context.Context, userID, badgeID string) (*model.UserBadge, error)
}

// ActivitySource lists the valid activities a user performed in a range.
// A nil sportTypes matches every sport.
type ActivitySource interface {
	ListValidInRange(ctx context.Context, userID string, from, until time.Time, sportTypes []string) ([]*model.Activity, error)
}

// AttemptSource answers mission attempt questions.
type AttemptSource interface {
	HasAchievedAttempt(ctx context.Context, userID, missionID string) (bool, error)
}

// Notifier delivers a notification to a user without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, user *model.User, importance int, typ model.NotificationType, message, title string)
}

// Input is what an evaluator looks at.
type Input struct {
	User  *model.User
	Badge *model.Badge
	Now   time.Time
	// Loc is the user's timezone.
	Loc *time.Location
}

// Progress is how far a user is from a badge. Units depend on the badge type:
// meters for DISTANCE, minutes for TIME, consecutive weeks for DISCIPLINE and
// zero or one for MISSION and RANKING.
type Progress struct {
	Current  float64
	Required float64
	Met      bool
}

// Evaluator measures a user's progress toward badges of one type.
type Evaluator interface {
	Type() model.BadgeType
	Progress(ctx context.Context, in Input) (Progress, error)
}
