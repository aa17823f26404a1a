// Package service implements activity admission, scoring, missions and the
// weekly league rotation.
package service

import (
	"context"
	"time"

	"fitness-league/internal/model"
	"fitness-league/internal/queue"
)

// UserStore is the user persistence the services need.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	ListByLeague(ctx context.Context, leagueID string) ([]*model.User, error)
	UpdateWeeklyScore(ctx context.Context, userID, weekKey string, total int, setCurrent bool) error
	RotateUser(ctx context.Context, userID, leagueID, description string) (*model.RotationResult, error)
}

// ActivityStore is the activity persistence the services need.
type ActivityStore interface {
	Create(ctx context.Context, a *model.Activity) (*model.Activity, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Activity, error)
	HasOverlap(ctx context.Context, userID string, year, week int, startMs, endMs int64) (bool, error)
	SumValidPoints(ctx context.Context, userID string, year, week int) (int, error)
	ListByWeek(ctx context.Context, userID string, year, week int) ([]*model.Activity, error)
	UpdateScore(ctx context.Context, id string, points int, factor float64) error
}

// MissionStore is the mission persistence the services need.
type MissionStore interface {
	GetByID(ctx context.Context, id string) (*model.Mission, error)
	ListDue(ctx context.Context, day time.Time) ([]*model.Mission, error)
	Finalize(ctx context.Context, missionID string) (*model.FinalizeResult, error)
	CreateAttempt(ctx context.Context, a *model.MissionAttempt) (*model.MissionAttempt, error)
	FindAttempt(ctx context.Context, userID, missionID string) (*model.MissionAttempt, error)
	ListActiveAttempts(ctx context.Context, userID string) ([]*model.MissionAttempt, error)
	ApplyProgress(ctx context.Context, attemptID, activityID string, delta float64) (*model.ProgressResult, error)
}

// LeagueStore is the ladder persistence the services need.
type LeagueStore interface {
	CreateCategory(ctx context.Context, name string, order int) (*model.RankingCategory, error)
	CreateLeague(ctx context.Context, categoryID string, level int) (*model.RankingLeague, error)
	ListCategories(ctx context.Context) ([]*model.RankingCategory, error)
	ListLeagues(ctx context.Context) ([]*model.RankingLeague, error)
	GetLeague(ctx context.Context, id string) (*model.RankingLeague, error)
}

// BadgeEvaluator runs badge evaluation for the triggers the services emit.
type BadgeEvaluator interface {
	EvaluateForActivity(ctx context.Context, user *model.User, activity *model.Activity) error
	EvaluateMission(ctx context.Context, user *model.User, missionID string) error
	EvaluateRanking(ctx context.Context, user *model.User) error
}

// Notifier delivers a notification to a user without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, user *model.User, importance int, typ model.NotificationType, message, title string)
}

// Enqueuer accepts fire-and-forget work. It reports false when the task was dropped.
type Enqueuer interface {
	Enqueue(name string, fn queue.TaskFunc) bool
}
