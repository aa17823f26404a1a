package service

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"fitness-league/internal/model"
	"fitness-league/internal/pkg/clock"
)

// effortBins maps an upper heart-rate bound to its effort factor (a MET
// estimate). The first bin is exclusive, the others inclusive.
var effortBins = []struct {
	upTo   float64
	factor float64
}{
	{114, 1.23}, // very light, below 114
	{122, 1.84}, // light
	{144, 2.19}, // moderate
	{156, 2.6},  // vigorous
	{169, 2.94}, // hard
}

const maxEffortFactor = 3.48

// EffortFactor returns the effort factor for an average heart rate.
func EffortFactor(avgHR float64) float64 {
	if avgHR < effortBins[0].upTo {
		return effortBins[0].factor
	}
	for _, b := range effortBins[1:] {
		if avgHR <= b.upTo {
			return b.factor
		}
	}
	return maxEffortFactor
}

// CalculatePoints scores an activity: ceil(factor * avgHR * movingHours).
// A missing heart rate counts as zero.
func CalculatePoints(avgHR *float64, movingSeconds int) (int, float64, error) {
	hr := 0.0
	if avgHR != nil {
		hr = *avgHR
	}
	if hr < 0 || movingSeconds < 0 || math.IsNaN(hr) {
		return 0, 0, ErrNegativeInput
	}

	factor := EffortFactor(hr)
	hours := float64(movingSeconds) / 3600
	return int(math.Ceil(factor * hr * hours)), factor, nil
}

// ScoringService maintains the weekly score buckets of users.
type ScoringService struct {
	activities ActivityStore
	users      UserStore
	clock      clock.Clock
}

// NewScoringService creates a new ScoringService instance.
func NewScoringService(activities ActivityStore, users UserStore, clk clock.Clock) *ScoringService {
	return &ScoringService{activities: activities, users: users, clock: clk}
}

// AggregateWeek re-sums the user's valid activity points for an ISO week and
// stores the total under the week key. The current week score is written too
// when the bucket is the user's running week.
func (s *ScoringService) AggregateWeek(ctx context.Context, user *model.User, year, week int) (int, error) {
	total, err := s.activities.SumValidPoints(ctx, user.ID, year, week)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate week: %w", err)
	}

	loc, err := clock.Resolve(user.Timezone)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve user timezone: %w", err)
	}
	cy, cw := clock.WeekOf(s.clock.Now(), loc)
	current := cy == year && cw == week

	key := clock.WeekKey(year, week)
	if err := s.users.UpdateWeeklyScore(ctx, user.ID, key, total, current); err != nil {
		return 0, fmt.Errorf("failed to store weekly score: %w", err)
	}

	log.Debug().
		Str("user_id", user.ID).
		Str("week", key).
		Int("total", total).
		Bool("current", current).
		Msg("Weekly score aggregated")
	return total, nil
}

// RecalculateWeek rescores every activity of the user's ISO week from its
// stored heart rate and moving time, then re-aggregates the week.
func (s *ScoringService) RecalculateWeek(ctx context.Context, user *model.User, year, week int) (int, error) {
	activities, err := s.activities.ListByWeek(ctx, user.ID, year, week)
	if err != nil {
		return 0, fmt.Errorf("failed to load week activities: %w", err)
	}

	for _, a := range activities {
		points, factor, err := CalculatePoints(a.AverageHeartRate, a.MovingTime)
		if err != nil {
			return 0, fmt.Errorf("activity %s: %w", a.ID, err)
		}
		if points == a.Points && factor == a.EffortFactor {
			continue
		}
		if err := s.activities.UpdateScore(ctx, a.ID, points, factor); err != nil {
			return 0, fmt.Errorf("failed to rescore activity %s: %w", a.ID, err)
		}
		log.Info().
			Str("activity_id", a.ID).
			Int("old_points", a.Points).
			Int("new_points", points).
			Msg("Activity rescored")
	}

	return s.AggregateWeek(ctx, user, year, week)
}
