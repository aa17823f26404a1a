package badge

import (
	"context"
	"fmt"
	"time"

	"fitness-league/internal/model"
	"fitness-league/internal/pkg/clock"
)

// criteriaOf returns the badge criteria as C, the zero C when unset.
func criteriaOf[C model.Criteria](b *model.Badge) (C, error) {
	var zero C
	if b.Criteria == nil {
		return zero, nil
	}
	c, ok := b.Criteria.(C)
	if !ok {
		return zero, fmt.Errorf("%w: badge %s", model.ErrCriteriaMismatch, b.ID)
	}
	return c, nil
}

// window is the badge availability period in the user's timezone: the start
// of AvailableFrom through the end of AvailableUntil. An unset bound is open.
func window(b *model.Badge, loc *time.Location) (from, until time.Time) {
	from = time.Unix(0, 0).UTC()
	if !b.AvailableFrom.IsZero() {
		from = clock.DayInZone(b.AvailableFrom, loc, 0, 0, 0)
	}
	until = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	if !b.AvailableUntil.IsZero() {
		until = clock.EndOfDay(clock.DayInZone(b.AvailableUntil, loc, 0, 0, 0), loc)
	}
	return from, until
}

// DistanceEvaluator sums the meters of valid activities in the badge window.
type DistanceEvaluator struct {
	activities ActivitySource
}

// NewDistanceEvaluator creates a DISTANCE evaluator.
func NewDistanceEvaluator(activities ActivitySource) *DistanceEvaluator {
	return &DistanceEvaluator{activities: activities}
}

func (e *DistanceEvaluator) Type() model.BadgeType { return model.BadgeDistance }

func (e *DistanceEvaluator) Progress(ctx context.Context, in Input) (Progress, error) {
	c, err := criteriaOf[model.DistanceCriteria](in.Badge)
	if err != nil {
		return Progress{}, err
	}
	from, until := window(in.Badge, in.Loc)
	acts, err := e.activities.ListValidInRange(ctx, in.User.ID, from, until, in.Badge.SportFilter())
	if err != nil {
		return Progress{}, err
	}

	total := 0.0
	for _, a := range acts {
		total += a.Distance
	}
	return Progress{Current: total, Required: c.MinMetersDistance, Met: total >= c.MinMetersDistance}, nil
}

// TimeEvaluator sums the elapsed minutes of valid activities in the badge window.
type TimeEvaluator struct {
	activities ActivitySource
}

// NewTimeEvaluator creates a TIME evaluator.
func NewTimeEvaluator(activities ActivitySource) *TimeEvaluator {
	return &TimeEvaluator{activities: activities}
}

func (e *TimeEvaluator) Type() model.BadgeType { return model.BadgeTime }

func (e *TimeEvaluator) Progress(ctx context.Context, in Input) (Progress, error) {
	c, err := criteriaOf[model.TimeCriteria](in.Badge)
	if err != nil {
		return Progress{}, err
	}
	from, until := window(in.Badge, in.Loc)
	acts, err := e.activities.ListValidInRange(ctx, in.User.ID, from, until, in.Badge.SportFilter())
	if err != nil {
		return Progress{}, err
	}

	minutes := 0.0
	for _, a := range acts {
		minutes += float64(a.ElapsedTime) / 60
	}
	return Progress{Current: minutes, Required: c.MinMinutes, Met: minutes >= c.MinMinutes}, nil
}

// DisciplineEvaluator checks the trailing NumberOfWeeks ISO weeks, the
// running one included, for at least MinActivities valid activities each.
type DisciplineEvaluator struct {
	activities ActivitySource
}

// NewDisciplineEvaluator creates a DISCIPLINE evaluator.
func NewDisciplineEvaluator(activities ActivitySource) *DisciplineEvaluator {
	return &DisciplineEvaluator{activities: activities}
}

func (e *DisciplineEvaluator) Type() model.BadgeType { return model.BadgeDiscipline }

func (e *DisciplineEvaluator) Progress(ctx context.Context, in Input) (Progress, error) {
	c, err := criteriaOf[model.DisciplineCriteria](in.Badge)
	if err != nil {
		return Progress{}, err
	}
	weeks := c.NumberOfWeeks
	if weeks <= 0 {
		weeks = 1
	}

	current := clock.StartOfWeek(in.Now, in.Loc)
	from := current.AddDate(0, 0, -7*(weeks-1))
	until := clock.EndOfWeek(in.Now, in.Loc)

	acts, err := e.activities.ListValidInRange(ctx, in.User.ID, from, until, in.Badge.SportFilter())
	if err != nil {
		return Progress{}, err
	}

	counts := WeeklyCounts(acts, from, weeks, in.Loc)
	streak, met := ScanStreak(counts, c.MinActivities, weeks)
	return Progress{Current: float64(streak), Required: float64(weeks), Met: met}, nil
}

// WeeklyCounts buckets activities into weeks consecutive ISO weeks starting
// at the Monday from. Activities outside the range are ignored.
func WeeklyCounts(acts []*model.Activity, from time.Time, weeks int, loc *time.Location) []int {
	counts := make([]int, weeks)
	starts := make([]time.Time, weeks+1)
	for i := range starts {
		starts[i] = from.AddDate(0, 0, 7*i)
	}
	for _, a := range acts {
		t := a.StartDate.In(loc)
		for i := 0; i < weeks; i++ {
			if !t.Before(starts[i]) && t.Before(starts[i+1]) {
				counts[i]++
				break
			}
		}
	}
	return counts
}

// ScanStreak walks weekly counts in order. A week with at least minPerWeek
// activities extends the streak, any other week resets it. It returns the
// streak at the last week and whether a streak reached required.
func ScanStreak(counts []int, minPerWeek, required int) (streak int, met bool) {
	for _, n := range counts {
		if n >= minPerWeek {
			streak++
		} else {
			streak = 0
		}
		if streak >= required {
			met = true
		}
	}
	return streak, met
}

// MissionEvaluator awards when the user holds an ACHIEVED attempt of the
// referenced mission.
type MissionEvaluator struct {
	attempts AttemptSource
}

// NewMissionEvaluator creates a MISSION evaluator.
func NewMissionEvaluator(attempts AttemptSource) *MissionEvaluator {
	return &MissionEvaluator{attempts: attempts}
}

func (e *MissionEvaluator) Type() model.BadgeType { return model.BadgeMission }

func (e *MissionEvaluator) Progress(ctx context.Context, in Input) (Progress, error) {
	c, err := criteriaOf[model.MissionCriteria](in.Badge)
	if err != nil {
		return Progress{}, err
	}
	if c.MissionID == "" {
		return Progress{Required: 1}, nil
	}
	ok, err := e.attempts.HasAchievedAttempt(ctx, in.User.ID, c.MissionID)
	if err != nil {
		return Progress{}, err
	}
	return flag(ok), nil
}

// RankingEvaluator awards when the user is placed in the referenced league.
type RankingEvaluator struct{}

func (RankingEvaluator) Type() model.BadgeType { return model.BadgeRanking }

func (RankingEvaluator) Progress(_ context.Context, in Input) (Progress, error) {
	c, err := criteriaOf[model.RankingCriteria](in.Badge)
	if err != nil {
		return Progress{}, err
	}
	return flag(c.LeagueID != "" && in.User.InLeague(c.LeagueID)), nil
}

func flag(ok bool) Progress {
	p := Progress{Required: 1, Met: ok}
	if ok {
		p.Current = 1
	}
	return p
}
