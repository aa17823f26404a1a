package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"fitness-league/internal/model"
	"fitness-league/internal/repository"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func marchMission(goal model.MissionGoalType, value float64) *model.Mission {
	return &model.Mission{
		Name: "March Challenge", SportType: "Run", GoalType: goal, GoalValue: value, IsActive: true,
		InitialDay: date(2024, 3, 1), EndDay: date(2024, 3, 31),
	}
}

func TestIncrement(t *testing.T) {
	a := &model.Activity{Distance: 10500, MovingTime: 2700}
	assert.Equal(t, 10.5, Increment(model.GoalDistance, a))
	assert.Equal(t, 1.0, Increment(model.GoalFrequency, a))
	assert.Equal(t, 45.0, Increment(model.GoalDuration, a))
	assert.Equal(t, 0.0, Increment("STEPS", a))
}

func TestSportMatches(t *testing.T) {
	tests := []struct {
		mission, sport string
		want           bool
	}{
		{"", "Ride", true},
		{"Run", "Run", true},
		{"run", "Run", true},
		{"TrailRun", "Run", true},
		{"Run", "TrailRun", false},
		{"Run", "Ride", false},
		{"Run", "", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q/%q", tt.mission, tt.sport), func(t *testing.T) {
			assert.Equal(t, tt.want, SportMatches(tt.mission, tt.sport))
		})
	}
}

func TestSignup(t *testing.T) {
	f := newFixture(monday)
	u := f.store.addUser(&model.User{Timezone: bogota, IsActive: true})
	m := f.store.addMission(marchMission(model.GoalDistance, 50))
	ctx := context.Background()

	attempt, err := f.missions.Signup(ctx, u.ID, m.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptActive, attempt.Status)
	assert.Equal(t, 0.0, attempt.Progress)
	assert.Equal(t, "America/Bogota", attempt.Timezone)
	assert.Equal(t, time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC), attempt.StartDate)
	assert.Equal(t, time.Date(2024, 4, 1, 4, 59, 59, 0, time.UTC), attempt.EndDate)

	_, err = f.missions.Signup(ctx, u.ID, m.ID, "")
	assert.ErrorIs(t, err, ErrAlreadySignedUp)

	// An explicit timezone overrides the user's.
	other := f.store.addMission(marchMission(model.GoalFrequency, 5))
	attempt, err = f.missions.Signup(ctx, u.ID, other.ID, "UTC")
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 1), attempt.StartDate)
}

func TestSignup_Errors(t *testing.T) {
	f := newFixture(monday)
	active := f.store.addUser(&model.User{Timezone: bogota, IsActive: true})
	inactive := f.store.addUser(&model.User{Timezone: bogota})
	open := f.store.addMission(marchMission(model.GoalDistance, 50))
	closed := marchMission(model.GoalDistance, 50)
	closed.IsActive = false
	f.store.addMission(closed)
	ctx := context.Background()

	_, err := f.missions.Signup(ctx, inactive.ID, open.ID, "")
	assert.ErrorIs(t, err, ErrUserInactive)
	_, err = f.missions.Signup(ctx, active.ID, closed.ID, "")
	assert.ErrorIs(t, err, ErrMissionInactive)
	_, err = f.missions.Signup(ctx, active.ID, "nope", "")
	assert.ErrorIs(t, err, repository.ErrMissionNotFound)
	_, err = f.missions.Signup(ctx, "nope", open.ID, "")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func creditRun(t *testing.T, f *fixture, u *model.User, id string, start time.Time, meters float64) *model.Activity {
	t.Helper()
	a, err := f.store.Create(context.Background(), &model.Activity{
		ExternalID: id, UserID: u.ID, SportType: "Run", StartDate: start, Distance: meters, MovingTime: 1800, IsValid: true,
	})
	require.NoError(t, err)
	require.NoError(t, f.missions.RecordActivity(context.Background(), u, a))
	return a
}

func TestRecordActivity_Achieves(t *testing.T) {
	f := newFixture(monday)
	u := f.store.addUser(&model.User{Timezone: bogota, IsActive: true})
	m := f.store.addMission(marchMission(model.GoalDistance, 50))
	attempt, err := f.missions.Signup(context.Background(), u.ID, m.ID, "")
	require.NoError(t, err)

	creditRun(t, f, u, "a1", date(2024, 3, 10).Add(12*time.Hour), 48000)
	assert.Equal(t, 48.0, f.store.attempt(attempt.ID).Progress)
	assert.Empty(t, f.notes.ofType(model.NotifyMissionAchieved))

	last := creditRun(t, f, u, "a2", date(2024, 3, 12).Add(12*time.Hour), 3000)
	got := f.store.attempt(attempt.ID)
	assert.Equal(t, 51.0, got.Progress)
	assert.Equal(t, model.AttemptAchieved, got.Status)

	notes := f.notes.ofType(model.NotifyMissionAchieved)
	require.Len(t, notes, 1)
	assert.Equal(t, "You have completed the mission March Challenge.", notes[0].Message)
	assert.Equal(t, []string{u.ID + "|" + m.ID}, f.badges.missions)

	// Replaying an activity, or crediting after achievement, changes nothing.
	require.NoError(t, f.missions.RecordActivity(context.Background(), u, last))
	creditRun(t, f, u, "a3", date(2024, 3, 13).Add(12*time.Hour), 5000)
	assert.Equal(t, 51.0, f.store.attempt(attempt.ID).Progress)
	assert.Len(t, f.notes.ofType(model.NotifyMissionAchieved), 1)
}

func TestRecordActivity_Filters(t *testing.T) {
	f := newFixture(monday)
	u := f.store.addUser(&model.User{Timezone: bogota, IsActive: true})
	m := f.store.addMission(marchMission(model.GoalDistance, 50))
	attempt, err := f.missions.Signup(context.Background(), u.ID, m.ID, "")
	require.NoError(t, err)
	ctx := context.Background()

	ride, err := f.store.Create(ctx, &model.Activity{ExternalID: "ride", UserID: u.ID, SportType: "Ride", StartDate: date(2024, 3, 10), Distance: 40000, IsValid: true})
	require.NoError(t, err)
	require.NoError(t, f.missions.RecordActivity(ctx, u, ride))

	// 2024-03-01 04:00 UTC is still February in Bogota.
	creditRun(t, f, u, "early", time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC), 10000)
	creditRun(t, f, u, "late", time.Date(2024, 4, 1, 5, 0, 0, 0, time.UTC), 10000)
	creditRun(t, f, u, "zero", date(2024, 3, 10), 0)
	assert.Equal(t, 0.0, f.store.attempt(attempt.ID).Progress)

	creditRun(t, f, u, "first", time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC), 10000)
	assert.Equal(t, 10.0, f.store.attempt(attempt.ID).Progress)

	// A source that reports no sport type still counts.
	untyped, err := f.store.Create(ctx, &model.Activity{ExternalID: "untyped", UserID: u.ID, StartDate: date(2024, 3, 12), Distance: 5000, IsValid: true})
	require.NoError(t, err)
	require.NoError(t, f.missions.RecordActivity(ctx, u, untyped))
	assert.Equal(t, 15.0, f.store.attempt(attempt.ID).Progress)
}

func TestRecordActivity_ProgressMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(monday)
		u := f.store.addUser(&model.User{Timezone: bogota, IsActive: true})
		goal := rapid.Float64Range(1, 100).Draw(t, "goal")
		m := f.store.addMission(marchMission(model.GoalDistance, goal))
		attempt, err := f.missions.Signup(context.Background(), u.ID, m.ID, "")
		if err != nil {
			t.Fatal(err)
		}

		var acts []*model.Activity
		sum, prev := 0.0, 0.0
		n := rapid.IntRange(1, 15).Draw(t, "n")
		for i := 0; i < n; i++ {
			var a *model.Activity
			if len(acts) > 0 && rapid.Bool().Draw(t, "replay") {
				a = acts[rapid.IntRange(0, len(acts)-1).Draw(t, "which")]
			} else {
				meters := rapid.Float64Range(0, 30000).Draw(t, "meters")
				a, err = f.store.Create(context.Background(), &model.Activity{
					ExternalID: fmt.Sprint(i), UserID: u.ID, SportType: "Run", StartDate: date(2024, 3, 10), Distance: meters, IsValid: true,
				})
				if err != nil {
					t.Fatal(err)
				}
				acts = append(acts, a)
				if sum < goal {
					sum += meters / 1000
				}
			}
			if err := f.missions.RecordActivity(context.Background(), u, a); err != nil {
				t.Fatal(err)
			}

			got := f.store.attempt(attempt.ID)
			if got.Progress < prev {
				t.Fatalf("progress decreased from %v to %v", prev, got.Progress)
			}
			prev = got.Progress
			if (got.Status == model.AttemptAchieved) != (got.Progress >= goal) {
				t.Fatalf("status %s with progress %v of %v", got.Status, got.Progress, goal)
			}
		}
		if d := prev - sum; d > 1e-9 || d < -1e-9 {
			t.Fatalf("progress %v, want %v", prev, sum)
		}
	})
}

func TestFinalize(t *testing.T) {
	f := newFixture(monday)
	done := f.store.addUser(&model.User{Timezone: bogota, IsActive: true})
	short := f.store.addUser(&model.User{Timezone: bogota, IsActive: true})
	m := f.store.addMission(marchMission(model.GoalDistance, 20))
	ctx := context.Background()

	a1, err := f.missions.Signup(ctx, done.ID, m.ID, "")
	require.NoError(t, err)
	a2, err := f.missions.Signup(ctx, short.ID, m.ID, "")
	require.NoError(t, err)
	creditRun(t, f, done, "d", date(2024, 3, 10).Add(12*time.Hour), 25000)
	creditRun(t, f, short, "s", date(2024, 3, 10).Add(12*time.Hour), 5000)

	res, err := f.missions.Finalize(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, res.Deactivated)
	require.Len(t, res.Attempts, 1, "achieved attempts are already terminal")
	assert.Equal(t, model.AttemptNotAchieved, res.Attempts[0].Status)

	assert.Equal(t, model.AttemptAchieved, f.store.attempt(a1.ID).Status)
	assert.Equal(t, model.AttemptNotAchieved, f.store.attempt(a2.ID).Status)
	assert.False(t, f.store.GetMission(m.ID).IsActive)

	again, err := f.missions.Finalize(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, again.Deactivated)
	assert.Empty(t, again.Attempts)

	_, err = f.missions.Finalize(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrMissionNotFound)
}

func TestFinalize_EvaluatesBadgesOfAchievedAttempts(t *testing.T) {
	f := newFixture(monday)
	u := f.store.addUser(&model.User{Timezone: bogota, IsActive: true})
	m := f.store.addMission(marchMission(model.GoalDistance, 20))
	ctx := context.Background()

	attempt, err := f.missions.Signup(ctx, u.ID, m.ID, "")
	require.NoError(t, err)
	// Progress landing at the goal outside RecordActivity is settled at finalization.
	f.store.mu.Lock()
	f.store.attempts[attempt.ID].Progress = 20
	f.store.mu.Unlock()

	res, err := f.missions.Finalize(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, model.AttemptAchieved, res.Attempts[0].Status)
	assert.Equal(t, []string{u.ID + "|" + m.ID}, f.badges.missions)
}

func TestFinalizeDue(t *testing.T) {
	// 2024-04-01 03:00 UTC is still March 31 in Bogota.
	f := newFixture(time.Date(2024, 4, 1, 3, 0, 0, 0, time.UTC))
	march := f.store.addMission(marchMission(model.GoalDistance, 20))
	ctx := context.Background()

	closed, err := f.missions.FinalizeDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
	assert.True(t, f.store.GetMission(march.ID).IsActive)

	f.clock.Set(time.Date(2024, 4, 1, 5, 0, 0, 0, time.UTC))
	closed, err = f.missions.FinalizeDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.False(t, f.store.GetMission(march.ID).IsActive)

	closed, err = f.missions.FinalizeDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}
