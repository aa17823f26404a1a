package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"fitness-league/internal/model"
	"fitness-league/internal/pkg/clock"
	"fitness-league/internal/repository"
)

// MissionService enrolls users in missions, credits activities to their
// attempts and closes missions once they end.
type MissionService struct {
	missions MissionStore
	users    UserStore
	badges   BadgeEvaluator
	enq      Enqueuer
	notifier Notifier
	clock    clock.Clock
	// timezone is where a mission's end day is judged to have passed.
	timezone string
}

// NewMissionService creates a new MissionService instance. timezone is the
// zone in which FinalizeDue decides that a mission's end day is over.
func NewMissionService(
	missions MissionStore,
	users UserStore,
	badges BadgeEvaluator,
	enq Enqueuer,
	notifier Notifier,
	clk clock.Clock,
	timezone string,
) *MissionService {
	return &MissionService{
		missions: missions,
		users:    users,
		badges:   badges,
		enq:      enq,
		notifier: notifier,
		clock:    clk,
		timezone: timezone,
	}
}

// Increment is how much an activity contributes to a mission of goalType:
// kilometers for DISTANCE, one for FREQUENCY and minutes of moving time for
// DURATION.
func Increment(goalType model.MissionGoalType, a *model.Activity) float64 {
	switch goalType {
	case model.GoalDistance:
		return a.Distance / 1000
	case model.GoalFrequency:
		return 1
	case model.GoalDuration:
		return float64(a.MovingTime) / 60
	}
	return 0
}

// SportMatches reports whether an activity of sportType counts toward a
// mission restricted to missionSport. The match is a case-insensitive
// substring test, so an empty mission sport or an empty activity sport
// matches everything.
func SportMatches(missionSport, sportType string) bool {
	return strings.Contains(strings.ToLower(missionSport), strings.ToLower(sportType))
}

// Signup enrolls a user in a mission. The attempt window runs from the
// mission's initial day 00:00:00 to its end day 23:59:59 in timezone, which
// defaults to the user's own.
func (s *MissionService) Signup(ctx context.Context, userID, missionID, timezone string) (*model.MissionAttempt, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	mission, err := s.missions.GetByID(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if !mission.IsActive {
		return nil, ErrMissionInactive
	}

	if timezone == "" {
		timezone = user.Timezone
	}
	loc, err := clock.Resolve(timezone)
	if err != nil {
		return nil, err
	}

	attempt, err := s.missions.CreateAttempt(ctx, &model.MissionAttempt{
		UserID:    user.ID,
		MissionID: mission.ID,
		Status:    model.AttemptActive,
		StartDate: clock.DayInZone(mission.InitialDay, loc, 0, 0, 0).UTC(),
		EndDate:   clock.DayInZone(mission.EndDay, loc, 23, 59, 59).UTC(),
		Timezone:  loc.String(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrAttemptExists) {
			return nil, ErrAlreadySignedUp
		}
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}

	log.Info().
		Str("user_id", user.ID).
		Str("mission_id", mission.ID).
		Str("attempt_id", attempt.ID).
		Msg("User signed up for mission")
	return attempt, nil
}

// RecordActivity credits a valid activity to every ACTIVE attempt of the user
// whose mission accepts the sport and whose window contains the activity
// start. One attempt failing does not stop the others; the errors are joined.
func (s *MissionService) RecordActivity(ctx context.Context, user *model.User, a *model.Activity) error {
	attempts, err := s.missions.ListActiveAttempts(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to list active attempts: %w", err)
	}

	var errs []error
	for _, attempt := range attempts {
		m := attempt.Mission
		if m == nil {
			if m, err = s.missions.GetByID(ctx, attempt.MissionID); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if !SportMatches(m.SportType, a.SportType) || !attempt.Covers(a.StartDate) {
			continue
		}

		delta := Increment(m.GoalType, a)
		if delta <= 0 {
			continue
		}

		res, err := s.missions.ApplyProgress(ctx, attempt.ID, a.ID, delta)
		if err != nil {
			errs = append(errs, fmt.Errorf("attempt %s: %w", attempt.ID, err))
			continue
		}
		if !res.Applied {
			continue
		}

		log.Debug().
			Str("attempt_id", attempt.ID).
			Float64("delta", delta).
			Float64("progress", res.Progress).
			Msg("Mission progress applied")

		if res.Achieved {
			s.onAchieved(ctx, user, m)
		}
	}
	return errors.Join(errs...)
}

func (s *MissionService) onAchieved(ctx context.Context, user *model.User, m *model.Mission) {
	log.Info().Str("user_id", user.ID).Str("mission_id", m.ID).Msg("Mission achieved")

	if s.badges != nil && s.enq != nil {
		s.enq.Enqueue("badges.mission", func(ctx context.Context) error {
			return s.badges.EvaluateMission(ctx, user, m.ID)
		})
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, user, model.ImportanceNormal, model.NotifyMissionAchieved,
			fmt.Sprintf("You have completed the mission %s.", m.Name),
			"Mission Achieved")
	}
}

// Finalize deactivates a mission and settles its ACTIVE attempts as ACHIEVED
// or NOT_ACHIEVED. Finalizing an already finalized mission changes nothing.
func (s *MissionService) Finalize(ctx context.Context, missionID string) (*model.FinalizeResult, error) {
	res, err := s.missions.Finalize(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if !res.Deactivated {
		log.Debug().Str("mission_id", missionID).Msg("Mission already finalized")
		return res, nil
	}

	achieved := 0
	for _, fa := range res.Attempts {
		if fa.Status != model.AttemptAchieved {
			continue
		}
		achieved++
		s.enqueueMissionBadge(fa.UserID, missionID)
	}

	log.Info().
		Str("mission_id", missionID).
		Int("attempts", len(res.Attempts)).
		Int("achieved", achieved).
		Msg("Mission finalized")
	return res, nil
}

func (s *MissionService) enqueueMissionBadge(userID, missionID string) {
	if s.badges == nil || s.enq == nil {
		return
	}
	s.enq.Enqueue("badges.mission", func(ctx context.Context) error {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		return s.badges.EvaluateMission(ctx, user, missionID)
	})
}

// FinalizeDue finalizes every active mission whose end day is before today
// in the service timezone. It returns how many missions were closed.
func (s *MissionService) FinalizeDue(ctx context.Context) (int, error) {
	loc, err := clock.Resolve(s.timezone)
	if err != nil {
		return 0, err
	}
	today := clock.StartOfDay(s.clock.Now(), loc)
	civil := today.In(loc)

	due, err := s.missions.ListDue(ctx, civil)
	if err != nil {
		return 0, fmt.Errorf("failed to list due missions: %w", err)
	}

	closed := 0
	var errs []error
	for _, m := range due {
		res, err := s.Finalize(ctx, m.ID)
		if err != nil {
			log.Error().Err(err).Str("mission_id", m.ID).Msg("Failed to finalize mission")
			errs = append(errs, err)
			continue
		}
		if res.Deactivated {
			closed++
		}
	}
	if closed == 0 && len(errs) == 0 {
		log.Info().Msg("No missions to finalize today")
	}
	return closed, errors.Join(errs...)
}
