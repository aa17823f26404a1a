package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fitness-league/internal/model"
	"fitness-league/internal/pkg/clock"
	"fitness-league/internal/pkg/lock"
	"fitness-league/internal/repository"
)

// Candidate is a normalized activity as delivered by a source integration.
type Candidate struct {
	ExternalID       string
	UserID           string
	Name             string
	SportType        string
	AverageHeartRate *float64
	MaxHeartRate     *float64
	StartDate        time.Time
	// EndDate is derived from StartDate and ElapsedTime when zero.
	EndDate     time.Time
	Distance    float64 // meters
	ElapsedTime int     // seconds
	MovingTime  int     // seconds
}

// Checks are the individual validity flags computed for every candidate.
type Checks struct {
	SameWeek     bool
	EnoughEffort bool
	Overlapping  bool
}

// AdmissionResult is the outcome of admitting a candidate.
type AdmissionResult struct {
	Activity *model.Activity
	Valid    bool
	Reason   string
	// Duplicate is set when the external id was already admitted. Activity,
	// Valid and Reason then describe the stored activity; Checks is empty.
	Duplicate bool
	Checks    Checks
}

// AdmissionConfig holds admission rules.
type AdmissionConfig struct {
	MinHeartRate float64
	LockTimeout  time.Duration
}

// AdmissionService validates, scores and persists incoming activities.
type AdmissionService struct {
	activities ActivityStore
	users      UserStore
	scoring    *ScoringService
	missions   *MissionService
	badges     BadgeEvaluator
	enq        Enqueuer
	notifier   Notifier
	locks      *lock.KeyedLock
	clock      clock.Clock
	cfg        AdmissionConfig
}

// NewAdmissionService creates a new AdmissionService instance.
func NewAdmissionService(
	activities ActivityStore,
	users UserStore,
	scoring *ScoringService,
	missions *MissionService,
	badges BadgeEvaluator,
	enq Enqueuer,
	notifier Notifier,
	locks *lock.KeyedLock,
	clk clock.Clock,
	cfg AdmissionConfig,
) *AdmissionService {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	return &AdmissionService{
		activities: activities,
		users:      users,
		scoring:    scoring,
		missions:   missions,
		badges:     badges,
		enq:        enq,
		notifier:   notifier,
		locks:      locks,
		clock:      clk,
		cfg:        cfg,
	}
}

func (c *Candidate) validate() error {
	switch {
	case strings.TrimSpace(c.ExternalID) == "":
		return fmt.Errorf("%w: external id is required", ErrInvalidCandidate)
	case strings.TrimSpace(c.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidCandidate)
	case c.StartDate.IsZero():
		return fmt.Errorf("%w: start date is required", ErrInvalidCandidate)
	case c.ElapsedTime < 0 || c.MovingTime < 0 || c.Distance < 0:
		return fmt.Errorf("%w: %w", ErrInvalidCandidate, ErrNegativeInput)
	case !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate):
		return fmt.Errorf("%w: end date before start date", ErrInvalidCandidate)
	}
	return nil
}

func (c *Candidate) end() time.Time {
	if !c.EndDate.IsZero() {
		return c.EndDate
	}
	return c.StartDate.Add(time.Duration(c.ElapsedTime) * time.Second)
}

// AdmitActivity admits a candidate activity for its user. Invalid activities
// are persisted too, with points computed and IsValid false. The check and
// the insert run under the user's lock so two concurrent uploads of
// overlapping workouts cannot both be accepted.
func (s *AdmissionService) AdmitActivity(ctx context.Context, c Candidate) (*AdmissionResult, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	existing, err := s.findAdmitted(ctx, c.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.redeliver(ctx, existing)
	}

	user, err := s.users.GetByID(ctx, c.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	loc, err := clock.Resolve(user.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user timezone: %w", err)
	}

	var result *AdmissionResult
	err = s.locks.WithLockContext(ctx, "user:"+user.ID, s.cfg.LockTimeout, func() error {
		var err error
		result, err = s.admitLocked(ctx, user, loc, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Duplicate {
		return s.redeliver(ctx, result.Activity)
	}

	a := result.Activity
	if result.Valid {
		if _, err := s.credit(ctx, user, a); err != nil {
			return nil, err
		}
	}
	s.notifyAdmission(ctx, user, result)

	log.Info().
		Str("activity_id", a.ID).
		Str("user_id", user.ID).
		Int("points", a.Points).
		Bool("valid", result.Valid).
		Msg("Activity admitted")
	return result, nil
}

func (s *AdmissionService) admitLocked(ctx context.Context, user *model.User, loc *time.Location, c Candidate) (*AdmissionResult, error) {
	// Another upload of the same activity may have won the lock first.
	existing, err := s.findAdmitted(ctx, c.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &AdmissionResult{Activity: existing, Duplicate: true}, nil
	}

	now := s.clock.Now()
	start := c.StartDate.UTC()
	end := c.end().UTC()
	year, week := clock.WeekOf(start, loc)

	overlapping, err := s.activities.HasOverlap(ctx, user.ID, year, week, clock.EpochMillis(start), clock.EpochMillis(end))
	if err != nil {
		return nil, fmt.Errorf("failed to check overlap: %w", err)
	}

	hr := 0.0
	if c.AverageHeartRate != nil {
		hr = *c.AverageHeartRate
	}
	checks := Checks{
		SameWeek:     clock.SameWeek(start, now, loc),
		EnoughEffort: hr >= s.cfg.MinHeartRate,
		Overlapping:  overlapping,
	}
	valid, reason := s.verdict(checks)

	points, factor, err := CalculatePoints(c.AverageHeartRate, c.MovingTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCandidate, err)
	}

	a := &model.Activity{
		ExternalID:       c.ExternalID,
		UserID:           user.ID,
		Name:             c.Name,
		SportType:        c.SportType,
		StartDate:        start,
		EndDate:          end,
		StartDateUserTZ:  start.In(loc).Format(time.RFC3339),
		EndDateUserTZ:    end.In(loc).Format(time.RFC3339),
		StartEpochMs:     clock.EpochMillis(start),
		EndEpochMs:       clock.EpochMillis(end),
		CreatedAt:        now.UTC(),
		CreatedAtUserTZ:  now.In(loc).Format(time.RFC3339),
		CreatedEpochMs:   clock.EpochMillis(now),
		AverageHeartRate: c.AverageHeartRate,
		MaxHeartRate:     c.MaxHeartRate,
		Distance:         c.Distance,
		ElapsedTime:      c.ElapsedTime,
		MovingTime:       c.MovingTime,
		Points:           points,
		EffortFactor:     factor,
		IsValid:          valid,
		WeekInUserTZ:     week,
		YearInUserTZ:     year,
	}
	if !valid {
		a.InvalidReason = &reason
	}

	created, err := s.activities.Create(ctx, a)
	if err != nil {
		if errors.Is(err, repository.ErrActivityExists) {
			existing, err := s.findAdmitted(ctx, c.ExternalID)
			if err != nil {
				return nil, err
			}
			return &AdmissionResult{Activity: existing, Duplicate: true}, nil
		}
		return nil, fmt.Errorf("failed to persist activity: %w", err)
	}

	return &AdmissionResult{Activity: created, Valid: valid, Reason: reason, Checks: checks}, nil
}

func (s *AdmissionService) findAdmitted(ctx context.Context, externalID string) (*model.Activity, error) {
	a, err := s.activities.GetByExternalID(ctx, externalID)
	if errors.Is(err, repository.ErrActivityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return a, nil
}

// redeliver answers a repeated delivery of an admitted activity. A valid
// activity is credited again because a failure after the insert leaves the
// weekly score, mission progress and badges behind; each step is idempotent.
// The admission notice goes out only when the stored weekly total was stale,
// which means the earlier delivery stopped before notifying.
func (s *AdmissionService) redeliver(ctx context.Context, a *model.Activity) (*AdmissionResult, error) {
	res := &AdmissionResult{Activity: a, Duplicate: true}
	if a == nil {
		return res, nil
	}
	log.Info().Str("external_id", a.ExternalID).Str("activity_id", a.ID).Msg("Duplicate activity received")

	if !a.IsValid {
		if a.InvalidReason != nil {
			res.Reason = *a.InvalidReason
		}
		return res, nil
	}
	res.Valid = true

	user, err := s.users.GetByID(ctx, a.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	stored := user.WeeklyScores[clock.WeekKey(a.YearInUserTZ, a.WeekInUserTZ)]
	total, err := s.credit(ctx, user, a)
	if err != nil {
		return nil, err
	}
	if total != stored {
		s.notifyAdmission(ctx, user, res)
	}
	return res, nil
}

// credit applies a valid activity to the user's weekly score, missions and
// badges and returns the new weekly total.
func (s *AdmissionService) credit(ctx context.Context, user *model.User, a *model.Activity) (int, error) {
	total, err := s.scoring.AggregateWeek(ctx, user, a.YearInUserTZ, a.WeekInUserTZ)
	if err != nil {
		return 0, err
	}
	if s.missions != nil {
		if err := s.missions.RecordActivity(ctx, user, a); err != nil {
			log.Error().Err(err).Str("activity_id", a.ID).Msg("Failed to record mission progress")
		}
	}
	s.enqueueBadges(user, a)
	return total, nil
}

// verdict picks the reported reason: overlap, then week mismatch, then heart rate.
func (s *AdmissionService) verdict(c Checks) (bool, string) {
	switch {
	case c.Overlapping:
		return false, model.ReasonOverlap
	case !c.SameWeek:
		return false, model.ReasonWeekMismatch
	case !c.EnoughEffort:
		return false, fmt.Sprintf(model.ReasonLowHeartRateF, int(s.cfg.MinHeartRate))
	}
	return true, ""
}

func (s *AdmissionService) enqueueBadges(user *model.User, a *model.Activity) {
	if s.badges == nil || s.enq == nil {
		return
	}
	s.enq.Enqueue("badges.activity", func(ctx context.Context) error {
		return s.badges.EvaluateForActivity(ctx, user, a)
	})
}

func (s *AdmissionService) notifyAdmission(ctx context.Context, user *model.User, r *AdmissionResult) {
	if s.notifier == nil {
		return
	}
	a := r.Activity
	if r.Valid {
		s.notifier.Notify(ctx, user, model.ImportanceNormal, model.NotifyNewActivity,
			fmt.Sprintf("New activity registered with %d points.", a.Points),
			fmt.Sprintf("Activity %q registered.", a.Name))
		return
	}
	s.notifier.Notify(ctx, user, model.ImportanceNormal, model.NotifyInvalidActivity,
		fmt.Sprintf("Your activity %s was not valid. %s", a.Name, r.Reason),
		fmt.Sprintf("Activity %q was invalid.", a.Name))
}
