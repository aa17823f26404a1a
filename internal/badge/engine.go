package badge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"fitness-league/internal/model"
	"fitness-league/internal/pkg/clock"
	"fitness-league/internal/repository"
)

var awardTitles = map[model.BadgeType]string{
	model.BadgeDiscipline: "New badge earned for discipline!",
	model.BadgeDistance:   "New badge earned for distance!",
	model.BadgeTime:       "New badge earned for time!",
	model.BadgeMission:    "Congratulations! You have earned a new badge for completing a mission!",
	model.BadgeRanking:    "New badge earned as you have reached a new league!",
}

// Engine evaluates badges for the events of the league: an admitted
// activity, an achieved mission and a league change.
type Engine struct {
	store    Store
	registry *Registry
	notifier Notifier
	clock    clock.Clock
}

// NewEngine creates an engine with the evaluators of every badge type
// registered.
func NewEngine(store Store, activities ActivitySource, attempts AttemptSource, notifier Notifier, clk clock.Clock) *Engine {
	r := NewRegistry()
	for _, e := range []Evaluator{
		NewDistanceEvaluator(activities),
		NewTimeEvaluator(activities),
		NewDisciplineEvaluator(activities),
		NewMissionEvaluator(attempts),
		RankingEvaluator{},
	} {
		_ = r.Register(e)
	}
	return &Engine{store: store, registry: r, notifier: notifier, clock: clk}
}

// Registry exposes the evaluator registry, e.g. to replace an evaluator.
func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) input(user *model.User, b *model.Badge) (Input, error) {
	loc, err := clock.Resolve(user.Timezone)
	if err != nil {
		return Input{}, err
	}
	return Input{User: user, Badge: b, Now: e.clock.Now(), Loc: loc}, nil
}

// eligible applies the checks shared by every badge type: the criteria
// match the badge type, the user does not hold the badge yet and holds all
// of its prerequisites.
func (e *Engine) eligible(ctx context.Context, user *model.User, b *model.Badge) (bool, error) {
	if b.Criteria != nil && b.Criteria.BadgeType() != b.Type {
		return false, fmt.Errorf("%w: badge %s", model.ErrCriteriaMismatch, b.ID)
	}

	held, err := e.store.HasBadge(ctx, user.ID, b.ID)
	if err != nil {
		return false, err
	}
	if held {
		return false, nil
	}

	if len(b.Prerequisites) == 0 {
		return true, nil
	}
	want := make(map[string]struct{}, len(b.Prerequisites))
	for _, id := range b.Prerequisites {
		want[id] = struct{}{}
	}
	got, err := e.store.HeldBadgeIDs(ctx, user.ID, b.Prerequisites)
	if err != nil {
		return false, err
	}
	for _, id := range got {
		delete(want, id)
	}
	if len(want) > 0 {
		log.Debug().Str("user_id", user.ID).Str("badge_id", b.ID).Msg("Badge prerequisites not held")
		return false, nil
	}
	return true, nil
}

// Evaluate awards the badge to the user when eligible and the criteria are
// met. It reports whether the badge was awarded by this call; a concurrent
// award of the same badge returns ErrAlreadyAwarded.
func (e *Engine) Evaluate(ctx context.Context, user *model.User, b *model.Badge) (bool, error) {
	ev, ok := e.registry.Get(b.Type)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoEvaluator, b.Type)
	}

	ok, err := e.eligible(ctx, user, b)
	if err != nil || !ok {
		return false, err
	}

	in, err := e.input(user, b)
	if err != nil {
		return false, err
	}
	p, err := ev.Progress(ctx, in)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate badge %s: %w", b.ID, err)
	}
	if !p.Met {
		return false, nil
	}

	if _, err := e.store.Award(ctx, user.ID, b.ID); err != nil {
		if errors.Is(err, repository.ErrBadgeAlreadyAwarded) {
			return false, ErrAlreadyAwarded
		}
		return false, err
	}

	log.Info().
		Str("user_id", user.ID).
		Str("badge_id", b.ID).
		Str("type", string(b.Type)).
		Msg("Badge awarded")

	if e.notifier != nil {
		e.notifier.Notify(ctx, user, model.ImportanceNormal, model.NotifyNewBadge,
			fmt.Sprintf("You have earned a new badge: %s", b.Name), awardTitles[b.Type])
	}
	return true, nil
}

// Progress reports how far the user is from a badge without awarding it.
func (e *Engine) Progress(ctx context.Context, user *model.User, b *model.Badge) (Progress, error) {
	ev, ok := e.registry.Get(b.Type)
	if !ok {
		return Progress{}, fmt.Errorf("%w: %s", ErrNoEvaluator, b.Type)
	}
	in, err := e.input(user, b)
	if err != nil {
		return Progress{}, err
	}
	return ev.Progress(ctx, in)
}

// evaluateAll evaluates each badge, logging failures instead of returning them.
func (e *Engine) evaluateAll(ctx context.Context, user *model.User, badges []*model.Badge) int {
	awarded := 0
	for _, b := range badges {
		ok, err := e.Evaluate(ctx, user, b)
		switch {
		case errors.Is(err, ErrAlreadyAwarded):
			log.Debug().Str("user_id", user.ID).Str("badge_id", b.ID).Msg("Badge awarded concurrently")
		case err != nil:
			log.Warn().Err(err).Str("user_id", user.ID).Str("badge_id", b.ID).Msg("Badge evaluation failed")
		case ok:
			awarded++
		}
	}
	return awarded
}

// EvaluateForActivity evaluates the TIME, DISTANCE and DISCIPLINE badges
// covering the activity's sport. TIME badges need elapsed time and DISTANCE
// badges need distance on the activity.
func (e *Engine) EvaluateForActivity(ctx context.Context, user *model.User, a *model.Activity) error {
	badges, err := e.store.ListForActivity(ctx, model.ActivityBadgeTypes(), a.SportType)
	if err != nil {
		return fmt.Errorf("failed to list activity badges: %w", err)
	}

	candidates := badges[:0:0]
	for _, b := range badges {
		switch {
		case b.Type == model.BadgeTime && a.ElapsedTime <= 0:
		case b.Type == model.BadgeDistance && a.Distance <= 0:
		default:
			candidates = append(candidates, b)
		}
	}

	awarded := e.evaluateAll(ctx, user, candidates)
	log.Debug().
		Str("activity_id", a.ID).
		Int("evaluated", len(candidates)).
		Int("awarded", awarded).
		Msg("Activity badges evaluated")
	return nil
}

// EvaluateMission evaluates the MISSION badges referencing missionID.
func (e *Engine) EvaluateMission(ctx context.Context, user *model.User, missionID string) error {
	badges, err := e.store.ListByMission(ctx, missionID)
	if err != nil {
		return fmt.Errorf("failed to list mission badges: %w", err)
	}
	e.evaluateAll(ctx, user, badges)
	return nil
}

// EvaluateRanking evaluates the RANKING badges of the user's current league.
func (e *Engine) EvaluateRanking(ctx context.Context, user *model.User) error {
	if user.LeagueID == nil {
		return nil
	}
	badges, err := e.store.ListByLeague(ctx, *user.LeagueID)
	if err != nil {
		return fmt.Errorf("failed to list ranking badges: %w", err)
	}
	e.evaluateAll(ctx, user, badges)
	return nil
}
