package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"fitness-league/internal/model"
)

// LeaguesPerCategory is how many leagues SeedLadder creates per category.
const LeaguesPerCategory = 4

const rotationDescription = "Weekly points conversion to coins"

// LeagueConfig holds the rotation thresholds.
type LeagueConfig struct {
	PromoteCount  int
	RelegateCount int
}

// RotationSummary reports what one weekly rotation did.
type RotationSummary struct {
	Leagues   int
	Promoted  int
	Relegated int
	Remained  int
	Failed    int
	Converted int64
}

// LeagueService runs the weekly league rotation.
type LeagueService struct {
	users    UserStore
	leagues  LeagueStore
	badges   BadgeEvaluator
	enq      Enqueuer
	notifier Notifier
	cfg      LeagueConfig
}

// NewLeagueService creates a new LeagueService instance.
func NewLeagueService(
	users UserStore,
	leagues LeagueStore,
	badges BadgeEvaluator,
	enq Enqueuer,
	notifier Notifier,
	cfg LeagueConfig,
) *LeagueService {
	return &LeagueService{
		users:    users,
		leagues:  leagues,
		badges:   badges,
		enq:      enq,
		notifier: notifier,
		cfg:      cfg,
	}
}

// LoadLadder reads the current ladder.
func (s *LeagueService) LoadLadder(ctx context.Context) (*Ladder, error) {
	cats, err := s.leagues.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	leagues, err := s.leagues.ListLeagues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load leagues: %w", err)
	}
	ladder := NewLadder(cats, leagues)
	if ladder.Len() == 0 {
		return nil, ErrEmptyLadder
	}
	return ladder, nil
}

type plannedMove struct {
	user     *model.User
	from     *model.RankingLeague
	to       *model.RankingLeague
	movement model.Movement
}

// Rotate promotes the top users and relegates the bottom users of every
// league, converts each user's weekly score into coins and resets it.
// Memberships are read for all leagues before anyone moves, so every user is
// rotated exactly once. A failure for one user is logged and does not stop
// the rotation.
func (s *LeagueService) Rotate(ctx context.Context) (*RotationSummary, error) {
	if s.cfg.PromoteCount < 0 || s.cfg.RelegateCount < 0 {
		return nil, ErrInvalidThresholds
	}
	ladder, err := s.LoadLadder(ctx)
	if err != nil {
		return nil, err
	}

	var plan []plannedMove
	for _, lg := range ladder.Leagues() {
		users, err := s.users.ListByLeague(ctx, lg.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list users of league %s: %w", lg.ID, err)
		}
		buckets, err := SplitBuckets(users, s.cfg.PromoteCount, s.cfg.RelegateCount)
		if err != nil {
			return nil, err
		}
		plan = append(plan, planBucket(lg, buckets.Promote, ladder.Promote, model.MovementPromote)...)
		plan = append(plan, planBucket(lg, buckets.Relegate, ladder.Relegate, model.MovementRelegate)...)
		plan = append(plan, planBucket(lg, buckets.Remain, nil, model.MovementRemain)...)
	}

	summary := &RotationSummary{Leagues: ladder.Len()}
	for _, mv := range plan {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		res, err := s.users.RotateUser(ctx, mv.user.ID, mv.to.ID, rotationDescription)
		if err != nil {
			summary.Failed++
			log.Error().Err(err).
				Str("user_id", mv.user.ID).
				Str("league_id", mv.from.ID).
				Msg("Failed to rotate user")
			continue
		}

		summary.Converted += res.Converted
		switch mv.movement {
		case model.MovementPromote:
			summary.Promoted++
		case model.MovementRelegate:
			summary.Relegated++
		default:
			summary.Remained++
		}

		s.afterRotation(ctx, ladder, res.User, mv)
	}

	log.Info().
		Int("leagues", summary.Leagues).
		Int("promoted", summary.Promoted).
		Int("relegated", summary.Relegated).
		Int("remained", summary.Remained).
		Int("failed", summary.Failed).
		Int64("converted", summary.Converted).
		Msg("Weekly rotation completed")
	return summary, nil
}

func planBucket(
	from *model.RankingLeague,
	users []*model.User,
	step func(string) (*model.RankingLeague, bool),
	movement model.Movement,
) []plannedMove {
	to, mv := from, model.MovementRemain
	if step != nil {
		if next, ok := step(from.ID); ok {
			to, mv = next, movement
		}
	}
	out := make([]plannedMove, 0, len(users))
	for _, u := range users {
		out = append(out, plannedMove{user: u, from: from, to: to, movement: mv})
	}
	return out
}

func (s *LeagueService) afterRotation(ctx context.Context, ladder *Ladder, user *model.User, mv plannedMove) {
	if s.badges != nil && s.enq != nil {
		s.enq.Enqueue("badges.ranking", func(ctx context.Context) error {
			return s.badges.EvaluateRanking(ctx, user)
		})
	}
	if s.notifier == nil {
		return
	}

	title, message := rotationMessage(ladder, mv)
	var typ model.NotificationType
	switch mv.movement {
	case model.MovementPromote:
		typ = model.NotifyPromote
	case model.MovementRelegate:
		typ = model.NotifyRelegate
	default:
		typ = model.NotifyRemain
	}
	s.notifier.Notify(ctx, user, model.ImportanceLow, typ, message, title)
}

func rotationMessage(ladder *Ladder, mv plannedMove) (title, message string) {
	cat, _ := ladder.Category(mv.to.ID)
	sameCategory := mv.from.CategoryID == mv.to.CategoryID

	switch mv.movement {
	case model.MovementPromote:
		title = "Promotion Notification"
		if sameCategory {
			return title, fmt.Sprintf("You have been promoted to League %d within the same category.", mv.to.Level)
		}
		return title, fmt.Sprintf("You have been promoted to %s Category, League %d.", cat.Name, mv.to.Level)
	case model.MovementRelegate:
		title = "Relegation Notification"
		if sameCategory {
			return title, fmt.Sprintf("You have been relegated to League %d within the same category.", mv.to.Level)
		}
		return title, fmt.Sprintf("You have been relegated to %s Category, League %d.", cat.Name, mv.to.Level)
	}
	return "League Unchanged", fmt.Sprintf("You remain in %s Category, League %d.", cat.Name, mv.to.Level)
}

// Standings returns the users of a league ranked by current week score.
func (s *LeagueService) Standings(ctx context.Context, leagueID string) ([]*model.User, error) {
	if _, err := s.leagues.GetLeague(ctx, leagueID); err != nil {
		return nil, err
	}
	users, err := s.users.ListByLeague(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("failed to load standings: %w", err)
	}
	return users, nil
}

// SeedLadder creates one category per name, top tier first, each with
// LeaguesPerCategory leagues.
func (s *LeagueService) SeedLadder(ctx context.Context, names []string) (*Ladder, error) {
	if len(names) == 0 {
		return nil, ErrNoCategoryNames
	}

	var (
		cats    []*model.RankingCategory
		leagues []*model.RankingLeague
	)
	for order, name := range names {
		cat, err := s.leagues.CreateCategory(ctx, name, order)
		if err != nil {
			return nil, fmt.Errorf("failed to create category %q: %w", name, err)
		}
		cats = append(cats, cat)

		for level := 1; level <= LeaguesPerCategory; level++ {
			lg, err := s.leagues.CreateLeague(ctx, cat.ID, level)
			if err != nil {
				return nil, fmt.Errorf("failed to create league %d of %q: %w", level, name, err)
			}
			leagues = append(leagues, lg)
		}
	}

	log.Info().Int("categories", len(cats)).Int("leagues", len(leagues)).Msg("Ranking ladder seeded")
	return NewLadder(cats, leagues), nil
}
