package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitness-league/internal/model"
)

const badgeColumns = `id, name, description, type, criteria, sport_types, prerequisites,
	available_from, available_until, created_at`

// BadgeRepository handles badge definitions and awards.
type BadgeRepository struct {
	pool *pgxpool.Pool
}

// NewBadgeRepository creates a new BadgeRepository instance.
func NewBadgeRepository(pool *pgxpool.Pool) *BadgeRepository {
	return &BadgeRepository{pool: pool}
}

func scanBadge(row pgx.Row) (*model.Badge, error) {
	var (
		b        model.Badge
		badgeTyp string
		raw      []byte
	)
	err := row.Scan(
		&b.ID, &b.Name, &b.Description, &badgeTyp, &raw, &b.SportTypes, &b.Prerequisites,
		&b.AvailableFrom, &b.AvailableUntil, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Type = model.BadgeType(badgeTyp)
	b.Criteria, err = model.DecodeCriteria(b.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("badge %s: %w", b.ID, err)
	}
	return &b, nil
}

func (r *BadgeRepository) list(ctx context.Context, query string, args ...any) ([]*model.Badge, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	var badges []*model.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating badges: %w", err)
	}
	return badges, nil
}

// Create inserts a badge definition after validating its criteria.
func (r *BadgeRepository) Create(ctx context.Context, b *model.Badge) (*model.Badge, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	raw, err := model.EncodeCriteria(b.Criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to encode criteria: %w", err)
	}

	id := b.ID
	if id == "" {
		id = uuid.NewString()
	}
	sports := b.SportTypes
	if sports == nil {
		sports = []string{}
	}
	prereqs := b.Prerequisites
	if prereqs == nil {
		prereqs = []string{}
	}

	query := `
		INSERT INTO badges (id, name, description, type, criteria, sport_types, prerequisites,
			available_from, available_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9::date, NOW())
		RETURNING ` + badgeColumns

	created, err := scanBadge(r.pool.QueryRow(ctx, query,
		id, b.Name, b.Description, string(b.Type), raw, sports, prereqs,
		b.AvailableFrom.Format("2006-01-02"), b.AvailableUntil.Format("2006-01-02"),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create badge: %w", err)
	}
	return created, nil
}

// GetByID retrieves a badge by id.
func (r *BadgeRepository) GetByID(ctx context.Context, id string) (*model.Badge, error) {
	b, err := scanBadge(r.pool.QueryRow(ctx, `SELECT `+badgeColumns+` FROM badges WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBadgeNotFound
		}
		return nil, fmt.Errorf("failed to get badge: %w", err)
	}
	return b, nil
}

// ListForActivity returns badges of the given types that apply to sportType,
// either by listing it or through the "All" wildcard.
func (r *BadgeRepository) ListForActivity(ctx context.Context, types []model.BadgeType, sportType string) ([]*model.Badge, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	query := `
		SELECT ` + badgeColumns + `
		FROM badges
		WHERE type = ANY($1::text[])
			AND ($2 = ANY(sport_types) OR $3 = ANY(sport_types))
		ORDER BY created_at, id`
	return r.list(ctx, query, names, sportType, model.SportTypeAll)
}

// ListByMission returns MISSION badges that reference missionID.
func (r *BadgeRepository) ListByMission(ctx context.Context, missionID string) ([]*model.Badge, error) {
	query := `
		SELECT ` + badgeColumns + `
		FROM badges
		WHERE type = $1 AND criteria->>'missionId' = $2
		ORDER BY created_at, id`
	return r.list(ctx, query, string(model.BadgeMission), missionID)
}

// ListByLeague returns RANKING badges that reference leagueID.
func (r *BadgeRepository) ListByLeague(ctx context.Context, leagueID string) ([]*model.Badge, error) {
	query := `
		SELECT ` + badgeColumns + `
		FROM badges
		WHERE type = $1 AND criteria->>'rankingLeagueId' = $2
		ORDER BY created_at, id`
	return r.list(ctx, query, string(model.BadgeRanking), leagueID)
}

// HasBadge reports whether the user already earned the badge.
func (r *BadgeRepository) HasBadge(ctx context.Context, userID, badgeID string) (bool, error) {
	var held bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_badges WHERE user_id = $1 AND badge_id = $2)`,
		userID, badgeID,
	).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("failed to check user badge: %w", err)
	}
	return held, nil
}

// HeldBadgeIDs returns the subset of badgeIDs the user holds.
func (r *BadgeRepository) HeldBadgeIDs(ctx context.Context, userID string, badgeIDs []string) ([]string, error) {
	if len(badgeIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT badge_id FROM user_badges WHERE user_id = $1 AND badge_id = ANY($2::text[])`,
		userID, badgeIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list held badges: %w", err)
	}
	held, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan held badges: %w", err)
	}
	return held, nil
}

// Award records a badge for a user. A second award of the same badge returns
// ErrBadgeAlreadyAwarded.
func (r *BadgeRepository) Award(ctx context.Context, userID, badgeID string) (*model.UserBadge, error) {
	const query = `
		INSERT INTO user_badges (id, user_id, badge_id, earned_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, user_id, badge_id, earned_at`

	var ub model.UserBadge
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), userID, badgeID).Scan(
		&ub.ID, &ub.UserID, &ub.BadgeID, &ub.EarnedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrBadgeAlreadyAwarded
		}
		return nil, fmt.Errorf("failed to award badge: %w", err)
	}
	return &ub, nil
}

// ListUserBadges returns the user's awards, oldest first.
func (r *BadgeRepository) ListUserBadges(ctx context.Context, userID string) ([]*model.UserBadge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, badge_id, earned_at FROM user_badges WHERE user_id = $1 ORDER BY earned_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}
	defer rows.Close()

	var out []*model.UserBadge
	for rows.Next() {
		var ub model.UserBadge
		if err := rows.Scan(&ub.ID, &ub.UserID, &ub.BadgeID, &ub.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user badge: %w", err)
		}
		out = append(out, &ub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user badges: %w", err)
	}
	return out, nil
}
