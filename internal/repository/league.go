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

// LeagueRepository handles ranking categories and leagues.
type LeagueRepository struct {
	pool *pgxpool.Pool
}

// NewLeagueRepository creates a new LeagueRepository instance.
func NewLeagueRepository(pool *pgxpool.Pool) *LeagueRepository {
	return &LeagueRepository{pool: pool}
}

// CreateCategory inserts a category at the given ladder order.
func (r *LeagueRepository) CreateCategory(ctx context.Context, name string, order int) (*model.RankingCategory, error) {
	const query = `
		INSERT INTO ranking_categories (id, name, sort_order, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, name, sort_order, created_at`

	var c model.RankingCategory
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), name, order).Scan(&c.ID, &c.Name, &c.Order, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("failed to create ranking category: %w", err)
	}
	return &c, nil
}

// CreateLeague inserts a league into a category.
func (r *LeagueRepository) CreateLeague(ctx context.Context, categoryID string, level int) (*model.RankingLeague, error) {
	const query = `
		INSERT INTO ranking_leagues (id, category_id, level, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, category_id, level, created_at`

	var l model.RankingLeague
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), categoryID, level).Scan(&l.ID, &l.CategoryID, &l.Level, &l.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrLeagueExists
		}
		return nil, fmt.Errorf("failed to create ranking league: %w", err)
	}
	return &l, nil
}

// ListCategories returns all categories from the top tier down.
func (r *LeagueRepository) ListCategories(ctx context.Context) ([]*model.RankingCategory, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, sort_order, created_at FROM ranking_categories ORDER BY sort_order`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranking categories: %w", err)
	}
	defer rows.Close()

	var out []*model.RankingCategory
	for rows.Next() {
		var c model.RankingCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Order, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ranking category: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ranking categories: %w", err)
	}
	return out, nil
}

// ListLeagues returns all leagues ordered by category and level.
func (r *LeagueRepository) ListLeagues(ctx context.Context) ([]*model.RankingLeague, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.category_id, l.level, l.created_at
		FROM ranking_leagues l
		JOIN ranking_categories c ON c.id = l.category_id
		ORDER BY c.sort_order, l.level`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranking leagues: %w", err)
	}
	defer rows.Close()

	var out []*model.RankingLeague
	for rows.Next() {
		var l model.RankingLeague
		if err := rows.Scan(&l.ID, &l.CategoryID, &l.Level, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ranking league: %w", err)
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ranking leagues: %w", err)
	}
	return out, nil
}

// GetLeague retrieves a league by id.
func (r *LeagueRepository) GetLeague(ctx context.Context, id string) (*model.RankingLeague, error) {
	var l model.RankingLeague
	err := r.pool.QueryRow(ctx,
		`SELECT id, category_id, level, created_at FROM ranking_leagues WHERE id = $1`, id,
	).Scan(&l.ID, &l.CategoryID, &l.Level, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeagueNotFound
		}
		return nil, fmt.Errorf("failed to get ranking league: %w", err)
	}
	return &l, nil
}
