package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitness-league/internal/model"
	"fitness-league/internal/pkg/db"
)

const userColumns = `id, email, name, timezone, is_active, league_id, weekly_scores,
	current_week_score, coins, created_at, updated_at`

// UserRepository handles user data persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Timezone,
		&u.IsActive,
		&u.LeagueID,
		&u.WeeklyScores,
		&u.CurrentWeekScore,
		&u.Coins,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if u.WeeklyScores == nil {
		u.WeeklyScores = map[string]int{}
	}
	return &u, nil
}

// Create inserts a user. An empty ID is generated.
func (r *UserRepository) Create(ctx context.Context, u *model.User) (*model.User, error) {
	query := `
		INSERT INTO users (id, email, name, timezone, is_active, league_id, weekly_scores,
			current_week_score, coins, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING ` + userColumns

	id := u.ID
	if id == "" {
		id = uuid.NewString()
	}
	scores := u.WeeklyScores
	if scores == nil {
		scores = map[string]int{}
	}

	user, err := scanUser(r.pool.QueryRow(ctx, query,
		id, u.Email, u.Name, u.Timezone, u.IsActive, u.LeagueID, scores,
		u.CurrentWeekScore, u.Coins,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by id.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListByLeague returns the members of a league ranked by current week score.
// Ties keep the older account first.
func (r *UserRepository) ListByLeague(ctx context.Context, leagueID string) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE league_id = $1
		ORDER BY current_week_score DESC, created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, leagueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list league users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// SetLeague places a user in a league, or removes the placement when leagueID is nil.
func (r *UserRepository) SetLeague(ctx context.Context, userID string, leagueID *string) (*model.User, error) {
	query := `
		UPDATE users SET league_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID, leagueID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to set league: %w", err)
	}
	return user, nil
}

// UpdateWeeklyScore stores total as the weekly_scores entry for weekKey and,
// when setCurrent is true, as the current week score.
func (r *UserRepository) UpdateWeeklyScore(ctx context.Context, userID, weekKey string, total int, setCurrent bool) error {
	const query = `
		UPDATE users
		SET weekly_scores = jsonb_set(weekly_scores, ARRAY[$2::text], to_jsonb($3::int), true),
			current_week_score = CASE WHEN $4 THEN $3::int ELSE current_week_score END,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, userID, weekKey, total, setCurrent)
	if err != nil {
		return fmt.Errorf("failed to update weekly score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RotateUser converts the user's current week score into coins, records the
// conversion in the coin ledger, resets the score and moves the user to
// leagueID, all in one transaction.
func (r *UserRepository) RotateUser(ctx context.Context, userID, leagueID, description string) (*model.RotationResult, error) {
	var result model.RotationResult

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var score int
		err := tx.QueryRow(ctx,
			`SELECT current_week_score FROM users WHERE id = $1 FOR UPDATE`, userID,
		).Scan(&score)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to lock user: %w", err)
		}

		user, err := scanUser(tx.QueryRow(ctx, `
			UPDATE users
			SET coins = coins + $2, current_week_score = 0, league_id = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING `+userColumns,
			userID, score, leagueID,
		))
		if err != nil {
			return fmt.Errorf("failed to rotate user: %w", err)
		}

		if _, err := insertCoinTransaction(ctx, tx, userID, int64(score), model.CoinTxWeeklyPoints, &description); err != nil {
			return err
		}

		result = model.RotationResult{User: user, Converted: int64(score)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
