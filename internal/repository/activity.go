package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitness-league/internal/model"
)

const activityColumns = `id, external_id, user_id, name, sport_type, start_date, end_date,
	start_date_user_tz, end_date_user_tz, start_epoch_ms, end_epoch_ms, created_at,
	created_at_user_tz, created_epoch_ms, average_heart_rate, max_heart_rate, distance,
	elapsed_time, moving_time, points, effort_factor, is_valid, invalid_reason,
	week_user_tz, year_user_tz`

// ActivityRepository handles activity persistence.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository creates a new ActivityRepository instance.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

func scanActivity(row pgx.Row) (*model.Activity, error) {
	var a model.Activity
	err := row.Scan(
		&a.ID, &a.ExternalID, &a.UserID, &a.Name, &a.SportType, &a.StartDate, &a.EndDate,
		&a.StartDateUserTZ, &a.EndDateUserTZ, &a.StartEpochMs, &a.EndEpochMs, &a.CreatedAt,
		&a.CreatedAtUserTZ, &a.CreatedEpochMs, &a.AverageHeartRate, &a.MaxHeartRate, &a.Distance,
		&a.ElapsedTime, &a.MovingTime, &a.Points, &a.EffortFactor, &a.IsValid, &a.InvalidReason,
		&a.WeekInUserTZ, &a.YearInUserTZ,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectActivities(rows pgx.Rows) ([]*model.Activity, error) {
	defer rows.Close()

	var out []*model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return out, nil
}

// Create inserts an activity. A second insert with the same external id
// returns ErrActivityExists.
func (r *ActivityRepository) Create(ctx context.Context, a *model.Activity) (*model.Activity, error) {
	query := `
		INSERT INTO activities (` + activityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25)
		RETURNING ` + activityColumns

	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}

	created, err := scanActivity(r.pool.QueryRow(ctx, query,
		id, a.ExternalID, a.UserID, a.Name, a.SportType, a.StartDate, a.EndDate,
		a.StartDateUserTZ, a.EndDateUserTZ, a.StartEpochMs, a.EndEpochMs, a.CreatedAt,
		a.CreatedAtUserTZ, a.CreatedEpochMs, a.AverageHeartRate, a.MaxHeartRate, a.Distance,
		a.ElapsedTime, a.MovingTime, a.Points, a.EffortFactor, a.IsValid, a.InvalidReason,
		a.WeekInUserTZ, a.YearInUserTZ,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrActivityExists
		}
		return nil, fmt.Errorf("failed to create activity: %w", err)
	}
	return created, nil
}

// GetByID retrieves an activity by id.
func (r *ActivityRepository) GetByID(ctx context.Context, id string) (*model.Activity, error) {
	a, err := scanActivity(r.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return a, nil
}

// GetByExternalID retrieves an activity by the id its source assigned.
func (r *ActivityRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Activity, error) {
	a, err := scanActivity(r.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE external_id = $1`, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return a, nil
}

// HasOverlap reports whether any activity of the user in the given ISO week
// intersects the half-open interval [startMs, endMs).
func (r *ActivityRepository) HasOverlap(ctx context.Context, userID string, year, week int, startMs, endMs int64) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM activities
			WHERE user_id = $1 AND year_user_tz = $2 AND week_user_tz = $3
				AND start_epoch_ms < $5 AND end_epoch_ms > $4
		)`

	var overlap bool
	if err := r.pool.QueryRow(ctx, query, userID, year, week, startMs, endMs).Scan(&overlap); err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", err)
	}
	return overlap, nil
}

// SumValidPoints sums the points of the user's valid activities in an ISO week.
func (r *ActivityRepository) SumValidPoints(ctx context.Context, userID string, year, week int) (int, error) {
	const query = `
		SELECT COALESCE(SUM(points), 0)
		FROM activities
		WHERE user_id = $1 AND year_user_tz = $2 AND week_user_tz = $3 AND is_valid`

	var total int
	if err := r.pool.QueryRow(ctx, query, userID, year, week).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum weekly points: %w", err)
	}
	return total, nil
}

// ListByWeek returns every activity of the user in an ISO week, valid or not.
func (r *ActivityRepository) ListByWeek(ctx context.Context, userID string, year, week int) ([]*model.Activity, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM activities
		WHERE user_id = $1 AND year_user_tz = $2 AND week_user_tz = $3
		ORDER BY start_date`

	rows, err := r.pool.Query(ctx, query, userID, year, week)
	if err != nil {
		return nil, fmt.Errorf("failed to list weekly activities: %w", err)
	}
	return collectActivities(rows)
}

// ListValidInRange returns the user's valid activities starting within
// [from, until]. A nil sportTypes matches every sport.
func (r *ActivityRepository) ListValidInRange(ctx context.Context, userID string, from, until time.Time, sportTypes []string) ([]*model.Activity, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM activities
		WHERE user_id = $1 AND is_valid
			AND start_date >= $2 AND start_date <= $3
			AND ($4::text[] IS NULL OR sport_type = ANY($4::text[]))
		ORDER BY start_date`

	rows, err := r.pool.Query(ctx, query, userID, from, until, sportTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities in range: %w", err)
	}
	return collectActivities(rows)
}

// UpdateScore overwrites an activity's points and effort factor.
func (r *ActivityRepository) UpdateScore(ctx context.Context, id string, points int, factor float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE activities SET points = $2, effort_factor = $3 WHERE id = $1`, id, points, factor,
	)
	if err != nil {
		return fmt.Errorf("failed to update activity score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrActivityNotFound
	}
	return nil
}
