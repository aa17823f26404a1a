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
	"fitness-league/internal/pkg/db"
)

const missionColumns = `id, name, description, sport_type, goal_type, goal_value,
	initial_day, end_day, is_active, created_at`

const attemptColumns = `id, user_id, mission_id, status, progress, start_date, end_date,
	timezone, created_at, updated_at`

const dateLayout = "2006-01-02"

// MissionRepository handles missions, attempts and the progress ledger.
type MissionRepository struct {
	pool *pgxpool.Pool
}

// NewMissionRepository creates a new MissionRepository instance.
func NewMissionRepository(pool *pgxpool.Pool) *MissionRepository {
	return &MissionRepository{pool: pool}
}

func scanMission(row pgx.Row) (*model.Mission, error) {
	var (
		m    model.Mission
		goal string
	)
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.SportType, &goal, &m.GoalValue,
		&m.InitialDay, &m.EndDay, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.GoalType = model.MissionGoalType(goal)
	return &m, nil
}

func scanAttempt(row pgx.Row) (*model.MissionAttempt, error) {
	var (
		a      model.MissionAttempt
		status string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.MissionID, &status, &a.Progress, &a.StartDate,
		&a.EndDate, &a.Timezone, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = model.AttemptStatus(status)
	return &a, nil
}

// Create inserts a mission.
func (r *MissionRepository) Create(ctx context.Context, m *model.Mission) (*model.Mission, error) {
	if !m.GoalType.Valid() {
		return nil, fmt.Errorf("invalid mission goal type %q", m.GoalType)
	}
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO missions (id, name, description, sport_type, goal_type, goal_value,
			initial_day, end_day, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8::date, $9, NOW())
		RETURNING ` + missionColumns

	created, err := scanMission(r.pool.QueryRow(ctx, query,
		id, m.Name, m.Description, m.SportType, string(m.GoalType), m.GoalValue,
		m.InitialDay.Format(dateLayout), m.EndDay.Format(dateLayout), m.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create mission: %w", err)
	}
	return created, nil
}

// GetByID retrieves a mission by id.
func (r *MissionRepository) GetByID(ctx context.Context, id string) (*model.Mission, error) {
	m, err := scanMission(r.pool.QueryRow(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMissionNotFound
		}
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}
	return m, nil
}

// ListDue returns active missions whose end day is before the calendar date of day.
func (r *MissionRepository) ListDue(ctx context.Context, day time.Time) ([]*model.Mission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE is_active AND end_day < $1::date ORDER BY end_day, id`,
		day.Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due missions: %w", err)
	}
	defer rows.Close()

	var out []*model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mission: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating missions: %w", err)
	}
	return out, nil
}

// Finalize deactivates a mission and closes its ACTIVE attempts: ACHIEVED
// when progress reached the goal, NOT_ACHIEVED otherwise. Only the call that
// flips is_active does any work; later calls report Deactivated=false.
func (r *MissionRepository) Finalize(ctx context.Context, missionID string) (*model.FinalizeResult, error) {
	result := &model.FinalizeResult{MissionID: missionID}

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var goal float64
		err := tx.QueryRow(ctx,
			`UPDATE missions SET is_active = false WHERE id = $1 AND is_active RETURNING goal_value`,
			missionID,
		).Scan(&goal)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM missions WHERE id = $1)`, missionID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check mission: %w", err)
			}
			if !exists {
				return ErrMissionNotFound
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to deactivate mission: %w", err)
		}
		result.Deactivated = true

		rows, err := tx.Query(ctx, `
			UPDATE mission_attempts
			SET status = CASE WHEN progress >= $2 THEN 'ACHIEVED' ELSE 'NOT_ACHIEVED' END,
				updated_at = NOW()
			WHERE mission_id = $1 AND status = 'ACTIVE'
			RETURNING id, user_id, status, progress`,
			missionID, goal,
		)
		if err != nil {
			return fmt.Errorf("failed to close attempts: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				fa     model.FinalizedAttempt
				status string
			)
			if err := rows.Scan(&fa.AttemptID, &fa.UserID, &status, &fa.Progress); err != nil {
				return fmt.Errorf("failed to scan closed attempt: %w", err)
			}
			fa.Status = model.AttemptStatus(status)
			result.Attempts = append(result.Attempts, fa)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateAttempt enrolls a user in a mission. A second enrollment returns ErrAttemptExists.
func (r *MissionRepository) CreateAttempt(ctx context.Context, a *model.MissionAttempt) (*model.MissionAttempt, error) {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := a.Status
	if status == "" {
		status = model.AttemptActive
	}

	query := `
		INSERT INTO mission_attempts (id, user_id, mission_id, status, progress, start_date,
			end_date, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING ` + attemptColumns

	created, err := scanAttempt(r.pool.QueryRow(ctx, query,
		id, a.UserID, a.MissionID, string(status), a.Progress, a.StartDate, a.EndDate, a.Timezone,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAttemptExists
		}
		return nil, fmt.Errorf("failed to create mission attempt: %w", err)
	}
	return created, nil
}

// GetAttempt retrieves an attempt by id.
func (r *MissionRepository) GetAttempt(ctx context.Context, id string) (*model.MissionAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM mission_attempts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get mission attempt: %w", err)
	}
	return a, nil
}

// FindAttempt retrieves the user's attempt of a mission.
func (r *MissionRepository) FindAttempt(ctx context.Context, userID, missionID string) (*model.MissionAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM mission_attempts WHERE user_id = $1 AND mission_id = $2`,
		userID, missionID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to find mission attempt: %w", err)
	}
	return a, nil
}

// ListActiveAttempts returns the user's ACTIVE attempts with their missions loaded.
func (r *MissionRepository) ListActiveAttempts(ctx context.Context, userID string) ([]*model.MissionAttempt, error) {
	const query = `
		SELECT a.id, a.user_id, a.mission_id, a.status, a.progress, a.start_date, a.end_date,
			a.timezone, a.created_at, a.updated_at,
			m.id, m.name, m.description, m.sport_type, m.goal_type, m.goal_value,
			m.initial_day, m.end_day, m.is_active, m.created_at
		FROM mission_attempts a
		JOIN missions m ON m.id = a.mission_id
		WHERE a.user_id = $1 AND a.status = 'ACTIVE'
		ORDER BY a.created_at, a.id`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active attempts: %w", err)
	}
	defer rows.Close()

	var out []*model.MissionAttempt
	for rows.Next() {
		var (
			a      model.MissionAttempt
			m      model.Mission
			status string
			goal   string
		)
		err := rows.Scan(
			&a.ID, &a.UserID, &a.MissionID, &status, &a.Progress, &a.StartDate, &a.EndDate,
			&a.Timezone, &a.CreatedAt, &a.UpdatedAt,
			&m.ID, &m.Name, &m.Description, &m.SportType, &goal, &m.GoalValue,
			&m.InitialDay, &m.EndDay, &m.IsActive, &m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Status = model.AttemptStatus(status)
		m.GoalType = model.MissionGoalType(goal)
		a.Mission = &m
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}
	return out, nil
}

// ApplyProgress adds delta to an ACTIVE attempt on behalf of activityID and
// moves the attempt to ACHIEVED when the goal is reached. The attempt row is
// locked for the duration, so concurrent activities never lose an update, and
// the (attempt, activity) ledger key makes re-delivery of an activity a no-op.
func (r *MissionRepository) ApplyProgress(ctx context.Context, attemptID, activityID string, delta float64) (*model.ProgressResult, error) {
	result := &model.ProgressResult{}

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			status string
			goal   float64
		)
		err := tx.QueryRow(ctx, `
			SELECT a.status, a.progress, m.goal_value
			FROM mission_attempts a
			JOIN missions m ON m.id = a.mission_id
			WHERE a.id = $1
			FOR UPDATE OF a`,
			attemptID,
		).Scan(&status, &result.Progress, &goal)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to lock attempt: %w", err)
		}
		result.Status = model.AttemptStatus(status)
		if result.Status != model.AttemptActive {
			return nil
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO mission_progress (id, attempt_id, activity_id, progress_made, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (attempt_id, activity_id) DO NOTHING`,
			uuid.NewString(), attemptID, activityID, delta,
		)
		if err != nil {
			return fmt.Errorf("failed to record mission progress: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		err = tx.QueryRow(ctx, `
			UPDATE mission_attempts
			SET progress = progress + $2,
				status = CASE WHEN progress + $2 >= $3 THEN 'ACHIEVED' ELSE status END,
				updated_at = NOW()
			WHERE id = $1
			RETURNING progress, status`,
			attemptID, delta, goal,
		).Scan(&result.Progress, &status)
		if err != nil {
			return fmt.Errorf("failed to update attempt progress: %w", err)
		}
		result.Applied = true
		result.Status = model.AttemptStatus(status)
		result.Achieved = result.Status == model.AttemptAchieved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// HasAchievedAttempt reports whether the user holds an ACHIEVED attempt of the mission.
func (r *MissionRepository) HasAchievedAttempt(ctx context.Context, userID, missionID string) (bool, error) {
	var achieved bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM mission_attempts WHERE user_id = $1 AND mission_id = $2 AND status = 'ACHIEVED')`,
		userID, missionID,
	).Scan(&achieved)
	if err != nil {
		return false, fmt.Errorf("failed to check achieved attempt: %w", err)
	}
	return achieved, nil
}

// ListProgress returns the ledger of an attempt, oldest first.
func (r *MissionRepository) ListProgress(ctx context.Context, attemptID string) ([]*model.MissionProgress, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, attempt_id, activity_id, progress_made, created_at
		FROM mission_progress WHERE attempt_id = $1 ORDER BY created_at, id`,
		attemptID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list mission progress: %w", err)
	}
	defer rows.Close()

	var out []*model.MissionProgress
	for rows.Next() {
		var p model.MissionProgress
		if err := rows.Scan(&p.ID, &p.AttemptID, &p.ActivityID, &p.ProgressMade, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mission progress: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mission progress: %w", err)
	}
	return out, nil
}
