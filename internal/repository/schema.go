package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrations are applied in order; each statement is idempotent.
var migrations = []struct {
	name string
	sql  string
}{
	{"ranking_categories", `
		CREATE TABLE IF NOT EXISTS ranking_categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			sort_order INTEGER NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"ranking_leagues", `
		CREATE TABLE IF NOT EXISTS ranking_leagues (
			id TEXT PRIMARY KEY,
			category_id TEXT NOT NULL REFERENCES ranking_categories(id) ON DELETE CASCADE,
			level INTEGER NOT NULL CHECK (level >= 1),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (category_id, level)
		)`},
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT 'UTC',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			league_id TEXT REFERENCES ranking_leagues(id) ON DELETE SET NULL,
			weekly_scores JSONB NOT NULL DEFAULT '{}'::jsonb,
			current_week_score INTEGER NOT NULL DEFAULT 0,
			coins BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"users_league_idx", `
		CREATE INDEX IF NOT EXISTS idx_users_league ON users(league_id, current_week_score DESC)`},
	{"activities", `
		CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL DEFAULT '',
			sport_type TEXT NOT NULL DEFAULT '',
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ NOT NULL,
			start_date_user_tz TEXT NOT NULL,
			end_date_user_tz TEXT NOT NULL,
			start_epoch_ms BIGINT NOT NULL,
			end_epoch_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			created_at_user_tz TEXT NOT NULL,
			created_epoch_ms BIGINT NOT NULL,
			average_heart_rate DOUBLE PRECISION,
			max_heart_rate DOUBLE PRECISION,
			distance DOUBLE PRECISION NOT NULL DEFAULT 0,
			elapsed_time INTEGER NOT NULL DEFAULT 0,
			moving_time INTEGER NOT NULL DEFAULT 0,
			points INTEGER NOT NULL DEFAULT 0,
			effort_factor DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_valid BOOLEAN NOT NULL,
			invalid_reason TEXT,
			week_user_tz INTEGER NOT NULL,
			year_user_tz INTEGER NOT NULL
		)`},
	{"activities_week_idx", `
		CREATE INDEX IF NOT EXISTS idx_activities_user_week ON activities(user_id, year_user_tz, week_user_tz)`},
	{"activities_start_idx", `
		CREATE INDEX IF NOT EXISTS idx_activities_user_start ON activities(user_id, start_date)`},
	{"badges", `
		CREATE TABLE IF NOT EXISTS badges (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type VARCHAR(20) NOT NULL,
			criteria JSONB NOT NULL DEFAULT '{}'::jsonb,
			sport_types TEXT[] NOT NULL DEFAULT '{}',
			prerequisites TEXT[] NOT NULL DEFAULT '{}',
			available_from DATE NOT NULL,
			available_until DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"user_badges", `
		CREATE TABLE IF NOT EXISTS user_badges (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			badge_id TEXT NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
			earned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, badge_id)
		)`},
	{"missions", `
		CREATE TABLE IF NOT EXISTS missions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			sport_type TEXT NOT NULL DEFAULT '',
			goal_type VARCHAR(20) NOT NULL,
			goal_value DOUBLE PRECISION NOT NULL CHECK (goal_value > 0),
			initial_day DATE NOT NULL,
			end_day DATE NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (end_day >= initial_day)
		)`},
	{"mission_attempts", `
		CREATE TABLE IF NOT EXISTS mission_attempts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			mission_id TEXT NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
			status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
			progress DOUBLE PRECISION NOT NULL DEFAULT 0,
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ NOT NULL,
			timezone TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, mission_id)
		)`},
	{"mission_progress", `
		CREATE TABLE IF NOT EXISTS mission_progress (
			id TEXT PRIMARY KEY,
			attempt_id TEXT NOT NULL REFERENCES mission_attempts(id) ON DELETE CASCADE,
			activity_id TEXT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
			progress_made DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (attempt_id, activity_id)
		)`},
	{"coin_transactions", `
		CREATE TABLE IF NOT EXISTS coin_transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"coin_transactions_user_idx", `
		CREATE INDEX IF NOT EXISTS idx_coin_transactions_user ON coin_transactions(user_id, created_at DESC)`},
	{"notifications", `
		CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			importance INTEGER NOT NULL,
			type VARCHAR(30) NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			created_at_user_tz TEXT NOT NULL
		)`},
}

// Migrate applies the schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.name, err)
		}
		log.Debug().Int("step", i+1).Str("migration", m.name).Msg("Migration applied")
	}
	log.Info().Int("count", len(migrations)).Msg("Database migrations completed")
	return nil
}
