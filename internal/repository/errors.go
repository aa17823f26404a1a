// Package repository provides the PostgreSQL data access layer.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Not found errors.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrActivityNotFound = errors.New("activity not found")
	ErrBadgeNotFound    = errors.New("badge not found")
	ErrMissionNotFound  = errors.New("mission not found")
	ErrAttemptNotFound  = errors.New("mission attempt not found")
	ErrLeagueNotFound   = errors.New("ranking league not found")
)

// Conflict errors, mapped from unique constraint violations.
var (
	ErrActivityExists      = errors.New("activity already exists")
	ErrBadgeAlreadyAwarded = errors.New("badge already awarded")
	ErrAttemptExists       = errors.New("mission attempt already exists")
	ErrCategoryExists      = errors.New("ranking category already exists")
	ErrLeagueExists        = errors.New("ranking league already exists")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
