package service

import "errors"

// Validation errors.
var (
	ErrNegativeInput     = errors.New("heart rate and moving time must not be negative")
	ErrInvalidCandidate  = errors.New("invalid activity candidate")
	ErrInvalidThresholds = errors.New("promotion and relegation counts must not be negative")
)

// Mission errors.
var (
	ErrUserInactive    = errors.New("user is not active")
	ErrMissionInactive = errors.New("mission is not active")
	ErrAlreadySignedUp = errors.New("user already signed up for mission")
)

// League errors.
var (
	ErrEmptyLadder     = errors.New("ranking ladder has no leagues")
	ErrNoCategoryNames = errors.New("at least one category name is required")
)
