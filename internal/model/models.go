// Package model defines the records of the fitness league engine.
package model

import "time"

// User is a participant. WeeklyScores maps an ISO week key ("2024-W07") to
// the points earned that week; CurrentWeekScore mirrors the bucket of the
// running week and is reset by the weekly rotation.
type User struct {
	ID               string         `db:"id"`
	Email            string         `db:"email"`
	Name             string         `db:"name"`
	Timezone         string         `db:"timezone"`
	IsActive         bool           `db:"is_active"`
	LeagueID         *string        `db:"league_id"`
	WeeklyScores     map[string]int `db:"weekly_scores"`
	CurrentWeekScore int            `db:"current_week_score"`
	Coins            int64          `db:"coins"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// InLeague reports whether the user is currently placed in leagueID.
func (u *User) InLeague(leagueID string) bool {
	return u.LeagueID != nil && *u.LeagueID == leagueID
}

// Activity is an admitted workout. Instants are stored in UTC; the *UserTZ
// strings carry the same instants rendered in the user's timezone and the
// epoch fields serve the overlap range queries.
type Activity struct {
	ID               string    `db:"id"`
	ExternalID       string    `db:"external_id"`
	UserID           string    `db:"user_id"`
	Name             string    `db:"name"`
	SportType        string    `db:"sport_type"`
	StartDate        time.Time `db:"start_date"`
	EndDate          time.Time `db:"end_date"`
	StartDateUserTZ  string    `db:"start_date_user_tz"`
	EndDateUserTZ    string    `db:"end_date_user_tz"`
	StartEpochMs     int64     `db:"start_epoch_ms"`
	EndEpochMs       int64     `db:"end_epoch_ms"`
	CreatedAt        time.Time `db:"created_at"`
	CreatedAtUserTZ  string    `db:"created_at_user_tz"`
	CreatedEpochMs   int64     `db:"created_epoch_ms"`
	AverageHeartRate *float64  `db:"average_heart_rate"`
	MaxHeartRate     *float64  `db:"max_heart_rate"`
	Distance         float64   `db:"distance"`
	ElapsedTime      int       `db:"elapsed_time"`
	MovingTime       int       `db:"moving_time"`
	Points           int       `db:"points"`
	EffortFactor     float64   `db:"effort_factor"`
	IsValid          bool      `db:"is_valid"`
	InvalidReason    *string   `db:"invalid_reason"`
	WeekInUserTZ     int       `db:"week_user_tz"`
	YearInUserTZ     int       `db:"year_user_tz"`
}

// HeartRate returns the average heart rate, treating a missing value as zero.
func (a *Activity) HeartRate() float64 {
	if a.AverageHeartRate == nil {
		return 0
	}
	return *a.AverageHeartRate
}

// Badge is an achievement definition. AvailableFrom and AvailableUntil are
// calendar dates; the window is interpreted in each user's timezone.
type Badge struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Description    string    `db:"description"`
	Type           BadgeType `db:"type"`
	Criteria       Criteria  `db:"criteria"`
	SportTypes     []string  `db:"sport_types"`
	Prerequisites  []string  `db:"prerequisites"`
	AvailableFrom  time.Time `db:"available_from"`
	AvailableUntil time.Time `db:"available_until"`
	CreatedAt      time.Time `db:"created_at"`
}

// CoversAllSports reports whether the badge applies to every sport type.
func (b *Badge) CoversAllSports() bool {
	for _, s := range b.SportTypes {
		if s == SportTypeAll {
			return true
		}
	}
	return false
}

// CoversSport reports whether the badge applies to sportType.
func (b *Badge) CoversSport(sportType string) bool {
	if b.CoversAllSports() {
		return true
	}
	for _, s := range b.SportTypes {
		if s == sportType {
			return true
		}
	}
	return false
}

// SportFilter returns the sport types to filter activities by, or nil when
// the badge covers every sport.
func (b *Badge) SportFilter() []string {
	if b.CoversAllSports() {
		return nil
	}
	return b.SportTypes
}

// UserBadge records that a user earned a badge. (UserID, BadgeID) is unique.
type UserBadge struct {
	ID       string    `db:"id"`
	UserID   string    `db:"user_id"`
	BadgeID  string    `db:"badge_id"`
	EarnedAt time.Time `db:"earned_at"`
}

// Mission is a time-boxed challenge. InitialDay and EndDay are calendar dates.
type Mission struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	SportType   string          `db:"sport_type"`
	GoalType    MissionGoalType `db:"goal_type"`
	GoalValue   float64         `db:"goal_value"`
	InitialDay  time.Time       `db:"initial_day"`
	EndDay      time.Time       `db:"end_day"`
	IsActive    bool            `db:"is_active"`
	CreatedAt   time.Time       `db:"created_at"`
}

// MissionAttempt is a user's enrollment in a mission.
type MissionAttempt struct {
	ID        string        `db:"id"`
	UserID    string        `db:"user_id"`
	MissionID string        `db:"mission_id"`
	Status    AttemptStatus `db:"status"`
	Progress  float64       `db:"progress"`
	StartDate time.Time     `db:"start_date"`
	EndDate   time.Time     `db:"end_date"`
	Timezone  string        `db:"timezone"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`

	// Mission is populated when the attempt is loaded together with its mission.
	Mission *Mission `db:"-"`
}

// Covers reports whether t falls inside the attempt window, bounds included.
func (a *MissionAttempt) Covers(t time.Time) bool {
	return !t.Before(a.StartDate) && !t.After(a.EndDate)
}

// MissionProgress is one entry of the per-attempt progress ledger.
// (AttemptID, ActivityID) is unique.
type MissionProgress struct {
	ID           string    `db:"id"`
	AttemptID    string    `db:"attempt_id"`
	ActivityID   string    `db:"activity_id"`
	ProgressMade float64   `db:"progress_made"`
	CreatedAt    time.Time `db:"created_at"`
}

// RankingCategory groups leagues. A lower Order is a higher tier; order 0 is the top.
type RankingCategory struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Order     int       `db:"sort_order"`
	CreatedAt time.Time `db:"created_at"`
}

// RankingLeague is one rung of a category. Level 1 is the top of its category.
type RankingLeague struct {
	ID         string    `db:"id"`
	CategoryID string    `db:"category_id"`
	Level      int       `db:"level"`
	CreatedAt  time.Time `db:"created_at"`
}

// CoinTransaction is an entry of the coin ledger.
type CoinTransaction struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Notification is a message addressed to a user.
type Notification struct {
	ID              string           `db:"id" json:"id"`
	UserID          string           `db:"user_id" json:"user_id"`
	Importance      int              `db:"importance" json:"importance"`
	Type            NotificationType `db:"type" json:"type"`
	Title           string           `db:"title" json:"title"`
	Message         string           `db:"message" json:"message"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	CreatedAtUserTZ string           `db:"created_at_user_tz" json:"created_at_user_tz"`
}
