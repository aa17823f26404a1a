package model

// Invalid activity reasons, in evaluation priority order.
const (
	ReasonOverlap       = "The activity overlaps with another that you already have. You cannot have multiple activities loaded in the same period of time."
	ReasonWeekMismatch  = "The activity must be uploaded the same week it was performed"
	ReasonLowHeartRateF = "The average heart rate must be above %d bpm to be considered as exercise"
)

// SportTypeAll is the badge sport type wildcard.
const SportTypeAll = "All"

// BadgeType discriminates badge criteria.
type BadgeType string

// Badge types.
const (
	BadgeDiscipline BadgeType = "DISCIPLINE"
	BadgeDistance   BadgeType = "DISTANCE"
	BadgeTime       BadgeType = "TIME"
	BadgeMission    BadgeType = "MISSION"
	BadgeRanking    BadgeType = "RANKING"
)

// ActivityBadgeTypes are the badge types evaluated when an activity is admitted.
func ActivityBadgeTypes() []BadgeType {
	return []BadgeType{BadgeTime, BadgeDistance, BadgeDiscipline}
}

// Valid reports whether t is a known badge type.
func (t BadgeType) Valid() bool {
	switch t {
	case BadgeDiscipline, BadgeDistance, BadgeTime, BadgeMission, BadgeRanking:
		return true
	}
	return false
}

// MissionGoalType selects how an activity contributes to a mission.
type MissionGoalType string

// Mission goal types.
const (
	GoalDistance  MissionGoalType = "DISTANCE"  // kilometers
	GoalFrequency MissionGoalType = "FREQUENCY" // activities
	GoalDuration  MissionGoalType = "DURATION"  // minutes of moving time
)

// Valid reports whether g is a known goal type.
func (g MissionGoalType) Valid() bool {
	switch g {
	case GoalDistance, GoalFrequency, GoalDuration:
		return true
	}
	return false
}

// AttemptStatus is the lifecycle state of a mission attempt.
type AttemptStatus string

// Attempt statuses. ACTIVE is the only non terminal state.
const (
	AttemptActive      AttemptStatus = "ACTIVE"
	AttemptAchieved    AttemptStatus = "ACHIEVED"
	AttemptNotAchieved AttemptStatus = "NOT_ACHIEVED"
)

// NotificationType classifies notifications.
type NotificationType string

// Notification types.
const (
	NotifyNewActivity     NotificationType = "NEW_ACTIVITY"
	NotifyInvalidActivity NotificationType = "INVALID_ACTIVITY"
	NotifyNewBadge        NotificationType = "NEW_BADGE"
	NotifyMissionAchieved NotificationType = "MISSION_ACHIEVED"
	NotifyPromote         NotificationType = "PROMOTE"
	NotifyRelegate        NotificationType = "RELEGATE"
	NotifyRemain          NotificationType = "REMAIN"
)

// Notification importance levels.
const (
	ImportanceLow    = 1
	ImportanceNormal = 2
)

// Coin transaction types.
const (
	CoinTxWeeklyPoints = "WEEKLY_POINTS" // weekly score converted on rotation
)

// Movement is the outcome of a user's weekly rotation.
type Movement string

// Movements.
const (
	MovementPromote  Movement = "PROMOTE"
	MovementRelegate Movement = "RELEGATE"
	MovementRemain   Movement = "REMAIN"
)

// RotationResult is what the repository reports after rotating one user.
type RotationResult struct {
	User      *User
	Converted int64
}

// ProgressResult is what the repository reports after applying mission progress.
type ProgressResult struct {
	// Applied is false when the attempt was no longer ACTIVE or the activity
	// had already been counted for it.
	Applied  bool
	Progress float64
	Status   AttemptStatus
	// Achieved is true only for the call that moved the attempt to ACHIEVED.
	Achieved bool
}

// FinalizedAttempt is an attempt closed by mission finalization.
type FinalizedAttempt struct {
	AttemptID string
	UserID    string
	Status    AttemptStatus
	Progress  float64
}

// FinalizeResult is the outcome of finalizing a mission.
type FinalizeResult struct {
	MissionID string
	// Deactivated is false when the mission had already been finalized.
	Deactivated bool
	Attempts    []FinalizedAttempt
}
