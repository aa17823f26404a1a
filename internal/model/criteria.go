package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Criteria errors.
var (
	ErrUnknownBadgeType = errors.New("unknown badge type")
	ErrCriteriaMismatch = errors.New("criteria do not match badge type")
)

// Criteria is the type specific award rule of a badge. Each badge type has
// exactly one criteria struct; the badge row's type column is the discriminator.
type Criteria interface {
	BadgeType() BadgeType
}

// DisciplineCriteria requires MinActivities valid activities in each of
// NumberOfWeeks consecutive ISO weeks.
type DisciplineCriteria struct {
	NumberOfWeeks int `json:"numberOfWeeks"`
	MinActivities int `json:"minActivities"`
}

// DistanceCriteria requires a total distance within the badge window.
type DistanceCriteria struct {
	MinMetersDistance float64 `json:"minMetersDistance"`
}

// TimeCriteria requires a total elapsed time within the badge window.
type TimeCriteria struct {
	MinMinutes float64 `json:"minMinutes"`
}

// MissionCriteria requires an ACHIEVED attempt of a mission.
type MissionCriteria struct {
	MissionID string `json:"missionId"`
}

// RankingCriteria requires membership of a league.
type RankingCriteria struct {
	LeagueID string `json:"rankingLeagueId"`
}

func (DisciplineCriteria) BadgeType() BadgeType { return BadgeDiscipline }
func (DistanceCriteria) BadgeType() BadgeType   { return BadgeDistance }
func (TimeCriteria) BadgeType() BadgeType       { return BadgeTime }
func (MissionCriteria) BadgeType() BadgeType    { return BadgeMission }
func (RankingCriteria) BadgeType() BadgeType    { return BadgeRanking }

// DecodeCriteria parses the JSON criteria of a badge of type t.
// Empty or null input yields the zero criteria of the type.
func DecodeCriteria(t BadgeType, raw []byte) (Criteria, error) {
	var c Criteria
	switch t {
	case BadgeDiscipline:
		var v DisciplineCriteria
		if err := unmarshalCriteria(raw, &v); err != nil {
			return nil, err
		}
		c = v
	case BadgeDistance:
		var v DistanceCriteria
		if err := unmarshalCriteria(raw, &v); err != nil {
			return nil, err
		}
		c = v
	case BadgeTime:
		var v TimeCriteria
		if err := unmarshalCriteria(raw, &v); err != nil {
			return nil, err
		}
		c = v
	case BadgeMission:
		var v MissionCriteria
		if err := unmarshalCriteria(raw, &v); err != nil {
			return nil, err
		}
		c = v
	case BadgeRanking:
		var v RankingCriteria
		if err := unmarshalCriteria(raw, &v); err != nil {
			return nil, err
		}
		c = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBadgeType, t)
	}
	return c, nil
}

func unmarshalCriteria(raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode criteria: %w", err)
	}
	return nil
}

// EncodeCriteria serializes criteria for storage.
func EncodeCriteria(c Criteria) ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

// Validate checks that the badge has a known type and criteria of that type.
func (b *Badge) Validate() error {
	if !b.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownBadgeType, b.Type)
	}
	if b.Criteria == nil || b.Criteria.BadgeType() != b.Type {
		return fmt.Errorf("%w: badge %s", ErrCriteriaMismatch, b.Type)
	}
	if b.AvailableUntil.Before(b.AvailableFrom) {
		return errors.New("badge availability window ends before it starts")
	}
	return nil
}
