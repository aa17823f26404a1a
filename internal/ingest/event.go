package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fitness-league/internal/service"
)

// ActivityEvent is the normalized "activity ingested" message produced by
// the source integrations. Instants are RFC3339 strings or epoch milliseconds.
type ActivityEvent struct {
	ExternalID       string          `json:"externalId"`
	UserID           string          `json:"userId"`
	Name             string          `json:"name"`
	SportType        string          `json:"sportType"`
	AverageHeartRate *float64        `json:"averageHeartRate"`
	MaxHeartRate     *float64        `json:"maxHeartRate"`
	StartDate        json.RawMessage `json:"startDate"`
	EndDate          json.RawMessage `json:"endDate,omitempty"`
	Distance         float64         `json:"distance"`
	ElapsedTime      int             `json:"elapsedTime"`
	MovingTime       int             `json:"movingTime"`
}

// decodeEvent parses a message value into an admission candidate.
func decodeEvent(raw []byte) (service.Candidate, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var ev ActivityEvent
	if err := dec.Decode(&ev); err != nil {
		return service.Candidate{}, fmt.Errorf("decode activity event: %w", err)
	}
	if strings.TrimSpace(ev.ExternalID) == "" {
		return service.Candidate{}, errors.New("externalId missing or empty")
	}
	if strings.TrimSpace(ev.UserID) == "" {
		return service.Candidate{}, errors.New("userId missing or empty")
	}

	start, err := parseInstant(ev.StartDate)
	if err != nil {
		return service.Candidate{}, fmt.Errorf("startDate: %w", err)
	}
	var end time.Time
	if len(ev.EndDate) > 0 && string(ev.EndDate) != "null" {
		if end, err = parseInstant(ev.EndDate); err != nil {
			return service.Candidate{}, fmt.Errorf("endDate: %w", err)
		}
	}

	return service.Candidate{
		ExternalID:       strings.TrimSpace(ev.ExternalID),
		UserID:           strings.TrimSpace(ev.UserID),
		Name:             ev.Name,
		SportType:        ev.SportType,
		AverageHeartRate: ev.AverageHeartRate,
		MaxHeartRate:     ev.MaxHeartRate,
		StartDate:        start,
		EndDate:          end,
		Distance:         ev.Distance,
		ElapsedTime:      ev.ElapsedTime,
		MovingTime:       ev.MovingTime,
	}, nil
}

// parseInstant accepts RFC3339 strings and epoch milliseconds given as a
// number or a numeric string.
func parseInstant(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, errors.New("field missing")
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		trimmed := strings.TrimSpace(asString)
		if trimmed == "" {
			return time.Time{}, errors.New("empty string")
		}
		if ts, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
			return ts.UTC(), nil
		}
		if millis, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return time.UnixMilli(millis).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unsupported instant %q", trimmed)
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		if millis, err := asNumber.Int64(); err == nil {
			return time.UnixMilli(millis).UTC(), nil
		}
	}
	return time.Time{}, errors.New("instant format not recognized")
}
