package attendance

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type distinguishes arrivals from departures.
type Type string

const (
	CheckIn  Type = "check-in"
	CheckOut Type = "check-out"
)

// Valid reports whether t is a known record type.
func (t Type) Valid() bool { return t == CheckIn || t == CheckOut }

// ParseType accepts "check-in"/"check-out" and the forms without a hyphen.
func ParseType(s string) (Type, error) {
	switch s {
	case "check-in", "checkin":
		return CheckIn, nil
	case "check-out", "checkout":
		return CheckOut, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// Location is where a record was made.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Record is one immutable attendance event.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"type"`
	Location  *Location `json:"location,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

func (r Record) validate() error {
	switch {
	case r.ID == "":
		return errors.New("record without id")
	case r.UserID == "":
		return fmt.Errorf("record %s without user", r.ID)
	case r.Timestamp.IsZero():
		return fmt.Errorf("record %s without timestamp", r.ID)
	case !r.Type.Valid():
		return fmt.Errorf("record %s has unknown type %q", r.ID, r.Type)
	}
	return nil
}

func decodeRecords(raw []byte) ([]Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}
	return records, nil
}
