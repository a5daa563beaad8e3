package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// SlotStatus is the soft-deactivation state of a recurring slot.
type SlotStatus string

// Slot statuses. Slots are never physically deleted while history references them.
const (
	SlotStatusActive   SlotStatus = "active"
	SlotStatusInactive SlotStatus = "inactive"
)

// Modality describes a class format and carries its seat capacity.
type Modality struct {
	ID              string `db:"id" json:"id"`
	Name            string `db:"name" json:"name"`
	Capacity        int    `db:"capacity" json:"capacity"`
	DurationMinutes int    `db:"duration_minutes" json:"duration_minutes"`
}

// RecurringSlot is a standing weekly class offering.
type RecurringSlot struct {
	ID        string     `db:"id" json:"id"`
	Weekday   int        `db:"weekday" json:"weekday"`
	StartTime ClockTime  `db:"start_time" json:"start_time"`
	EndTime   ClockTime  `db:"end_time" json:"end_time"`
	TeacherID string     `db:"teacher_id" json:"teacher_id"`
	Status    SlotStatus `db:"status" json:"status"`

	ModalityID      string `db:"modality_id" json:"modality_id"`
	ModalityName    string `db:"modality_name" json:"modality_name"`
	Capacity        int    `db:"capacity" json:"capacity"`
	DurationMinutes int    `db:"duration_minutes" json:"duration_minutes"`
}

// Active reports whether the slot is currently offered.
func (s RecurringSlot) Active() bool { return s.Status == SlotStatusActive }

// Overlaps reports whether two time ranges on the same weekday intersect.
func (s RecurringSlot) Overlaps(other RecurringSlot) bool {
	return s.Weekday == other.Weekday && s.StartTime < other.EndTime && other.StartTime < s.EndTime
}

// ClockTime is a wall-clock time of day stored as minutes after midnight.
type ClockTime int

// ParseClockTime parses HH:MM or HH:MM:SS.
func ParseClockTime(raw string) (ClockTime, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return ClockTime(t.Hour()*60 + t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("parse clock time %q", raw)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Value implements driver.Valuer using the HH:MM:SS layout PostgreSQL expects for TIME.
func (c ClockTime) Value() (driver.Value, error) {
	return c.String() + ":00", nil
}

// Scan implements sql.Scanner for TIME columns.
func (c *ClockTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*c = ClockTime(v.Hour()*60 + v.Minute())
		return nil
	case []byte:
		return c.scanString(string(v))
	case string:
		return c.scanString(v)
	case int64:
		*c = ClockTime(v)
		return nil
	default:
		return fmt.Errorf("scan clock time: unsupported type %T", src)
	}
}

func (c *ClockTime) scanString(raw string) error {
	parsed, err := ParseClockTime(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalText encodes as HH:MM.
func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes HH:MM.
func (c *ClockTime) UnmarshalText(data []byte) error {
	return c.scanString(string(data))
}
