package calendar

import (
	"time"

	"github.com/noah-isme/studio-makeup-api/internal/models"
)

// Clock yields the studio-local calendar date. The engine takes "today" as an argument and never
// reads the wall clock itself.
type Clock func() models.Date

// StudioClock returns a Clock for the IANA timezone, falling back to UTC when it cannot be loaded.
func StudioClock(timezone string) Clock {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return func() models.Date {
		return models.DateOf(time.Now().In(loc))
	}
}

// Fixed always reports the same date.
func Fixed(date models.Date) Clock {
	return func() models.Date { return date }
}

// Today evaluates the clock. A nil Clock reads UTC.
func (c Clock) Today() models.Date {
	if c == nil {
		return models.DateOf(time.Now().UTC())
	}
	return c()
}
