// Package calendar walks calendar dates looking for days that satisfy a caller-supplied predicate.
package calendar

import (
	"errors"
	"fmt"

	"github.com/noah-isme/studio-makeup-api/internal/models"
)

// DefaultHorizonDays bounds a walk when the caller passes a non-positive horizon.
const DefaultHorizonDays = 120

// ErrDeadlineUnreachable is returned when the search horizon is exhausted before n usable days are found.
var ErrDeadlineUnreachable = errors.New("calendar: usable day count not reached within search horizon")

// UsableFunc decides whether a date counts towards the walk.
type UsableFunc func(models.Date) bool

// FindNthUsableDate walks start+1, start+2, ... and returns the date on which the n-th usable day is
// reached. At most maxDays days are examined.
func FindNthUsableDate(start models.Date, n int, isUsable UsableFunc, maxDays int) (models.Date, error) {
	if n <= 0 {
		return models.Date{}, fmt.Errorf("calendar: n must be positive, got %d", n)
	}
	if maxDays <= 0 {
		maxDays = DefaultHorizonDays
	}
	found := 0
	for offset := 1; offset <= maxDays; offset++ {
		candidate := start.AddDays(offset)
		if !isUsable(candidate) {
			continue
		}
		found++
		if found == n {
			return candidate, nil
		}
	}
	return models.Date{}, fmt.Errorf("%w: found %d of %d usable days in %d days after %s", ErrDeadlineUnreachable, found, n, maxDays, start)
}

// Range returns every date in [from, to], inclusive. It returns nil when to is before from.
func Range(from, to models.Date) []models.Date {
	if to.Before(from) {
		return nil
	}
	days := from.DaysUntil(to) + 1
	out := make([]models.Date, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, from.AddDays(i))
	}
	return out
}
