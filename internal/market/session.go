package market

import (
	"time"

	"gazp_advisor/internal/models"
)

// SessionFromHours builds a session clock for a venue with fixed daily
// hours in loc. Weekends count as closed; exchange holidays are out of
// scope for the simulation.
func SessionFromHours(now time.Time, openHour, closeHour int, loc *time.Location) models.SessionClock {
	local := now.In(loc)

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return models.SessionClock{}
	}

	open := time.Date(local.Year(), local.Month(), local.Day(), openHour, 0, 0, 0, loc)
	close := time.Date(local.Year(), local.Month(), local.Day(), closeHour, 0, 0, 0, loc)

	if local.Before(open) || !local.Before(close) {
		return models.SessionClock{}
	}

	return models.SessionClock{
		IsOpen:            true,
		MinutesSinceOpen:  int(local.Sub(open) / time.Minute),
		MinutesUntilClose: int(close.Sub(local) / time.Minute),
	}
}
