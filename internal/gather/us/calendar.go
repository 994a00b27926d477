package us

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// calendarSource is the part of the Alpaca trading client used here.
type calendarSource interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// A session's bar is considered final after 20:05 ET, once extended hours
// data has settled.
const (
	settleHour   = 20
	settleMinute = 5
)

// latestFinishedTradingDay returns midnight ET of the last session finished
// at now, according to the Alpaca trading calendar.
func latestFinishedTradingDay(cal calendarSource, now time.Time, et *time.Location) (time.Time, error) {
	now = now.In(et)
	start := now.AddDate(0, 0, -7)

	calendar, err := cal.GetCalendar(alpaca.GetCalendarRequest{
		Start: start,
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}

	if len(calendar) == 0 {
		return time.Time{}, fmt.Errorf("no trading days returned from calendar")
	}

	today := now.Format("2006-01-02")
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), settleHour, settleMinute, 0, 0, et)

	for i := len(calendar) - 1; i >= 0; i-- {
		day := calendar[i]
		dayDate, err := time.ParseInLocation("2006-01-02", day.Date, et)
		if err != nil {
			continue
		}
		if day.Date == today {
			if now.After(cutoff) {
				return dayDate, nil
			}
			continue
		}
		if dayDate.Before(now) {
			return dayDate, nil
		}
	}

	return time.Time{}, fmt.Errorf("could not determine latest finished trading day")
}
