package util

import (
	"time"
)

// TradingCalendar knows the regular weekday session of one exchange. It has
// no holiday table; callers that need one use the broker calendar.
type TradingCalendar struct {
	loc        *time.Location
	closeHour  int
	closeMin   int
	settleWait time.Duration
}

// NewTradingCalendar creates a calendar for a market whose regular session
// closes at 16:00 in loc. A nil loc means UTC.
func NewTradingCalendar(loc *time.Location) *TradingCalendar {
	if loc == nil {
		loc = time.UTC
	}
	return &TradingCalendar{loc: loc, closeHour: 16, closeMin: 0}
}

// WithSettle returns a copy whose sessions count as finished only settle
// after the close, to let after-hours data land.
func (tc *TradingCalendar) WithSettle(settle time.Duration) *TradingCalendar {
	c := *tc
	c.settleWait = settle
	return &c
}

// Location returns the calendar's time zone.
func (tc *TradingCalendar) Location() *time.Location { return tc.loc }

// IsTradingDay reports whether t falls on a weekday in the market zone.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	switch t.In(tc.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// SessionClose returns the close of the session on t's calendar day.
func (tc *TradingCalendar) SessionClose(t time.Time) time.Time {
	l := t.In(tc.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), tc.closeHour, tc.closeMin, 0, 0, tc.loc)
}

// LastSession returns midnight (market zone) of the most recent trading day
// whose session has finished at t.
func (tc *TradingCalendar) LastSession(t time.Time) time.Time {
	l := t.In(tc.loc)
	day := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, tc.loc)
	if !l.After(tc.SessionClose(l).Add(tc.settleWait)) {
		day = day.AddDate(0, 0, -1)
	}
	for !tc.IsTradingDay(day) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// LookbackRange returns [now-days, now] in the market zone.
func (tc *TradingCalendar) LookbackRange(now time.Time, days int) (time.Time, time.Time) {
	end := now.In(tc.loc)
	return end.AddDate(0, 0, -days), end
}
