// Package session maps UTC evaluation time to trading sessions, killzones,
// and the Power-of-Three phase used to gate bias establishment.
//
// All functions take the caller-supplied evaluation time — nothing here reads
// the system clock, so replays against historical data stay deterministic.
package session

import (
	"fmt"
	"time"

	"mss-enginev1/internal/model"
)

// Session names a forex trading session derived from the UTC hour.
type Session string

const (
	SessionAsia    Session = "asia"
	SessionLondon  Session = "london"
	SessionOverlap Session = "overlap"
	SessionNewYork Session = "newyork"
	SessionOff     Session = "off"
)

// Session boundaries in UTC hours.
const (
	asiaStart    = 0
	londonStart  = 7
	overlapStart = 12
	newYorkStart = 16
	newYorkEnd   = 21
)

// Current returns the session active at t.
func Current(t time.Time) Session {
	h := t.UTC().Hour()
	switch {
	case h >= newYorkEnd:
		return SessionOff
	case h >= newYorkStart:
		return SessionNewYork
	case h >= overlapStart:
		return SessionOverlap
	case h >= londonStart:
		return SessionLondon
	default:
		return SessionAsia
	}
}

// Phase is the Power-of-Three framing of a session.
type Phase string

const (
	PhaseAccumulation Phase = "ACCUMULATION"
	PhaseManipulation Phase = "MANIPULATION"
	PhaseDistribution Phase = "DISTRIBUTION"
)

// Intraday phase boundaries in UTC hours. Accumulation covers the first
// ~9 hours of the trading day; bias may only be established during it.
const (
	accumulationEndHour = 9
	manipulationEndHour = 14
)

// PhaseAt returns the Power-of-Three phase at t for the given trading
// timeframe. Intraday timeframes split the UTC day by hour; swing
// timeframes split the week by weekday.
func PhaseAt(t time.Time, tf model.Timeframe) Phase {
	u := t.UTC()
	if tf.Swing() {
		switch u.Weekday() {
		case time.Monday, time.Tuesday:
			return PhaseAccumulation
		case time.Wednesday:
			return PhaseManipulation
		default:
			return PhaseDistribution
		}
	}
	switch h := u.Hour(); {
	case h < accumulationEndHour:
		return PhaseAccumulation
	case h < manipulationEndHour:
		return PhaseManipulation
	default:
		return PhaseDistribution
	}
}

// Window is a UTC time-of-day range. Wrap-around midnight is supported:
// a window with End before Start covers [Start, 24h) ∪ [0h, End).
type Window struct {
	StartHour   int `yaml:"start_hour" validate:"min=0,max=23"`
	StartMinute int `yaml:"start_minute" validate:"min=0,max=59"`
	EndHour     int `yaml:"end_hour" validate:"min=0,max=23"`
	EndMinute   int `yaml:"end_minute" validate:"min=0,max=59"`
}

// Contains reports whether t's UTC time-of-day falls inside the window,
// start inclusive, end exclusive.
func (w Window) Contains(t time.Time) bool {
	u := t.UTC()
	hm := u.Hour()*60 + u.Minute()
	start := w.StartHour*60 + w.StartMinute
	end := w.EndHour*60 + w.EndMinute
	if start == end {
		return false
	}
	if start < end {
		return hm >= start && hm < end
	}
	// wrap-around midnight
	return hm >= start || hm < end
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.StartHour, w.StartMinute, w.EndHour, w.EndMinute)
}

// DayStart returns the UTC midnight of t's day. Used for daily resets and
// previous-day reference computation.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SameUTCDay reports whether a and b fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	return DayStart(a).Equal(DayStart(b))
}
