// Package hot maintains the time-decaying "hot" score of recent posts.
package hot

import (
	"math"
	"time"
)

const (
	// Floor is the score at or below which posts are no longer adjusted.
	Floor = -20.0
	// RatePerMinute is the linear decay applied per minute since the last
	// checkpoint.
	RatePerMinute = 2.0 / 60.0
)

// State is the part of a post the decay touches.
type State struct {
	HotPoints       float64
	LastCheckPoints float64
	LastCheckDate   time.Time
}

// Decay computes the next state at now. changed is false when the post
// must not be written back.
//
// A rise since the last checkpoint moves the checkpoint up without decay,
// so any fresh interaction restarts the decay clock.
func Decay(s State, now time.Time) (next State, changed bool) {
	if s.HotPoints <= Floor {
		return s, false
	}
	if s.HotPoints > s.LastCheckPoints {
		return State{HotPoints: s.HotPoints, LastCheckPoints: s.HotPoints, LastCheckDate: now}, true
	}

	elapsed := elapsedMinutes(s.LastCheckDate, now)
	points := round2(s.HotPoints - elapsed*RatePerMinute)
	if points < Floor {
		points = Floor
	}
	next = State{HotPoints: points, LastCheckPoints: points, LastCheckDate: now}
	return next, points != s.HotPoints || points != s.LastCheckPoints
}

func elapsedMinutes(from, to time.Time) float64 {
	secs := math.Round(to.Sub(from).Seconds())
	if secs <= 0 {
		return 0
	}
	return secs / 60
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
