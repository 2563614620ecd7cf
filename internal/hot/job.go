package hot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/memologist/memologist/internal/clock"
	"github.com/memologist/memologist/internal/model"
)

// ErrRunning is returned by RunOnce when a pass is already in progress.
var ErrRunning = errors.New("hot: run already in progress")

// Store is the persistence the job reads candidates from and writes to.
type Store interface {
	ListHotCandidates(ctx context.Context, since time.Time) ([]model.HotCandidate, error)
	UpdatePostHot(ctx context.Context, postID int64, points float64, check model.HotCheck) error
}

// Locker keeps several processes from running the same pass. ok is false
// when another holder owns key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// RunStats counts what one pass did with each scanned post.
type RunStats struct {
	Scanned      int `json:"scanned"`
	Checkpointed int `json:"checkpointed"`
	Decayed      int `json:"decayed"`
	Floored      int `json:"floored"`
	Failed       int `json:"failed"`
	// Skipped is true when another holder had the lock.
	Skipped bool `json:"skipped,omitempty"`
}

// Job rescans posts created within Window and decays their hot score. It
// ticks at Interval boundaries in Location (top of the hour by default).
type Job struct {
	Store    Store
	Clock    clock.Clock
	Logger   *slog.Logger
	Window   time.Duration
	Interval time.Duration
	Location *time.Location
	Locker   Locker

	running atomic.Bool
}

func (j *Job) defaults() {
	if j.Clock == nil {
		j.Clock = clock.Real()
	}
	if j.Logger == nil {
		j.Logger = slog.Default()
	}
	if j.Window <= 0 {
		j.Window = 7 * 24 * time.Hour
	}
	if j.Interval <= 0 {
		j.Interval = time.Hour
	}
	if j.Location == nil {
		j.Location = time.UTC
	}
}

// Start runs a pass at every interval boundary until ctx is done.
func (j *Job) Start(ctx context.Context) error {
	j.defaults()
	j.Logger.Info("hot: scheduler started", "interval", j.Interval, "window", j.Window, "location", j.Location.String())
	for {
		now := j.Clock.Now()
		wait := NextTick(now, j.Interval, j.Location).Sub(now)
		select {
		case <-ctx.Done():
			return nil
		case <-j.Clock.After(wait):
		}
		if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunning) {
			j.Logger.Error("hot: run failed", "error", err)
		}
	}
}

// RunOnce performs a single pass. A failure to write one post is logged
// and counted; only a failure to list candidates aborts the pass.
func (j *Job) RunOnce(ctx context.Context) (RunStats, error) {
	j.defaults()
	var stats RunStats
	if !j.running.CompareAndSwap(false, true) {
		return stats, ErrRunning
	}
	defer j.running.Store(false)

	now := j.Clock.Now()
	if j.Locker != nil {
		key := "memologist:hot:" + now.In(j.Location).Format("2006010215")
		unlock, ok, err := j.Locker.TryLock(ctx, key, j.Interval/2)
		switch {
		case err != nil:
			// A duplicate pass at the same instant changes nothing.
			j.Logger.Warn("hot: lock unavailable, running unlocked", "key", key, "error", err)
		case !ok:
			j.Logger.Info("hot: pass held elsewhere, skipping", "key", key)
			stats.Skipped = true
			return stats, nil
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					j.Logger.Warn("hot: unlock failed", "key", key, "error", err)
				}
			}()
		}
	}

	posts, err := j.Store.ListHotCandidates(ctx, now.Add(-j.Window))
	if err != nil {
		return stats, fmt.Errorf("hot: list candidates: %w", err)
	}
	for _, p := range posts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Scanned++
		cur := State{HotPoints: p.HotPoints, LastCheckPoints: p.HotCheck.LastCheckPoints, LastCheckDate: p.HotCheck.LastCheckDate}
		next, changed := Decay(cur, now)
		if cur.HotPoints <= Floor {
			stats.Floored++
			continue
		}
		if !changed {
			continue
		}
		check := model.HotCheck{LastCheckDate: next.LastCheckDate, LastCheckPoints: next.LastCheckPoints}
		if err := j.Store.UpdatePostHot(ctx, p.PostID, next.HotPoints, check); err != nil {
			stats.Failed++
			j.Logger.Error("hot: update post", "post", p.PostID, "error", err)
			continue
		}
		if cur.HotPoints > cur.LastCheckPoints {
			stats.Checkpointed++
		} else {
			stats.Decayed++
		}
	}
	j.Logger.Info("hot: pass completed",
		"scanned", stats.Scanned, "checkpointed", stats.Checkpointed,
		"decayed", stats.Decayed, "floored", stats.Floored, "failed", stats.Failed)
	return stats, nil
}

// NextTick returns the first interval boundary strictly after now,
// counted from midnight in loc.
func NextTick(now time.Time, interval time.Duration, loc *time.Location) time.Time {
	t := now.In(loc)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	n := t.Sub(midnight)/interval + 1
	return midnight.Add(n * interval)
}
