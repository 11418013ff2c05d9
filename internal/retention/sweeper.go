// Package retention removes conversations whose last activity has aged
// out of the retention window. Tasks are never touched; only chat
// history expires.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/db"
	"github.com/uneezaismail/hackathon-todo-sub007/internal/logging"
)

// Sweeper runs the retention sweep on a fixed schedule.
type Sweeper struct {
	store    *db.Store
	window   time.Duration
	interval time.Duration
	cron     *cron.Cron
}

func NewSweeper(store *db.Store, window, interval time.Duration) *Sweeper {
	if window <= 0 {
		window = 48 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		store:    store,
		window:   window,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start schedules the periodic sweep and returns immediately. An
// initial sweep runs right away so a long-stopped server catches up
// without waiting a full interval.
func (s *Sweeper) Start() {
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		if _, err := s.SweepOnce(context.Background()); err != nil {
			logging.Errorf("retention: sweep failed: %v", err)
		}
	}))
	s.cron.Start()

	go func() {
		if _, err := s.SweepOnce(context.Background()); err != nil {
			logging.Errorf("retention: initial sweep failed: %v", err)
		}
	}()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// SweepOnce deletes all conversations idle longer than the window.
// The cutoff is computed once, up front; activity arriving while the
// sweep runs can only postpone deletion, never cause it.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.window)
	n, err := s.store.SweepConversations(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Infof("retention: removed %d expired conversations (cutoff %s)", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}
