package widget

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
)

// Scheduler defaults.
const (
	DefaultRefreshInterval = 5 * time.Minute
	DefaultSweepInterval   = time.Minute
	// DefaultClientLease is how long a page counts as visible after its last
	// report. Pages renew it every minute.
	DefaultClientLease = 3 * time.Minute
	PullThreshold      = 100
)

// Refresher reloads every channel.
type Refresher interface {
	RefreshAll(ctx context.Context, force bool)
}

// Sweeper drops expired state and reports how much was removed.
type Sweeper interface {
	Sweep() int
}

// Gesture is a completed vertical touch drag.
type Gesture struct {
	StartY    float64 `json:"startY"`
	EndY      float64 `json:"endY"`
	ScrollTop float64 `json:"scrollTop"`
}

// IsPull reports whether g is a pull-down from the top of the page.
func (g Gesture) IsPull() bool {
	return g.ScrollTop == 0 && g.EndY-g.StartY > PullThreshold
}

// Scheduler refreshes on a timer while at least one page is visible and
// sweeps expired state.
type Scheduler struct {
	refresher     Refresher
	sweepers      []Sweeper
	clock         clock.Clock
	interval      time.Duration
	sweepInterval time.Duration
	lease         time.Duration

	mu      sync.Mutex
	clients map[string]time.Time // client id -> lease expiry

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler creates a Scheduler. Zero intervals take the defaults.
func NewScheduler(r Refresher, interval, sweepInterval time.Duration, clk clock.Clock, sweepers ...Sweeper) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Scheduler{
		refresher:     r,
		sweepers:      sweepers,
		clock:         clk,
		interval:      interval,
		sweepInterval: sweepInterval,
		lease:         DefaultClientLease,
		clients:       make(map[string]time.Time),
	}
}

// Start runs an initial refresh and then the loop until Stop or ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	refresh := s.clock.Ticker(s.interval)
	sweep := s.clock.Ticker(s.sweepInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer refresh.Stop()
		defer sweep.Stop()

		log.WithField("interval", s.interval).Info("Scheduler: initial refresh")
		s.refresher.RefreshAll(ctx, false)

		for {
			select {
			case <-ctx.Done():
				return
			case <-refresh.C:
				if s.Visible() {
					s.refresher.RefreshAll(ctx, false)
				} else {
					log.Debug("Scheduler: no visible pages, skipping refresh")
				}
			case <-sweep.C:
				removed := 0
				for _, sw := range s.sweepers {
					removed += sw.Sweep()
				}
				if removed > 0 {
					log.WithField("removed", removed).Debug("Scheduler: swept expired entries")
				}
			}
		}
	}()
}

// Visible reports whether any page holds an unexpired visibility lease.
func (s *Scheduler) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked() > 0
}

// SetVisible records the visibility of one page. A visible report starts or
// renews its lease; a hidden one drops it. It reports whether the page was
// not visible before, in which case its data may be older than one interval.
func (s *Scheduler) SetVisible(client string, visible bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	_, was := s.clients[client]
	if !visible {
		delete(s.clients, client)
		return false
	}
	s.clients[client] = s.clock.Now().Add(s.lease)
	return !was
}

// pruneLocked drops lapsed leases and returns how many remain. Caller holds mu.
func (s *Scheduler) pruneLocked() int {
	now := s.clock.Now()
	for id, until := range s.clients {
		if !now.Before(until) {
			delete(s.clients, id)
		}
	}
	return len(s.clients)
}

// Stop ends the loop and waits for an in-flight refresh to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}
