package authcore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// RefreshScheduler keeps an authenticated session alive: on a fixed
// interval it checks the remaining token lifetime and rotates the pair
// once it drops inside the rotation lead. Each tick also checks
// wall-clock expiry, so a sleeping laptop that wakes past the token's
// lifetime transitions to [StateExpired] instead of presenting a dead
// token.
//
// The scheduler holds no session state of its own; it only triggers the
// controller. It stops itself when the session ends: a tick that finds
// the controller outside [StateAuthenticated] is a no-op, and a refresh
// that reports [ErrSessionExpired] stops the loop for good.
type RefreshScheduler struct {
	controller *Controller
	interval   time.Duration
	lead       time.Duration
	now        func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRefreshScheduler validates cfg and returns a scheduler; call Start
// to begin ticking.
func NewRefreshScheduler(controller *Controller, cfg SchedulerConfig) (*RefreshScheduler, error) {
	if controller == nil {
		return nil, errors.New("scheduler requires a controller")
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &RefreshScheduler{
		controller: controller,
		interval:   cfg.Interval,
		lead:       cfg.RotationLead,
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start launches the refresh loop. It returns immediately; the loop runs
// until Stop is called, ctx is cancelled, or the session expires.
func (s *RefreshScheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *RefreshScheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.controller.CheckExpiry(ctx) {
				return
			}
			sess := s.controller.Session()
			if sess == nil {
				continue
			}
			if sess.ExpiresAt.Sub(s.now()) > s.lead {
				continue
			}
			// Transient failures are left for the next tick; only a
			// rejected refresh token ends the loop.
			if err := s.controller.Refresh(ctx); errors.Is(err, ErrSessionExpired) {
				return
			}
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the loop. Idempotent and safe to call before Start;
// in-flight refreshes are not interrupted (logout handles that).
func (s *RefreshScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Done is closed once the loop has exited.
func (s *RefreshScheduler) Done() <-chan struct{} {
	return s.done
}
