package store

import (
	"context"
	"sync/atomic"
	"time"

	"backoffice-service/internal/util"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// State of a supervised connection
type State int32

const (
	StateConnecting State = iota
	StateReady
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Pinger is anything whose liveness can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// Supervisor probes a connection periodically. When a probe fails it enters
// a reconnect loop with exponential backoff until the connection answers
// again or the supervisor is stopped.
type Supervisor struct {
	target      Pinger
	interval    time.Duration
	pingTimeout time.Duration
	newBackOff  func() backoff.BackOff
	state       atomic.Int32
	logger      *zap.Logger
}

// NewSupervisor creates a supervisor probing target every interval
func NewSupervisor(target Pinger, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &Supervisor{
		target:      target,
		interval:    interval,
		pingTimeout: 3 * time.Second,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		logger: util.GetLogger(),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// State returns the current connection state
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Ready reports whether the last probe succeeded
func (s *Supervisor) Ready() bool {
	return s.State() == StateReady
}

// Run blocks until ctx is cancelled
func (s *Supervisor) Run(ctx context.Context) {
	defer s.setState(StateClosed)

	s.recover(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ping(ctx); err != nil {
				s.logger.Warn("Database connection lost, reconnecting", zap.Error(err))
				s.setState(StateReconnecting)
				s.recover(ctx)
			}
		}
	}
}

func (s *Supervisor) recover(ctx context.Context) {
	attempt := 0
	op := func() error {
		attempt++
		err := s.ping(ctx)
		if err != nil {
			s.logger.Debug("Database ping failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(s.newBackOff(), ctx)); err != nil {
		return
	}

	if s.State() != StateReady {
		s.logger.Info("Database connection ready", zap.Int("attempts", attempt))
	}
	s.setState(StateReady)
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	if st == StateReady {
		util.DatabaseUp.Set(1)
	} else {
		util.DatabaseUp.Set(0)
	}
}

func (s *Supervisor) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	return s.target.Ping(ctx)
}
