// Package circuit sheds calls to a dependency that keeps failing.
package circuit

import (
	"errors"
	"sync"
	"time"
)

var ErrOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Settings tune a Breaker. Zero fields fall back to the defaults.
type Settings struct {
	// Trips is the number of consecutive failures that open a closed circuit.
	Trips int
	// Recoveries is the number of consecutive probe successes that close it again.
	Recoveries int
	Cooldown   time.Duration
}

var defaults = Settings{Trips: 5, Recoveries: 2, Cooldown: 30 * time.Second}

func (s Settings) withDefaults() Settings {
	if s.Trips <= 0 {
		s.Trips = defaults.Trips
	}
	if s.Recoveries <= 0 {
		s.Recoveries = defaults.Recoveries
	}
	if s.Cooldown <= 0 {
		s.Cooldown = defaults.Cooldown
	}
	return s
}

// Transition is invoked after every state change, outside the lock.
type Transition func(name string, from, to State)

// Breaker counts consecutive outcomes. An open circuit rejects calls until
// the cooldown has passed, then lets exactly one probe run at a time.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time
	notify   Transition

	mu       sync.Mutex
	state    State
	streak   int
	openedAt time.Time
	inFlight bool
}

type Option func(*Breaker)

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func OnTransition(fn Transition) Option {
	return func(b *Breaker) { b.notify = fn }
}

func New(name string, s Settings, opts ...Option) *Breaker {
	b := &Breaker{name: name, settings: s.withDefaults(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow returns ErrOpen when the call must not run. A nil result obliges the
// caller to report the outcome through Done.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	from := b.state
	err := b.admit()
	to := b.state
	b.mu.Unlock()

	b.emit(from, to)
	return err
}

func (b *Breaker) admit() error {
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.settings.Cooldown {
			return ErrOpen
		}
		b.state, b.streak = StateHalfOpen, 0
	}
	if b.state == StateHalfOpen {
		if b.inFlight {
			return ErrOpen
		}
		b.inFlight = true
	}
	return nil
}

// Done reports the outcome of an admitted call.
func (b *Breaker) Done(ok bool) {
	b.mu.Lock()
	from := b.state
	b.inFlight = false
	switch {
	case from == StateOpen:
		// A call admitted before the trip finished late; it carries no signal.
	case ok && from == StateClosed:
		b.streak = 0
	case ok:
		b.streak++
		if b.streak >= b.settings.Recoveries {
			b.state, b.streak = StateClosed, 0
		}
	case from == StateHalfOpen:
		b.trip()
	default:
		b.streak++
		if b.streak >= b.settings.Trips {
			b.trip()
		}
	}
	to := b.state
	b.mu.Unlock()

	b.emit(from, to)
}

func (b *Breaker) trip() {
	b.state, b.streak = StateOpen, 0
	b.openedAt = b.now()
}

func (b *Breaker) emit(from, to State) {
	if from != to && b.notify != nil {
		b.notify(b.name, from, to)
	}
}
