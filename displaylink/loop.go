// Package displaylink provides the periodic frame signal that drives
// annotation syncing, and serializes work onto the goroutine that runs it.
package displaylink

import (
	"annotation-server/core"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultFrameRate = 60

var (
	ErrStopped = errors.New("display loop is not running")
	ErrRunning = errors.New("display loop is already running")
)

type (
	observer struct {
		fn func()
	}

	subscription struct {
		loop *Loop
		obs  *observer
		once sync.Once
	}

	request struct {
		fn   func()
		done chan struct{}
	}
)

// Loop fires its observers once per frame. Everything that touches state
// owned by observers must go through Do so it runs between frames on the
// loop goroutine.
type Loop struct {
	interval time.Duration

	mu        sync.Mutex
	observers []*observer
	running   bool

	requests chan request
	stopped  chan struct{}

	// OnTick, if set, receives the time spent firing observers for each frame.
	OnTick func(elapsed time.Duration)
}

// NewLoop returns a loop ticking frameRate times per second. A frameRate
// of zero or less selects DefaultFrameRate.
func NewLoop(frameRate int) *Loop {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Loop{
		interval: time.Second / time.Duration(frameRate),
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}
}

// Interval is the time between two frames.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Observe registers fn to run on every frame, after the observers
// registered before it.
func (l *Loop) Observe(fn func()) core.Cancelable {
	obs := &observer{fn: fn}

	l.mu.Lock()
	l.observers = append(l.observers, obs)
	l.mu.Unlock()

	return &subscription{loop: l, obs: obs}
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.loop.mu.Lock()
		defer s.loop.mu.Unlock()
		for i, obs := range s.loop.observers {
			if obs == s.obs {
				s.loop.observers = append(s.loop.observers[:i], s.loop.observers[i+1:]...)
				return
			}
		}
	})
}

// Observers returns the number of active subscriptions.
func (l *Loop) Observers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.observers)
}

// Tick fires every observer once on the calling goroutine.
func (l *Loop) Tick() {
	l.mu.Lock()
	observers := make([]*observer, len(l.observers))
	copy(observers, l.observers)
	l.mu.Unlock()

	start := time.Now()
	for _, obs := range observers {
		obs.fn()
	}
	if l.OnTick != nil {
		l.OnTick(time.Since(start))
	}
}

// Run ticks until ctx is done, executing functions passed to Do between
// frames. A loop can only be run once.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrRunning
	}
	l.running = true
	l.mu.Unlock()
	defer close(l.stopped)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	logrus.WithField("interval", l.interval).Info("Display loop started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Display loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		case req := <-l.requests:
			req.fn()
			close(req.done)
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to return. ctx only
// bounds the wait for the loop to accept fn; once accepted, fn runs to
// completion before Do returns, so callers may read what fn wrote.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}

	select {
	case l.requests <- req:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	<-req.done
	return nil
}
