package services

import (
	"sync"
	"time"
)

// latest keeps the newest result of a refresh that may race with other
// refreshes. Results are tagged with the generation at which their refresh
// started; anything older than what is already stored is discarded.
type latest[T any] struct {
	mu    sync.RWMutex
	gen   uint64
	value T
	has   bool
	at    time.Time
	err   error
}

// apply stores value unless a newer generation has already landed
func (l *latest[T]) apply(gen uint64, value T, at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen < l.gen {
		return false
	}
	l.gen = gen
	l.value = value
	l.has = true
	l.at = at
	l.err = nil
	return true
}

// fail records err for a generation, keeping the last good value
func (l *latest[T]) fail(gen uint64, err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen < l.gen {
		return false
	}
	l.gen = gen
	l.err = err
	return true
}

func (l *latest[T]) get() (value T, ok bool, at time.Time, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value, l.has, l.at, l.err
}
