package services

import (
	"sync"
	"time"
)

// Clock returns the current instant
type Clock func() time.Time

var (
	clock   Clock = func() time.Time { return time.Now().UTC() }
	clockMu sync.RWMutex
)

// Now returns the service clock's current instant in UTC
func Now() time.Time {
	clockMu.RLock()
	defer clockMu.RUnlock()
	return clock().UTC()
}

// SetClock replaces the service clock and returns a func restoring the previous one
func SetClock(c Clock) (restore func()) {
	clockMu.Lock()
	defer clockMu.Unlock()
	previous := clock
	clock = c
	return func() {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = previous
	}
}
