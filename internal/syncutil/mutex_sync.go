//go:build !deadlock

// Package syncutil provides the mutex types used by the controllers.
// Build with -tags=deadlock to swap in github.com/sasha-s/go-deadlock and get
// lock-order and long-wait reports while testing.
package syncutil

import "sync"

// Mutex wraps sync.Mutex.
//
//nolint:gocritic // embedding exposes Lock/Unlock directly
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex.
//
//nolint:gocritic // embedding exposes the full RWMutex API directly
type RWMutex struct {
	sync.RWMutex
}
