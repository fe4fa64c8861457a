//go:build deadlock

// Package syncutil provides the mutex types used by the controllers.
// This file is compiled when building with -tags=deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex wraps deadlock.Mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex wraps deadlock.RWMutex.
type RWMutex struct {
	deadlock.RWMutex
}
