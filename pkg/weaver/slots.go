package weaver

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/gregLibert/secure-element/internal/syncutil"
)

// ReadResult is the outcome of a READ.
type ReadResult struct {
	Status  byte   // READ_SUCCESS, READ_WRONG_KEY or READ_BACK_OFF
	Value   []byte // set on READ_SUCCESS only
	Timeout uint32 // seconds before the next attempt is accepted
}

// Slots is the key-protected store behind the applet. Slot ids are already
// range-checked by the caller.
type Slots interface {
	NumSlots() uint16
	Write(id uint16, key, value []byte)
	Read(id uint16, key []byte) ReadResult
	EraseValue(id uint16)
	EraseAll()
}

type slot struct {
	key      [SLOT_KEY_BYTES]byte
	value    [SLOT_VALUE_BYTES]byte
	erased   bool
	failures uint32
	until    time.Time
}

// CoreSlots keeps slots in memory and throttles wrong-key reads per slot.
type CoreSlots struct {
	mu    syncutil.Mutex
	slots []slot
	now   func() time.Time
}

// SlotsOption configures a CoreSlots.
type SlotsOption func(*CoreSlots)

// WithClock replaces time.Now for throttling.
func WithClock(now func() time.Time) SlotsOption {
	return func(s *CoreSlots) {
		s.now = now
	}
}

// NewCoreSlots creates n zeroed slots.
func NewCoreSlots(n int, opts ...SlotsOption) (*CoreSlots, error) {
	if n < 1 || n > 0xFFFF {
		return nil, fmt.Errorf("slot count %d out of range 1..65535", n)
	}
	s := &CoreSlots{slots: make([]slot, n), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *CoreSlots) NumSlots() uint16 {
	return uint16(len(s.slots))
}

// Write stores key and value without checking the previous key.
func (s *CoreSlots) Write(id uint16, key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := &s.slots[id]
	copy(sl.key[:], key)
	copy(sl.value[:], value)
	sl.erased = false
	sl.failures = 0
	sl.until = time.Time{}
}

// Read returns the value when key matches. While a slot is throttled the key
// is not compared at all.
func (s *CoreSlots) Read(id uint16, key []byte) ReadResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := &s.slots[id]
	now := s.now()

	if now.Before(sl.until) {
		return ReadResult{Status: READ_BACK_OFF, Timeout: remaining(now, sl.until)}
	}
	if sl.erased {
		return ReadResult{Status: READ_WRONG_KEY}
	}

	if subtle.ConstantTimeCompare(sl.key[:], key) != 1 {
		sl.failures++
		timeout := throttle(sl.failures)
		sl.until = now.Add(time.Duration(timeout) * time.Second)
		log().Debug("wrong key", "slot", id, "failures", sl.failures, "timeout", timeout)
		return ReadResult{Status: READ_WRONG_KEY, Timeout: timeout}
	}

	sl.failures = 0
	sl.until = time.Time{}
	return ReadResult{Status: READ_SUCCESS, Value: append([]byte(nil), sl.value[:]...)}
}

// EraseValue zeroes the value. The key stays, and the slot answers
// READ_WRONG_KEY until it is written again.
func (s *CoreSlots) EraseValue(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := &s.slots[id]
	sl.value = [SLOT_VALUE_BYTES]byte{}
	sl.erased = true
}

// EraseAll zeroes every slot and clears the failure counters.
func (s *CoreSlots) EraseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.slots {
		s.slots[i] = slot{}
	}
}

// throttle returns the timeout in seconds after the n-th consecutive failure.
func throttle(n uint32) uint32 {
	switch {
	case n == 0:
		return 0
	case n <= 10:
		if n%5 == 0 {
			return 30
		}
		return 0
	case n < 30:
		return 30
	case n < 140:
		return 30 << ((n - 30) / 10)
	default:
		return 24 * 60 * 60
	}
}

func remaining(now, until time.Time) uint32 {
	d := until.Sub(now)
	secs := uint32(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
