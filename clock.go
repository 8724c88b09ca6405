package casstable

import "time"

// Clock yields the wall time TTL expiration is evaluated against. Tests
// inject a fixed clock so TTL boundary behavior is deterministic instead
// of racing the system clock.
type Clock interface {
	// NowSeconds returns the current time as seconds since the Unix
	// epoch, the same unit a cell's LocalDeletionTime is stored in.
	NowSeconds() int64
}

// SystemClock is the default Clock, backed by the operating system's wall
// clock.
type SystemClock struct{}

func (SystemClock) NowSeconds() int64 { return time.Now().Unix() }

// FixedClock is a Clock that always reports the same instant, for tests
// that need TTL expiry to be deterministic.
type FixedClock int64

func (c FixedClock) NowSeconds() int64 { return int64(c) }
