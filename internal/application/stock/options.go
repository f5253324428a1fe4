package stock

import "time"

// Options tunes the stores. Zero values fall back to the defaults below.
type Options struct {
	MaxConflictRetries  int
	RetryBackoff        time.Duration
	LockWaitTimeout     time.Duration
	HistoryDefaultLimit int
	HistoryMaxLimit     int
	CriticalRatio       float64
}

// Defaults
const (
	DefaultMaxConflictRetries = 5
	DefaultRetryBackoff       = 10 * time.Millisecond
	DefaultLockWaitTimeout    = 10 * time.Second
	DefaultHistoryLimit       = 100
	DefaultHistoryMaxLimit    = 1000
	DefaultCriticalRatio      = 0.5
)

// WithDefaults fills unset fields
func (o Options) WithDefaults() Options {
	if o.MaxConflictRetries <= 0 {
		o.MaxConflictRetries = DefaultMaxConflictRetries
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.LockWaitTimeout <= 0 {
		o.LockWaitTimeout = DefaultLockWaitTimeout
	}
	if o.HistoryDefaultLimit <= 0 {
		o.HistoryDefaultLimit = DefaultHistoryLimit
	}
	if o.HistoryMaxLimit <= 0 {
		o.HistoryMaxLimit = DefaultHistoryMaxLimit
	}
	if o.HistoryDefaultLimit > o.HistoryMaxLimit {
		o.HistoryDefaultLimit = o.HistoryMaxLimit
	}
	if o.CriticalRatio <= 0 {
		o.CriticalRatio = DefaultCriticalRatio
	}
	return o
}
