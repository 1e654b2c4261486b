package logging

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultThrottleKeys = 512

// Throttler emits at most one record per key per interval, measured on the
// game clock the caller passes in. Keys live in a bounded LRU so one key per
// vehicle cannot grow without limit.
type Throttler struct {
	logger *slog.Logger
	last   *lru.Cache[string, int64]
}

// NewThrottler creates a throttler remembering up to size keys. A size of zero
// or less uses the default.
func NewThrottler(logger *slog.Logger, size int) *Throttler {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = defaultThrottleKeys
	}
	cache, err := lru.New[string, int64](size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &Throttler{logger: logger, last: cache}
}

// Allow reports whether key may log at now, and if so records now as its last
// emission.
func (t *Throttler) Allow(key string, now, intervalMs int64) bool {
	if prev, ok := t.last.Get(key); ok && now-prev < intervalMs {
		return false
	}
	t.last.Add(key, now)
	return true
}

// Info logs msg at info level unless key logged within intervalMs.
func (t *Throttler) Info(key string, now, intervalMs int64, msg string, args ...any) {
	if t.Allow(key, now, intervalMs) {
		t.logger.Info(msg, args...)
	}
}

// Warn logs msg at warn level unless key logged within intervalMs.
func (t *Throttler) Warn(key string, now, intervalMs int64, msg string, args ...any) {
	if t.Allow(key, now, intervalMs) {
		t.logger.Warn(msg, args...)
	}
}

// Len returns the number of remembered keys.
func (t *Throttler) Len() int { return t.last.Len() }
