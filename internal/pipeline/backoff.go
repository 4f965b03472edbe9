package pipeline

import (
	"math"
	"math/rand"
	"time"

	"github.com/mediaforge/mediaforge/internal/config"
)

// BackoffPolicy decides how long to wait before re-queueing a failed job.
// attempt is the retry number starting at 1.
type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// ConstantBackoff waits the same interval on every retry.
type ConstantBackoff struct {
	Interval time.Duration
}

func (b ConstantBackoff) Delay(attempt int) time.Duration {
	return b.Interval
}

// ExponentialBackoff doubles the base interval per attempt and adds up to
// 25% jitter so many jobs failing together do not retry together.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(b.Base) * math.Pow(2, float64(attempt-1)))
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

// BackoffFromConfig builds the configured policy. Exponential is the
// default; constant remains available for compatibility and tests.
func BackoffFromConfig(cfg config.QueueConfig) BackoffPolicy {
	switch cfg.Backoff {
	case "constant":
		return ConstantBackoff{Interval: cfg.RetryDelay}
	default:
		return ExponentialBackoff{Base: cfg.RetryDelay, Max: 10 * time.Minute}
	}
}
