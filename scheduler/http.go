package scheduler

import (
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// defaultRetryMax is spec.md §5's "at most N attempts, default 3".
const defaultRetryMax = 3

// backoffSeed fixes the jitter source so retry timing is reproducible
// across test runs, per spec.md §5's "deterministic seed for tests" —
// retryablehttp's own LinearJitterBackoff seeds its jitter from the
// current time, which is not under this package's control.
const backoffSeed = 0x5e6057ed

func newClient(retryMax int, waitMin, waitMax time.Duration) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	// retryMax counts attempts; retryablehttp's RetryMax counts retries
	// after the first attempt.
	c.RetryMax = retryMax - 1
	c.RetryWaitMin = waitMin
	c.RetryWaitMax = waitMax
	c.Logger = nil // events.Sink carries progress; retryablehttp's own logger would duplicate it
	c.Backoff = seededJitterBackoff(backoffSeed)
	return c
}

// seededJitterBackoff uses an exponential base (min * 2^attempt, capped at
// max, like retryablehttp.DefaultBackoff) plus up to 25% jitter, capped at
// max, drawing the jitter from a private, seeded rand.Rand.
func seededJitterBackoff(seed int64) retryablehttp.Backoff {
	rng := rand.New(rand.NewSource(seed))
	return func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		base := float64(min) * math.Pow(2, float64(attemptNum))
		if base > float64(max) {
			base = float64(max)
		}
		jitter := rng.Float64() * base * 0.25
		sleep := time.Duration(base + jitter)
		if sleep > max {
			sleep = max
		}
		return sleep
	}
}
