package enrich

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig holds retry parameters for workflow calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// retryableStatus reports whether a workflow reply is worth retrying.
// Workflow engines answer 500 while a run is being scheduled, so it is
// treated as transient along with the usual gateway codes.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// backoffDelay returns a full-jitter delay for the given retry, drawn
// uniformly from [0, min(base*2^retry, maxDelay)).
func backoffDelay(retry int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	ceiling := base
	for i := 0; i < retry && ceiling < maxDelay; i++ {
		ceiling *= 2
	}
	if ceiling > maxDelay {
		ceiling = maxDelay
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling)))
}

// sleepWithContext waits for d or until ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP
// date. It returns 0 when the header is absent, unparsable or in the past.
func retryAfter(h http.Header) time.Duration {
	ra := h.Get("Retry-After")
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil {
		if secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return 0
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
