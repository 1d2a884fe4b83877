package engine

import "time"

const (
	// retryInterval is the per-retry backoff increment. Deferral waiting
	// time grows linearly from no less than 20 minutes to around 10 hours
	// at the retry ceiling.
	retryInterval = 1800 * time.Second

	// maxRetrySteps caps the backoff growth.
	maxRetrySteps = 20

	// jitterSpread staggers retry times by up to +-600 seconds so the
	// bulk of a full-sync deferral wave does not retry at the same time.
	jitterSpread = 600
)

// nextRetryAt computes the next retry time for a deferred event. The
// jitter argument is in seconds, expected in [-jitterSpread, jitterSpread].
// The result never precedes now: a large negative jitter on a low retry
// count must not schedule a retry in the past.
func nextRetryAt(now time.Time, retries int, jitter int) time.Time {
	steps := retries
	if steps > maxRetrySteps {
		steps = maxRetrySteps
	}
	at := now.Add(time.Duration(steps)*retryInterval + time.Duration(jitter)*time.Second)
	if at.Before(now) {
		return now
	}
	return at
}
