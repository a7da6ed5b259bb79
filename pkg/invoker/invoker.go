// Package invoker drives a single collaborator invocation: throttle slot,
// model call, JSON extraction, and backoff-with-retry on throttling.
package invoker

import (
	"context"
	"math/rand"
	"time"

	"autoninja/pkg/collab"
	"autoninja/pkg/collab/collaberrors"
	"autoninja/pkg/extract"
	"autoninja/pkg/logx"
	"autoninja/pkg/metrics"
	"autoninja/pkg/throttle"
)

// maxJitter is the upper bound of the random component added to each backoff
// delay, spreading out herds of workers throttled at the same moment.
const maxJitter = time.Second

// Result is a successful collaborator invocation.
type Result struct {
	// Payload is the recovered JSON document.
	Payload any
	// Raw is the JSON text that decoded, after any repairs.
	Raw string
	// ResponseText is the full text the collaborator produced.
	ResponseText string
	// Attempts is how many invocations were made, including the final
	// successful one.
	Attempts int
}

// Invoker runs collaborator invocations under the global throttle with
// exponential backoff on throttling failures.
type Invoker struct {
	throttle   *throttle.Throttle
	logger     *logx.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func() time.Duration
	maxRetries int
	baseDelay  time.Duration
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithSleeper overrides the backoff sleep function, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(inv *Invoker) { inv.sleep = sleep }
}

// WithJitter overrides the jitter source, for tests.
func WithJitter(jitter func() time.Duration) Option {
	return func(inv *Invoker) { inv.jitter = jitter }
}

// New creates an Invoker. maxRetries bounds the total number of attempts;
// baseDelay seeds the exponential backoff schedule.
func New(th *throttle.Throttle, maxRetries int, baseDelay time.Duration, opts ...Option) *Invoker {
	inv := &Invoker{
		throttle:   th,
		logger:     logx.NewLogger("invoker"),
		sleep:      sleepCtx,
		jitter:     func() time.Duration { return time.Duration(rand.Int63n(int64(maxJitter))) }, //nolint:gosec // Jitter does not need crypto randomness
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke runs one collaborator call to completion. Each attempt waits for a
// throttle slot first, so retries respect the systemwide minimum interval on
// top of their own backoff. Throttling failures are retried up to the
// configured budget; every other failure class aborts immediately.
func (inv *Invoker) Invoke(ctx context.Context, c collab.Collaborator, jobID, scope, inputText string) (*Result, error) {
	var lastErr error

	for attempt := 1; attempt <= inv.maxRetries; attempt++ {
		waitStart := time.Now()
		if err := inv.throttle.CheckAndWait(ctx, scope); err != nil {
			return nil, err
		}
		metrics.RecordThrottleWait(scope, time.Since(waitStart))

		text, err := inv.invokeOnce(ctx, c, jobID, inputText)
		if err == nil {
			res, exErr := extract.Extract(text)
			if exErr != nil {
				return nil, exErr
			}
			return &Result{
				Payload:      res.Payload,
				Raw:          res.Raw,
				ResponseText: text,
				Attempts:     attempt,
			}, nil
		}

		if !collaberrors.IsThrottling(err) {
			inv.logger.Warn("job %s: %s failed on attempt %d: %v", jobID, c.ID(), attempt, err)
			return nil, err
		}

		lastErr = err
		if attempt == inv.maxRetries {
			break
		}

		delay := inv.backoffDelay(attempt)
		inv.logger.Info("job %s: %s throttled on attempt %d/%d, backing off %s",
			jobID, c.ID(), attempt, inv.maxRetries, delay)
		metrics.RecordRetryBackoff(c.ID())
		if err := inv.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, collaberrors.NewRetryExhaustedError(lastErr, inv.maxRetries)
}

func (inv *Invoker) invokeOnce(ctx context.Context, c collab.Collaborator, jobID, inputText string) (string, error) {
	ch, err := c.Invoke(ctx, jobID, inputText)
	if err != nil {
		return "", err
	}
	return collab.CollectStream(ctx, ch)
}

// backoffDelay computes baseDelay * 2^(attempt-1) plus jitter.
func (inv *Invoker) backoffDelay(attempt int) time.Duration {
	delay := inv.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay + inv.jitter()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
