package sources

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-github/v66/github"

	"github.com/stacklok/depsync/internal/httpclient"
)

// maxRateLimitWait is the longest rate-limit reset worth waiting for inside a
// single pass; longer resets end the repository pass.
const maxRateLimitWait = 2 * time.Minute

// retryPolicy controls the retry loop around upstream calls
type retryPolicy struct {
	maxTries   uint
	newBackOff func() backoff.BackOff
}

func defaultRetryPolicy(maxTries uint) retryPolicy {
	return retryPolicy{
		maxTries: maxTries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// retry runs op until it succeeds, fails permanently or runs out of tries.
// It reports whether the final failure was permanent.
func retry[T any](ctx context.Context, policy retryPolicy, op func() (T, error)) (T, bool, error) {
	var (
		lastErr   error
		permanent bool
	)
	result, err := backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err == nil {
			return res, nil
		}
		lastErr = err
		classified, isPermanent := classify(ctx, err)
		permanent = isPermanent
		if !isPermanent {
			slog.Debug("Retrying upstream call", "error", err)
		}
		return res, classified
	}, backoff.WithBackOff(policy.newBackOff()), backoff.WithMaxTries(policy.maxTries))

	if err != nil {
		var retryAfter *backoff.RetryAfterError
		if errors.As(err, &retryAfter) && lastErr != nil {
			err = lastErr
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
	}
	return result, permanent, err
}

// classify maps an upstream error onto the backoff vocabulary.
func classify(ctx context.Context, err error) (error, bool) {
	if ctx.Err() != nil {
		return backoff.Permanent(err), true
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		wait := time.Until(rateErr.Rate.Reset.Time)
		if wait > maxRateLimitWait {
			return backoff.Permanent(err), false
		}
		return backoff.RetryAfter(int(wait.Seconds()) + 1), false
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		if abuseErr.RetryAfter != nil {
			if *abuseErr.RetryAfter > maxRateLimitWait {
				return backoff.Permanent(err), false
			}
			return backoff.RetryAfter(int(abuseErr.RetryAfter.Seconds()) + 1), false
		}
		return err, false
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		if transientStatus(respErr.Response.StatusCode) {
			return err, false
		}
		return backoff.Permanent(err), true
	}

	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Retryable() {
			return err, false
		}
		return backoff.Permanent(err), true
	}

	var permanentErr *backoff.PermanentError
	if errors.As(err, &permanentErr) {
		return err, true
	}

	// network failure
	return err, false
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
