package main

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryPolicy controls the backoff executor for one call site. Policies are
// supplied per call; there is no global retry state.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Retryable  func(error) bool
}

// retryCall invokes op, retrying up to policy.MaxRetries additional times
// with jittered exponential backoff. A false Retryable verdict stops
// immediately. After exhausting all attempts the last error is returned
// unchanged so callers never see a different error than the original cause.
func retryCall[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				if lastErr != nil {
					return zero, lastErr
				}
				return zero, ctx.Err()
			case <-time.After(backoffDelay(policy, attempt-1)):
			}
		}

		value, err := op()
		if err == nil {
			return value, nil
		}
		lastErr = err

		if policy.Retryable != nil && !policy.Retryable(err) {
			return zero, err
		}
	}

	return zero, lastErr
}

// backoffDelay computes min(base*multiplier^n, max) plus up to 10% random
// jitter so concurrent callers do not retry in lockstep.
func backoffDelay(policy RetryPolicy, n int) time.Duration {
	multiplier := policy.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	delay := float64(policy.BaseDelay) * math.Pow(multiplier, float64(n))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	jitter := rand.Float64() * 0.1 * delay
	return time.Duration(delay + jitter)
}

// containsErrorSubstring walks the wrap chain looking for target,
// case-insensitively.
func containsErrorSubstring(err error, target string) bool {
	target = strings.ToLower(target)
	for err != nil {
		if strings.Contains(strings.ToLower(err.Error()), target) {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

var transientMarkers = []string{
	"network",
	"timeout",
	"timed out",
	"connection",
	"temporary failure",
	"temporarily unavailable",
	"deadline exceeded",
}

var permanentMarkers = []string{
	"invalid input",
	"not found",
	"access denied",
	"unauthorized",
	"forbidden",
	"bad request",
	"invalid_request",
}

// isTransientError is the general predicate: network, timeout, connection
// and temporary-failure classes are retryable; taxonomy errors retry only
// when their kind is transient.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := IsAppError(err); ok {
		switch appErr.Code {
		case codeRateLimited, codeServiceUnavailable:
			return true
		case codeInvalidIdentifier, codeVideoNotFound, codeTranscriptNotAvailable,
			codeUnsupportedLanguage, codeFileOperationFailure, codeParsingFailure:
			return false
		}
	}
	for _, marker := range transientMarkers {
		if containsErrorSubstring(err, marker) {
			return true
		}
	}
	return false
}

// isRetryableToolError is the stricter external-tool predicate: it also
// retries on gateway-error signatures but never on invalid-input, not-found
// or access-denied classes.
func isRetryableToolError(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := IsAppError(err); ok {
		switch appErr.Code {
		case codeInvalidIdentifier, codeVideoNotFound, codeTranscriptNotAvailable,
			codeUnsupportedLanguage:
			return false
		case codeRateLimited, codeServiceUnavailable:
			return true
		}
	}
	for _, marker := range permanentMarkers {
		if containsErrorSubstring(err, marker) {
			return false
		}
	}
	for _, marker := range []string{"502", "503", "504", "server error"} {
		if containsErrorSubstring(err, marker) {
			return true
		}
	}
	if appErr, ok := IsAppError(err); ok && appErr.Code == codeExternalToolFailure {
		return true
	}
	return isTransientError(err)
}
