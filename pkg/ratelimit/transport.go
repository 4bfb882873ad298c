// Package ratelimit provides an http.RoundTripper that paces requests to a single upstream
// and retries responses the upstream uses to signal rate limiting.
package ratelimit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxTries        = 10
	DefaultMultiplier      = 2
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 2 * time.Minute
)

// Options configures a Transport. Zero values fall back to the defaults above.
type Options struct {
	// Name identifies the upstream in logs and errors.
	Name string
	// RetryStatuses lists response statuses that mean "slow down".
	RetryStatuses []int
	// IsRateLimited can flag additional responses as rate limited, e.g. based on headers.
	IsRateLimited   func(resp *http.Response) bool
	MaxTries        int
	Multiplier      float64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// AttemptTimeout bounds a single attempt, up to and including reading its response body.
	// Backoff and Retry-After waits are not counted. Zero means no timeout.
	AttemptTimeout time.Duration
	// Limiter paces every attempt, retries included. Nil means no pacing.
	Limiter *rate.Limiter
	Log     *logrus.Entry
}

// PerMinute builds a limiter allowing n requests per minute. n <= 0 disables pacing.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
}

// Error is returned when an upstream kept rate limiting us until MaxTries was exhausted.
type Error struct {
	Upstream string
	Status   int
	Attempts int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: still rate limited (status %d) after %d attempts", e.Upstream, e.Status, e.Attempts)
}

type Transport struct {
	base    http.RoundTripper
	opts    Options
	retry   map[int]bool
	log     *logrus.Entry
	limiter *rate.Limiter
}

func NewTransport(base http.RoundTripper, opts Options) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if opts.MaxTries <= 0 {
		opts.MaxTries = DefaultMaxTries
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = DefaultMultiplier
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultMaxInterval
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	t := &Transport{
		base:    base,
		opts:    opts,
		retry:   map[int]bool{},
		log:     log.WithField("cmp", "ratelimit").WithField("upstream", opts.Name),
		limiter: opts.Limiter,
	}
	for _, status := range opts.RetryStatuses {
		t.retry[status] = true
	}
	return t
}

func (t *Transport) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.opts.InitialInterval
	b.Multiplier = t.opts.Multiplier
	b.MaxInterval = t.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(t.opts.MaxTries-1))
}

func (t *Transport) rateLimited(resp *http.Response) bool {
	if t.retry[resp.StatusCode] {
		return true
	}
	return t.opts.IsRateLimited != nil && t.opts.IsRateLimited(resp)
}

// RoundTrip sends req, retrying while the upstream signals rate limiting.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	body, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	policy := t.newBackOff()
	for attempt := 1; ; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, errors.Wrapf(err, "%s: waiting for rate limiter", t.opts.Name)
			}
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if t.opts.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, t.opts.AttemptTimeout)
		}

		attemptReq := req.Clone(attemptCtx)
		if body != nil {
			attemptReq.Body, err = body()
			if err != nil {
				cancel()
				return nil, errors.Wrap(err, "rewinding request body")
			}
		}

		resp, err := t.base.RoundTrip(attemptReq)
		if err != nil {
			cancel()
			return nil, err
		}
		if !t.rateLimited(resp) {
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}

		status := resp.StatusCode
		wait := policy.NextBackOff()
		if wait != backoff.Stop {
			if ra := retryAfter(resp); ra > wait {
				wait = ra
			}
		}
		drain(resp)
		cancel()

		if wait == backoff.Stop {
			t.log.WithFields(logrus.Fields{"status": status, "attempts": attempt}).Error("Giving up after repeated rate limiting.")
			return nil, &Error{Upstream: t.opts.Name, Status: status, Attempts: attempt}
		}

		t.log.WithFields(logrus.Fields{
			"status":  status,
			"attempt": attempt,
			"wait":    wait.String(),
			"url":     req.URL.Path,
		}).Warn("Rate limited, backing off.")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// replayableBody returns a function producing a fresh copy of the request body for each attempt,
// or nil if the request has no body.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}
	b, err := ioutil.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, errors.Wrap(err, "buffering request body")
	}
	return func() (io.ReadCloser, error) {
		return ioutil.NopCloser(bytes.NewReader(b)), nil
	}, nil
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// cancelOnClose releases an attempt's timeout once the caller is done with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(ioutil.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
