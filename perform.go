// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"context"
	"net/http"
	"time"

	"github.com/goliftio/lift/request"
	"github.com/goliftio/lift/retry"
	"github.com/goliftio/lift/timeout"
)

// A PerformOption configures a single call to RequestHandle.Perform.
type PerformOption func(*performConfig)

type performConfig struct {
	doer          HTTPDoer
	retryPolicy   retry.Policy
	timeoutPolicy timeout.Policy
}

// WithPerformDoer overrides the HTTPDoer used for this Perform call,
// in place of the request's own SetHTTPDoer value or the package
// default.
func WithPerformDoer(d HTTPDoer) PerformOption {
	return func(c *performConfig) { c.doer = d }
}

// WithPerformRetryPolicy overrides the retry policy used for this
// Perform call. The default is retry.Never: Perform makes exactly one
// attempt unless a policy is supplied.
func WithPerformRetryPolicy(p retry.Policy) PerformOption {
	return func(c *performConfig) { c.retryPolicy = p }
}

// WithPerformTimeoutPolicy overrides the timeout policy used for this
// Perform call. The default is timeout.DefaultPolicy.
func WithPerformTimeoutPolicy(p timeout.Policy) PerformOption {
	return func(c *performConfig) { c.timeoutPolicy = p }
}

// Perform issues the handle's request synchronously on the calling
// goroutine, bypassing any EventLoop entirely: no pool mutex, deadline
// heap, or background goroutine is touched. It prepares the request
// exactly as StartRequest would, runs the attempt/retry loop inline,
// and sets the request's completion status before returning.
//
// ctx bounds the entire call, including any retry backoff waits; it
// is independent of the per-attempt transport timeout.
//
// Perform does not release h; the caller retains ownership and must
// still call h.Release when finished, exactly as for a request run
// through StartRequest.
func (h *RequestHandle) Perform(ctx context.Context, opts ...PerformOption) error {
	r := h.Request()
	if err := r.checkMutable(); err != nil {
		return err
	}
	cfg := performConfig{
		doer:          r.doer,
		retryPolicy:   retry.Never,
		timeoutPolicy: timeout.DefaultPolicy,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	r.seal()
	r.status = Executing
	r.startTime = time.Now()

	state := &request.State{Start: r.startTime}
	for {
		state.Attempt = r.attempt
		state.AttemptTimeouts = r.attemptTimeouts

		attemptCtx, cancel := performAttemptContext(ctx, r, cfg.timeoutPolicy, state)
		transportErr, bodyErr := doAttempt(attemptCtx, r, cfg.doer)
		cancel()

		state.Err = transportErr
		state.Response = nil
		if transportErr == nil {
			state.Response = &http.Response{StatusCode: r.statusCode}
		}
		if state.Timeout() {
			r.attemptTimeouts++
		}

		if transportErr != nil && ctx.Err() == nil && cfg.retryPolicy.Decide(state) {
			wait := cfg.retryPolicy.Wait(state)
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				r.err = ctx.Err()
				r.status = Timeout
				r.totalTime, r.haveTotal = time.Since(r.startTime), true
				if r.onComplete != nil {
					r.onComplete(h)
				}
				return r.err
			}
			r.attempt++
			r.statusCode = 0
			r.respBody = nil
			r.bytesWritten = 0
			r.err = nil
			r.respHeaders.Reset()
			continue
		}

		r.err = transportErr
		if r.err == nil {
			r.err = bodyErr
		}
		r.status = classifyStatus(bodyErr, transportErr)
		r.totalTime, r.haveTotal = time.Since(r.startTime), true
		if r.onComplete != nil {
			r.onComplete(h)
		}
		return r.err
	}
}

func performAttemptContext(ctx context.Context, r *Request, timeoutPolicy timeout.Policy, state *request.State) (context.Context, context.CancelFunc) {
	d := timeoutPolicy.Timeout(state)
	if r.transportTimeout > 0 && (d <= 0 || r.transportTimeout < d) {
		d = r.transportTimeout
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
