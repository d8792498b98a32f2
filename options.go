// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"github.com/rs/zerolog"

	"github.com/goliftio/lift/racing"
	"github.com/goliftio/lift/retry"
	"github.com/goliftio/lift/timeout"
)

// defaultConcurrency is the generous fixed ceiling on in-flight
// attempt goroutines used when an EventLoop is constructed without
// WithConcurrency.
const defaultConcurrency = 256

// An Option configures an EventLoop at construction time. Options are
// applied in order; later options override earlier ones for the same
// setting.
type Option func(*loopConfig)

type loopConfig struct {
	doer          HTTPDoer
	retryPolicy   retry.Policy
	timeoutPolicy timeout.Policy
	handlers      *HandlerGroup
	logger        *zerolog.Logger
	concurrency   int
	reserve       int
	starter       racing.Starter
	idGenerator   func() string
}

func defaultLoopConfig() loopConfig {
	return loopConfig{
		doer:          defaultDoer(),
		retryPolicy:   retry.Never,
		timeoutPolicy: timeout.DefaultPolicy,
		handlers:      &emptyHandlers,
		concurrency:   defaultConcurrency,
		starter:       racing.AlwaysStart,
	}
}

// WithHTTPDoer sets the HTTPDoer used for every attempt made by the
// loop, in place of http.DefaultClient.
func WithHTTPDoer(d HTTPDoer) Option {
	return func(c *loopConfig) { c.doer = d }
}

// WithRetryPolicy sets the loop's retry policy. The default is
// retry.Never.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *loopConfig) { c.retryPolicy = p }
}

// WithTimeoutPolicy sets the loop's per-attempt timeout policy. The
// default is timeout.DefaultPolicy.
func WithTimeoutPolicy(p timeout.Policy) Option {
	return func(c *loopConfig) { c.timeoutPolicy = p }
}

// WithEventHandlers installs a HandlerGroup to receive lifecycle
// events for every request that passes through the loop.
func WithEventHandlers(h *HandlerGroup) Option {
	return func(c *loopConfig) { c.handlers = h }
}

// WithLoopLogger installs a structured logger for diagnostic messages.
// Two events are logged: a handle reclaimed by its finalizer without
// having been released, and a panic recovered from completion
// dispatch. A nil logger, the default, disables this logging entirely.
func WithLoopLogger(l *zerolog.Logger) Option {
	return func(c *loopConfig) { c.logger = l }
}

// WithConcurrency sets the maximum number of attempt goroutines the
// loop will run at once. Requests beyond the ceiling wait in the
// pending queue until a slot frees up.
func WithConcurrency(n int) Option {
	return func(c *loopConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithReserve pre-allocates n idle Requests in the loop's embedded
// pool at construction time.
func WithReserve(n int) Option {
	return func(c *loopConfig) { c.reserve = n }
}

// WithStarter installs an admission throttle consulted before the
// loop starts each queued attempt. The default, racing.AlwaysStart,
// admits every attempt immediately.
func WithStarter(s racing.Starter) Option {
	return func(c *loopConfig) { c.starter = s }
}

// WithCorrelationIDGenerator overrides the function used to mint each
// Request's correlation ID when it is produced from the loop's
// embedded pool, in place of the default uuid.New().String().
func WithCorrelationIDGenerator(gen func() string) Option {
	return func(c *loopConfig) { c.idGenerator = gen }
}
