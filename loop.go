// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/goliftio/lift/racing"
	"github.com/goliftio/lift/retry"
	"github.com/goliftio/lift/timeout"
)

// An EventLoop multiplexes many in-flight requests on a single
// background goroutine. Construct one with NewEventLoop, submit
// requests with StartRequest, and shut it down with Close.
//
// All completion dispatch happens on the loop's own goroutine:
// whatever a request's completion callback does, it happens-before
// the next request's callback, because the loop's select only
// advances to the next event once the current one returns.
//
// Actual HTTP round trips run on a bounded pool of per-attempt
// goroutines; they never touch loop-owned state directly, they only
// ever send one value on the loop's completion channel.
type EventLoop struct {
	pool          *RequestPool
	doer          HTTPDoer
	retryPolicy   retry.Policy
	timeoutPolicy timeout.Policy
	handlers      *HandlerGroup
	logger        *zerolog.Logger
	starter       racing.Starter

	sem chan struct{}

	mu       sync.Mutex
	pending  []*RequestHandle
	active   int
	stopping bool

	wake     chan struct{}
	resultCh chan transportResult
	done     chan struct{}
	closeErr error
	closeOnce sync.Once

	running int32
	wg      sync.WaitGroup
}

// NewEventLoop constructs and starts an EventLoop. It does not return
// until the background goroutine has signalled that it is running.
func NewEventLoop(opts ...Option) (*EventLoop, error) {
	cfg := defaultLoopConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var poolOpts []PoolOption
	if cfg.idGenerator != nil {
		poolOpts = append(poolOpts, WithIDGenerator(cfg.idGenerator))
	}
	pool := NewRequestPool(poolOpts...)
	if cfg.reserve > 0 {
		pool.Reserve(cfg.reserve)
	}

	el := &EventLoop{
		pool:          pool,
		doer:          cfg.doer,
		retryPolicy:   cfg.retryPolicy,
		timeoutPolicy: cfg.timeoutPolicy,
		handlers:      cfg.handlers,
		logger:        cfg.logger,
		starter:       cfg.starter,
		sem:           make(chan struct{}, cfg.concurrency),
		wake:          make(chan struct{}, 1),
		resultCh:      make(chan transportResult, cfg.concurrency),
		done:          make(chan struct{}),
	}
	if el.logger != nil {
		setGlobalLogger(el.logger)
	}

	el.wg.Add(1)
	go el.run()
	for atomic.LoadInt32(&el.running) == 0 {
		time.Sleep(time.Millisecond)
	}
	return el, nil
}

// IsRunning reports whether the loop's background goroutine is
// currently running.
func (el *EventLoop) IsRunning() bool {
	return atomic.LoadInt32(&el.running) != 0
}

// RequestPool returns the loop's embedded request pool.
func (el *EventLoop) RequestPool() *RequestPool {
	return el.pool
}

// CloseIdleConnections invokes the same method on the loop's
// underlying HTTPDoer, if it implements IdleCloser. It does not
// affect connections currently in use by an in-flight attempt.
func (el *EventLoop) CloseIdleConnections() {
	closeIdleConnections(el.doer)
}

// HasUnfinishedRequests reports whether the loop has any in-flight
// attempts or any requests still waiting in the pending queue.
func (el *EventLoop) HasUnfinishedRequests() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.active > 0 || len(el.pending) > 0
}

// Stop marks the loop as no longer accepting new submissions. It does
// not wait for in-flight requests to finish; use Close for that.
func (el *EventLoop) Stop() {
	el.mu.Lock()
	el.stopping = true
	el.mu.Unlock()
}

// StartRequest submits h for execution. It seals the request,
// transitions it to status Executing, and wakes the loop. It returns
// false without effect if the loop is stopping or stopped.
//
// The caller retains its own reference to h: the loop takes a clone
// for its own bookkeeping, so the caller may Release h at any time
// without affecting the submitted attempt. The completion callback,
// when it fires, receives the loop's own clone.
func (el *EventLoop) StartRequest(h *RequestHandle) bool {
	el.mu.Lock()
	if el.stopping {
		el.mu.Unlock()
		return false
	}
	r := h.Request()
	r.seal()
	r.status = Executing
	r.startTime = time.Now()
	loopHandle := h.Clone()
	el.pending = append(el.pending, loopHandle)
	el.mu.Unlock()
	el.signalWake()
	return true
}

func (el *EventLoop) signalWake() {
	select {
	case el.wake <- struct{}{}:
	default:
	}
}

// run is the loop's background goroutine. It owns the pending queue
// drain, the deadline set, and the active count, and is the only
// goroutine that ever invokes a completion callback.
func (el *EventLoop) run() {
	defer el.wg.Done()
	deadlines := newDeadlineSet()
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	atomic.StoreInt32(&el.running, 1)

	for {
		select {
		case <-el.wake:
			el.drainPending(deadlines, timer)
		case res := <-el.resultCh:
			el.handleResult(res, deadlines, timer)
		case <-timer.C:
			el.handleDeadlines(deadlines, timer)
		case <-el.done:
			atomic.StoreInt32(&el.running, 0)
			return
		}
	}
}

// drainPending swaps the pending queue out under the lock, then, for
// each request in submission order, consults the admission throttle
// and either spawns an attempt goroutine or leaves it queued for the
// next wake.
func (el *EventLoop) drainPending(deadlines *deadlineSet, timer *time.Timer) {
	el.mu.Lock()
	batch := el.pending
	el.pending = nil
	el.mu.Unlock()

	var deferred []*RequestHandle
	for _, handle := range batch {
		r := handle.Request()
		attempt := &racing.Attempt{RequestID: r.ID(), Index: r.attempt, Started: time.Now()}
		if !el.starter.Start(attempt) {
			deferred = append(deferred, handle)
			continue
		}
		select {
		case el.sem <- struct{}{}:
			el.admit(handle, deadlines, timer)
		default:
			deferred = append(deferred, handle)
		}
	}
	if len(deferred) > 0 {
		el.mu.Lock()
		el.pending = append(deferred, el.pending...)
		el.mu.Unlock()
		time.AfterFunc(5*time.Millisecond, el.signalWake)
	}
}

// admit starts one attempt goroutine for handle, registers its
// response-wait deadline if it has one, and fires the Submitted
// event. It must only be called from the loop goroutine.
func (el *EventLoop) admit(handle *RequestHandle, deadlines *deadlineSet, timer *time.Timer) {
	r := handle.Request()
	el.mu.Lock()
	el.active++
	el.mu.Unlock()

	if r.responseWaitTimeout > 0 {
		deadlines.insert(handle.Clone(), time.Now().Add(r.responseWaitTimeout).UnixNano())
		rearmTimer(deadlines, timer)
	}

	el.handlers.run(Submitted, handle)

	go func() {
		defer func() { <-el.sem }()
		runAttempts(handle, el.doer, el.retryPolicy, el.timeoutPolicy, el.handlers, el.resultCh)
	}()
}

// handleResult processes one value received on the completion
// channel: either a non-final notice that an attempt is being
// retried, or a final outcome.
func (el *EventLoop) handleResult(res transportResult, deadlines *deadlineSet, timer *time.Timer) {
	if !res.final {
		res.handle.Request().status = res.status
		el.handlers.run(AttemptFailed, res.handle)
		return
	}
	deadlines.removeIfPresent(res.handle.Request())
	el.completeOnce(res.handle, res.status)
}

// handleDeadlines pops every expired response-wait deadline and
// dispatches a ResponseWaitTimeout completion for each, then rearms
// the timer for the next deadline, if any.
//
// The attempt goroutine backing a timed-out request is left running:
// it will eventually send its own transportResult, which handleResult
// discards because onCompleteFired is already set.
func (el *EventLoop) handleDeadlines(deadlines *deadlineSet, timer *time.Timer) {
	now := time.Now().UnixNano()
	expired := deadlines.popExpired(now)
	for _, e := range expired {
		el.handlers.run(ResponseWaitExpired, e.handle)
		el.completeOnce(e.handle, ResponseWaitTimeout)
	}
	rearmTimer(deadlines, timer)
}

func rearmTimer(deadlines *deadlineSet, timer *time.Timer) {
	timer.Stop()
	if at, ok := deadlines.nextDeadline(); ok {
		d := time.Until(unixNanoToTime(at))
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
	}
}

// completeOnce fires the Completed event and the request's completion
// callback exactly once, guarded by the request's onCompleteFired
// flag, then releases the loop's clone of handle. If the request has
// already completed via another path (the classic attempt-result vs.
// response-wait-timeout race), this is a no-op beyond releasing the
// handle.
func (el *EventLoop) completeOnce(handle *RequestHandle, status Status) {
	r := handle.Request()
	if !atomic.CompareAndSwapInt32(&r.onCompleteFired, 0, 1) {
		handle.Release()
		return
	}
	r.status = status
	r.totalTime, r.haveTotal = time.Since(r.startTime), true

	el.mu.Lock()
	el.active--
	el.mu.Unlock()

	el.safeDispatch(handle)
	handle.Release()
}

// safeDispatch invokes the request's completion callback, then the
// Completed handlers, recovering from any panic so one misbehaving
// callback or handler cannot wedge the loop goroutine.
func (el *EventLoop) safeDispatch(handle *RequestHandle) {
	defer func() {
		if rec := recover(); rec != nil {
			handle.Request().status = Error
			if l := currentLogger(); l != nil {
				l.Error().Interface("panic", rec).Str("request_id", handle.Request().ID()).
					Msg("recovered panic in completion dispatch")
			}
		}
	}()
	if cb := handle.Request().onComplete; cb != nil {
		cb(handle)
	}
	el.handlers.run(Completed, handle)
}

// Close stops accepting new requests, waits for all in-flight and
// pending work to finish, and joins the background goroutine. It is
// safe to call more than once; only the first call does the work.
func (el *EventLoop) Close() error {
	el.closeOnce.Do(func() {
		el.Stop()
		for el.HasUnfinishedRequests() {
			time.Sleep(time.Millisecond)
		}
		close(el.done)
		el.wg.Wait()

		var errs *multierror.Error
		closeIdleConnections(el.doer)
		if err := closeDoer(el.doer); err != nil {
			errs = multierror.Append(errs, err)
		}
		el.closeErr = errs.ErrorOrNil()
	})
	return el.closeErr
}
