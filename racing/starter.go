// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package racing provides admission throttles for the event loop, pacing
// how quickly new request attempts are allowed to start.
package racing

import (
	"sync"
	"time"
)

// An Attempt describes a request attempt the event loop is about to
// start, for consultation with a Starter.
type Attempt struct {
	// RequestID is the correlation ID of the request being attempted.
	RequestID string
	// Index is the zero-based attempt number for this request; it is
	// greater than zero only when a prior attempt failed transiently
	// and is being retried.
	Index int
	// Started is the time the event loop decided to start this
	// attempt, before consulting the Starter.
	Started time.Time
}

// A Starter decides whether the event loop may start a request attempt
// now, or must hold it back.
//
// Implementations of Starter must be safe for concurrent use by
// multiple goroutines.
type Starter interface {
	// Start returns true if the attempt may begin immediately. If it
	// returns false, the event loop leaves the attempt queued and
	// consults the Starter again the next time it is ready to admit
	// new work.
	Start(*Attempt) bool
}

// AlwaysStart is a starter that admits every attempt immediately.
var AlwaysStart = alwaysStarter(0)

type alwaysStarter int

func (st alwaysStarter) Start(_ *Attempt) bool {
	return true
}

// A Limit specifies the maximum number of request attempts allowed per
// unit time.
type Limit struct {
	MaxAttempts int
	Period      time.Duration
}

// NewThrottleStarter constructs a starter which throttles new request
// attempts based on one or more limits.
//
// For example, the following starter blocks starting any new attempts
// once 10 attempts have been started in the last half second, or once
// 15 have been started in the last second:
//
//	s := racing.NewThrottleStarter(
//		racing.Limit{MaxAttempts: 10, Period: 500*time.Millisecond},
//		racing.Limit{MaxAttempts: 15, Period: 1*time.Second})
func NewThrottleStarter(limits ...Limit) Starter {
	st := &throttleStarter{
		limits: make([]limitQueue, len(limits)),
	}
	for i, l := range limits {
		st.limits[i] = newLimitQueue(l.Period, l.MaxAttempts)
	}
	return st
}

type throttleStarter struct {
	limits []limitQueue
	lock   sync.Mutex
}

func (st *throttleStarter) Start(_ *Attempt) bool {
	st.lock.Lock()
	defer st.lock.Unlock()
	now := time.Now()
	start := true
	for i := range st.limits {
		start = start && st.limits[i].accept(&now)
	}
	return start
}

type limitQueue struct {
	antiPeriod time.Duration
	a          []time.Time
	start, len int
}

func newLimitQueue(period time.Duration, cap int) limitQueue {
	return limitQueue{
		antiPeriod: -period,
		a:          make([]time.Time, cap),
	}
}

func (q *limitQueue) accept(t *time.Time) bool {
	cutoff := t.Add(q.antiPeriod)
	// Remove all samples added at or before cutoff.
	n := min(q.start+q.len, len(q.a))
	for i := q.start; i < n; i++ {
		if !cutoff.Before(q.a[i]) {
			q.start++
			q.len--
		}
	}
	if q.start >= len(q.a) {
		q.start = 0
		n = q.len
		for j := 0; j < n; j++ {
			if !cutoff.Before(q.a[j]) {
				q.start++
				q.len--
			}
		}
	}
	// If there's room for the sample, add it in.
	if q.len < len(q.a) {
		i := (q.start + q.len) % len(q.a)
		q.a[i] = *t
		q.len++
		return true
	}
	// Otherwise, don't accept the sample.
	return false
}

func min(x, y int) int {
	if x <= y {
		return x
	}
	return y
}
