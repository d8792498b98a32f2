// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"net/http"
	"time"

	"github.com/goliftio/lift/transient"
)

// A State describes the progress of a single request's attempts so
// far, for consultation by a retry.Decider, retry.Waiter, or
// timeout.Policy. The event loop and RequestHandle.Perform populate a State
// from the owning Request before consulting a policy; policies must
// treat it as read-only.
type State struct {
	// Start is the time the first attempt began. It is the zero value
	// before the first attempt starts.
	Start time.Time

	// End is the time the request reached a final status. It is the
	// zero value while the request is still in-flight.
	End time.Time

	// Attempt is the zero-based number of the current or most recent
	// attempt: zero on the initial attempt, one on the first retry,
	// and so on.
	Attempt int

	// AttemptTimeouts counts how many attempts so far ended because
	// their own transport timeout expired, as opposed to some other
	// error or a successful response.
	AttemptTimeouts int

	// Response is the HTTP response received on the most recent
	// attempt, or nil if that attempt ended in an error or is still
	// underway.
	Response *http.Response

	// Err is the error from the most recent attempt, or nil if that
	// attempt succeeded or is still underway.
	Err error
}

// StatusCode returns the status code of Response, or 0 if Response is
// nil.
func (s *State) StatusCode() int {
	if s.Response == nil {
		return 0
	}
	return s.Response.StatusCode
}

// Duration returns the elapsed time since Start. It returns zero if
// the request has not started, and a fixed value once it has Ended.
func (s *State) Duration() time.Duration {
	if !s.Started() {
		return 0
	}
	if !s.Ended() {
		return time.Since(s.Start)
	}
	return s.End.Sub(s.Start)
}

// Started reports whether the first attempt has begun.
func (s *State) Started() bool {
	return !s.Start.IsZero()
}

// Ended reports whether the request has reached a final status.
func (s *State) Ended() bool {
	return !s.End.IsZero()
}

// Timeout reports whether Err currently indicates a transport
// timeout, as opposed to some other transient or permanent failure.
func (s *State) Timeout() bool {
	return transient.Categorize(s.Err) == transient.Timeout
}
