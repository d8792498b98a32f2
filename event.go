// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

// An Event identifies the event type when installing or running a
// Handler. Install event handlers into an EventLoop's HandlerGroup to
// observe the lifecycle of requests flowing through the loop.
type Event int

const (
	// Submitted identifies the event that occurs when a request is
	// accepted from the pending queue and handed to an attempt
	// goroutine for its first try.
	//
	// When the loop fires Submitted, the request's status has already
	// been set to Executing.
	Submitted Event = iota
	// AttemptStarted identifies the event that occurs immediately
	// before an HTTP round trip is issued, including on every retry.
	AttemptStarted
	// AttemptFailed identifies the event that occurs after an attempt
	// completes with a transient error and a retry has been decided.
	//
	// When the loop fires AttemptFailed, the request's completion
	// status reflects the failed attempt, but the callback has not yet
	// been invoked, since a retry is pending.
	AttemptFailed
	// ResponseWaitExpired identifies the event that occurs when a
	// request's response-wait deadline fires while the underlying
	// transport attempt is still outstanding.
	ResponseWaitExpired
	// Completed identifies the event that occurs after the request's
	// completion callback has been invoked, regardless of final
	// status.
	Completed
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel

	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"Submitted",
	"AttemptStarted",
	"AttemptFailed",
	"ResponseWaitExpired",
	"Completed",
}

// Events returns a slice containing all events which can occur during
// a request's lifecycle within an EventLoop, in the order in which
// they would occur.
func Events() []Event {
	return []Event{
		Submitted,
		AttemptStarted,
		AttemptFailed,
		ResponseWaitExpired,
		Completed,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
