// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package lift provides an asynchronous HTTP client engine built around a
pooled Request type and a single background event loop.

Construct an EventLoop, produce a Request from its pool, configure it,
and submit it. The request's completion callback runs on the event
loop's own goroutine once the transfer finishes, times out, or exceeds
its response-wait deadline, whichever happens first.

	loop, err := lift.NewEventLoop()
	...
	defer loop.Close()

	h, err := loop.RequestPool().Produce("https://www.example.com",
		lift.WithOnComplete(func(h *lift.RequestHandle) {
			r := h.Request()
			fmt.Println(r.StatusCode(), r.CompletionStatus())
		}),
		lift.WithTransportTimeout(5*time.Second),
	)
	...
	loop.StartRequest(h)

For synchronous use without the event loop, call RequestHandle.Perform
directly:

	h, _ := pool.Produce("https://www.example.com")
	err := h.Perform(context.Background())

Install hooks into the loop's handler chain to observe lifecycle events
such as attempt starts, retries, and completions:

	handlers := &lift.HandlerGroup{}
	handlers.PushBack(lift.AttemptFailed, lift.HandlerFunc(
		func(_ lift.Event, h *lift.RequestHandle) {
			log.Printf("attempt failed for %s", h.Request().URL())
		}))
	loop, err := lift.NewEventLoop(lift.WithEventHandlers(handlers))

Packages retry and timeout provide the policies the event loop consults
when deciding whether, and how, to retry a transiently failed attempt
before delivering a final completion, and how long each attempt may
run. Package racing provides the Starter that paces how quickly the
event loop admits new attempts.
*/
package lift
