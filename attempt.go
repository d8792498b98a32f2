// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/goliftio/lift/request"
	"github.com/goliftio/lift/retry"
	"github.com/goliftio/lift/timeout"
)

// A transportResult is the single value an attempt goroutine ever
// sends on the event loop's completion channel. If final is false, it
// reports a transient failure that is about to be retried after a
// backoff wait; the event loop fires AttemptFailed and keeps waiting.
// If final is true, the request has reached status and no further
// attempt will be made for it.
type transportResult struct {
	handle *RequestHandle
	final  bool
	status Status
}

// runAttempts drives a request through one attempt, and, if the retry
// policy says so, through successive retries, each after its own
// backoff wait. It sends exactly one final transportResult on resultCh
// when the request reaches a completion status, and zero or more
// non-final transportResults along the way, one per retried attempt.
//
// runAttempts must only be called from a goroutine dedicated to this
// one request attempt; it blocks for the duration of the HTTP round
// trip, the body read, and any retry backoff sleep.
func runAttempts(handle *RequestHandle, doer HTTPDoer, retryPolicy retry.Policy, timeoutPolicy timeout.Policy, handlers *HandlerGroup, resultCh chan<- transportResult) {
	r := handle.Request()
	if r.doer != nil {
		doer = r.doer
	}
	state := &request.State{Start: r.startTime}
	for {
		state.Attempt = r.attempt
		state.AttemptTimeouts = r.attemptTimeouts

		handlers.run(AttemptStarted, handle)
		ctx, cancel := attemptContext(r, timeoutPolicy, state)
		transportErr, bodyErr := doAttempt(ctx, r, doer)
		cancel()

		state.Err = transportErr
		state.Response = nil
		if transportErr == nil {
			state.Response = &http.Response{StatusCode: r.statusCode}
		}

		if state.Timeout() {
			r.attemptTimeouts++
		}

		if transportErr != nil && retryPolicy.Decide(state) {
			resultCh <- transportResult{handle: handle, final: false, status: classifyStatus(nil, transportErr)}
			wait := retryPolicy.Wait(state)
			timer := time.NewTimer(wait)
			<-timer.C
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
		resultCh <- transportResult{handle: handle, final: true, status: r.status}
		return
	}
}

// attemptContext builds the context for one attempt, applying the
// shorter of the request's own transport timeout and the timeout
// policy's recommendation.
func attemptContext(r *Request, timeoutPolicy timeout.Policy, state *request.State) (context.Context, context.CancelFunc) {
	d := timeoutPolicy.Timeout(state)
	if r.transportTimeout > 0 && (d <= 0 || r.transportTimeout < d) {
		d = r.transportTimeout
	}
	if d <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), d)
}

// doAttempt issues one HTTP round trip for r and, on success, reads
// and buffers the response body respecting r's download byte cap. It
// mutates r's response-facing fields directly.
//
// transportErr is non-nil if the round trip itself failed (connection,
// TLS, DNS, timeout). bodyErr is non-nil if the round trip succeeded
// but reading the response body failed; in that case transportErr is
// always nil.
func doAttempt(ctx context.Context, r *Request, doer HTTPDoer) (transportErr, bodyErr error) {
	doer = withRequestPolicy(r, doer)
	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if !info.Reused {
				r.numConnects++
			}
		},
	})
	httpReq, err := r.toHTTPRequest(ctx)
	if err != nil {
		return &errRequestBuildFailed{err: err}, nil
	}
	resp, err := doer.Do(httpReq)
	if err != nil {
		return err, nil
	}
	defer resp.Body.Close()

	r.statusCode = resp.StatusCode
	r.respHeaders.Reset()
	for name, values := range resp.Header {
		for _, v := range values {
			r.respHeaders.Add(name, v)
		}
	}

	return nil, readBody(r, resp.Body)
}

// readBody buffers the response body into r.respBody, truncating at
// r.maxDownloadBytes if set. Truncation is not itself an error.
func readBody(r *Request, body io.Reader) error {
	remaining := r.remainingDownloadBytes()
	if remaining == 0 {
		r.respBody = nil
		return nil
	}
	if remaining < 0 {
		b, err := ioutil.ReadAll(body)
		r.respBody = b
		r.bytesWritten += int64(len(b))
		return err
	}
	limited := io.LimitReader(body, remaining)
	b, err := ioutil.ReadAll(limited)
	r.respBody = b
	r.bytesWritten += int64(len(b))
	return err
}
