// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import "sync/atomic"

// sharedRequest routes a Request back to its owning RequestPool
// exactly once, when the last of its reference holders releases it.
// Holders are typically a user-held RequestHandle, the EventLoop's
// attempt goroutine closure, and a response-wait deadline entry; any
// of them may be the one to drop the last reference.
type sharedRequest struct {
	pool    *RequestPool
	request *Request
	refs    int32
}

func newSharedRequest(pool *RequestPool, request *Request) *sharedRequest {
	return &sharedRequest{pool: pool, request: request, refs: 1}
}

// retain increments the reference count. It must be called before
// handing out an additional reference, for example when cloning a
// RequestHandle or when the event loop registers a response-wait
// deadline entry that needs its own hold on the Request.
func (s *sharedRequest) retain() {
	atomic.AddInt32(&s.refs, 1)
}

// release decrements the reference count, returning the Request to
// its pool if this was the last reference.
func (s *sharedRequest) release() {
	if atomic.AddInt32(&s.refs, -1) == 0 {
		s.pool.returnRequest(s.request)
	}
}
