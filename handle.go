// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"runtime"
	"sync/atomic"
)

// A RequestHandle is the opaque, user-facing token produced by
// RequestPool.Produce. It holds a strong reference to the underlying
// Request for as long as the handle, or any of its clones, has not
// been released.
//
// A RequestHandle must not be copied by value after it has been
// passed to StartRequest or Perform; use Clone to obtain an
// independent reference instead. Always call Release when finished
// with a handle obtained directly from Produce or from Clone; a
// finalizer recovers leaked handles diagnostically, but correct code
// never relies on it.
type RequestHandle struct {
	shared   *sharedRequest
	released int32
}

func newRequestHandle(pool *RequestPool, r *Request) *RequestHandle {
	s := newSharedRequest(pool, r)
	return wrapRequestHandle(s)
}

func wrapRequestHandle(s *sharedRequest) *RequestHandle {
	h := &RequestHandle{shared: s}
	runtime.SetFinalizer(h, finalizeRequestHandle)
	return h
}

func finalizeRequestHandle(h *RequestHandle) {
	if atomic.CompareAndSwapInt32(&h.released, 0, 1) {
		logLeakedHandle(h.shared.request)
		h.shared.release()
	}
}

// Request derefs the handle, returning the underlying Request.
//
// It is always safe to call Request from inside a completion callback:
// the handle passed to the callback keeps the Request alive for the
// duration of the call.
func (h *RequestHandle) Request() *Request {
	return h.shared.request
}

// Clone returns a new handle sharing the same underlying Request,
// bumping its reference count. The clone must be released
// independently of the original.
func (h *RequestHandle) Clone() *RequestHandle {
	h.shared.retain()
	return wrapRequestHandle(h.shared)
}

// Release drops this handle's reference to the underlying Request. If
// this was the last outstanding reference, the Request is reset and
// returned to its pool. Release is idempotent; calling it more than
// once has no additional effect.
func (h *RequestHandle) Release() {
	if atomic.CompareAndSwapInt32(&h.released, 0, 1) {
		runtime.SetFinalizer(h, nil)
		h.shared.release()
	}
}
