// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// A RequestPool is a thread-safe free-list of idle Request objects.
//
// RequestPool.returnRequest is only ever called by a sharedRequest's
// release path, never directly by user code, mirroring the original
// design's friend-only access.
type RequestPool struct {
	mu    sync.Mutex
	free  []*Request
	newID func() string
}

// A PoolOption configures a RequestPool at construction time.
type PoolOption func(*RequestPool)

// WithIDGenerator overrides the function used to mint each Request's
// correlation ID at Produce time, in place of uuid.New().String(). It
// is the RequestPool-level mechanism behind EventLoop's
// WithCorrelationIDGenerator option.
func WithIDGenerator(gen func() string) PoolOption {
	return func(p *RequestPool) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// NewRequestPool constructs an empty RequestPool.
func NewRequestPool(opts ...PoolOption) *RequestPool {
	p := &RequestPool{newID: func() string { return uuid.New().String() }}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reserve pre-allocates n idle Requests so that later Produce calls
// avoid first-use allocation latency.
func (p *RequestPool) Reserve(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		p.free = append(p.free, newRequest(p))
	}
}

// A ProduceOption configures a Request returned from Produce.
type ProduceOption func(*Request)

// WithOnComplete sets the request's completion callback.
func WithOnComplete(f func(*RequestHandle)) ProduceOption {
	return func(r *Request) { r.onComplete = f }
}

// WithTransportTimeout sets the request's transport timeout.
func WithTransportTimeout(d time.Duration) ProduceOption {
	return func(r *Request) { r.transportTimeout = d }
}

// WithResponseWaitTimeout sets the request's response-wait timeout.
func WithResponseWaitTimeout(d time.Duration) ProduceOption {
	return func(r *Request) { r.responseWaitTimeout = d }
}

// WithMaxDownloadBytes sets the request's maximum download byte cap.
func WithMaxDownloadBytes(n int64) ProduceOption {
	return func(r *Request) { r.maxDownloadBytes = n }
}

// WithMethod sets the request's HTTP method.
func WithMethod(method string) ProduceOption {
	return func(r *Request) { r.method = method }
}

// Produce returns a RequestHandle wrapping a Request configured for
// the given URL. If the free list has an idle Request available, it
// is reset and reused; otherwise a new one is constructed. Produce is
// safe for concurrent use by multiple goroutines.
func (p *RequestPool) Produce(rawURL string, opts ...ProduceOption) (*RequestHandle, error) {
	r := p.take()
	if err := r.SetURL(rawURL); err != nil {
		p.returnRequest(r)
		return nil, err
	}
	r.id = p.newID()
	for _, opt := range opts {
		opt(r)
	}
	return newRequestHandle(p, r), nil
}

func (p *RequestPool) take() *Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return newRequest(p)
	}
	r := p.free[n-1]
	p.free = p.free[:n-1]
	return r
}

// returnRequest resets a Request and returns it to the free list. It
// is called exactly once per Request, by the owning sharedRequest when
// its reference count reaches zero.
func (p *RequestPool) returnRequest(r *Request) {
	r.Reset()
	p.mu.Lock()
	p.free = append(p.free, r)
	p.mu.Unlock()
}
