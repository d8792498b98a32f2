// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import "net/http"

// An HTTPDoer implements a Do method in the same manner as the GoLang
// standard library http.Client from the net/http package.
//
// HTTPDoer is the multiplexed HTTP engine collaborator: the event loop
// and RequestHandle.Perform never speak sockets, TLS, or HTTP/2 framing
// directly, they delegate every round trip to an HTTPDoer.
type HTTPDoer interface {
	// Do sends an HTTP request and returns an HTTP response following
	// policy (such as redirects, cookies, auth) configured on the
	// HTTPDoer.
	//
	// The Do method must follow the contract documented on the GoLang
	// standard library http.Client from the net/http package.
	Do(r *http.Request) (*http.Response, error)
}

// IdleCloser is the interface that wraps the basic CloseIdleConnections
// method.
//
// If the underlying implementation supports it, CloseIdleConnections
// closes any connections which were previously used for requests but
// are now sitting idle in a "keep-alive" state. It does not interrupt
// any connections currently in use.
type IdleCloser interface {
	CloseIdleConnections()
}

// DoerCloser is implemented by an HTTPDoer that owns closeable
// resources beyond idle keep-alive connections (a connection pool, a
// file descriptor, a background goroutine). *http.Client does not
// implement it; a custom HTTPDoer wrapping something like a gRPC
// channel or a pooled transport might. EventLoop.Close calls Close
// once, after every in-flight attempt has finished, and folds any
// error it returns into its own return value.
type DoerCloser interface {
	Close() error
}

func defaultDoer() HTTPDoer {
	return http.DefaultClient
}

func closeIdleConnections(d HTTPDoer) {
	if ic, ok := d.(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

func closeDoer(d HTTPDoer) error {
	if c, ok := d.(DoerCloser); ok {
		return c.Close()
	}
	return nil
}
