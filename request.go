// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/goliftio/lift/header"
)

// A Header is one request or response header name/value pair.
type Header struct {
	Name, Value string
}

// A MimeField is one field of a multipart/form-data body. If FilePath
// is non-empty, the field is a file upload read from that path when
// the request is performed; otherwise Value is sent verbatim.
type MimeField struct {
	Name, Value, FilePath string
}

// An HTTPVersion selects the HTTP protocol version RequestHandle.Perform and
// the event loop's attempt goroutines should negotiate with the
// remote host.
type HTTPVersion int

const (
	// VersionAuto lets the underlying HTTPDoer negotiate the protocol
	// version.
	VersionAuto HTTPVersion = iota
	Version1_0
	Version1_1
	Version2_0
	Version2_0TLS
	Version2_0Only
)

const defaultHeaderMemoryBytes = header.DefaultMemoryBytes

// A Request is the unit of work produced by a RequestPool. Request is
// not safe for concurrent use: exactly one goroutine owns it at a
// time, handed off from the builder, to the attempt goroutine, to the
// pool's free list, per the single-writer discipline documented on
// RequestPool and EventLoop.
type Request struct {
	pool *RequestPool
	id   string

	sealed           int32
	onCompleteFired  int32

	method  string
	rawURL  string
	url     *url.URL
	version HTTPVersion

	reqHeaders *header.Buffer
	bodyData   []byte
	mimeFields []MimeField

	followRedirects bool
	maxRedirects    int
	verifySSLPeer   bool
	verifySSLHost   bool
	acceptAllEnc    bool

	transportTimeout    time.Duration
	responseWaitTimeout time.Duration
	maxDownloadBytes    int64
	bytesWritten        int64

	correlationHeader string
	onComplete        func(*RequestHandle)
	doer              HTTPDoer

	status      Status
	statusCode  int
	respHeaders *header.Buffer
	respBody    []byte
	numConnects uint64
	redirects   uint64
	startTime   time.Time
	totalTime   time.Duration
	haveTotal   bool
	err         error

	attempt         int
	attemptTimeouts int

	deadlineIndex int
	deadlineAt    time.Time
	deadlineSeq   uint64
}

func newRequest(pool *RequestPool) *Request {
	r := &Request{pool: pool}
	r.resetLocked()
	return r
}

// ID returns the request's correlation ID, minted by the pool (a UUID
// by default) when the request was produced. Reset clears it, and the
// next Produce mints a fresh one.
func (r *Request) ID() string {
	return r.id
}

// URL returns the request's currently configured URL.
func (r *Request) URL() string {
	return r.rawURL
}

// SetURL sets the request's URL. It fails if url is empty or cannot be
// parsed.
func (r *Request) SetURL(rawURL string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if rawURL == "" {
		return errors.New("lift: empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	r.rawURL = rawURL
	r.url = u
	return nil
}

// Method returns the request's HTTP method.
func (r *Request) Method() string {
	return r.method
}

// SetMethod sets the request's HTTP method.
func (r *Request) SetMethod(method string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if method == "" {
		method = http.MethodGet
	}
	r.method = method
	return nil
}

// Version returns the request's configured HTTP version preference.
func (r *Request) Version() HTTPVersion {
	return r.version
}

// SetVersion sets the request's HTTP version preference. It takes
// effect when the attempt's HTTPDoer is (or resolves to) an
// *http.Client: the underlying Transport is configured to force or
// forbid the HTTP/2 upgrade accordingly. A fully custom HTTPDoer is
// responsible for its own version negotiation; the setting is inert
// for it.
func (r *Request) SetVersion(v HTTPVersion) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.version = v
	return nil
}

// TransportTimeout returns the request's transport timeout.
func (r *Request) TransportTimeout() time.Duration {
	return r.transportTimeout
}

// SetTransportTimeout sets the maximum wall time the underlying
// transport attempt is allowed to run before it is cancelled and the
// request completes with status Timeout.
//
// If both a transport timeout and a response-wait timeout are set,
// the transport timeout should normally be the longer of the two: it
// exists to eventually free connection resources even after the
// response-wait timeout has already notified the caller.
func (r *Request) SetTransportTimeout(d time.Duration) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.transportTimeout = d
	return nil
}

// ResponseWaitTimeout returns the request's response-wait timeout, or
// zero if none is set.
func (r *Request) ResponseWaitTimeout() time.Duration {
	return r.responseWaitTimeout
}

// SetResponseWaitTimeout sets the maximum wall time the caller is
// willing to wait for a completion notification, even if the
// underlying transport attempt is still outstanding. Pass zero to
// disable it.
func (r *Request) SetResponseWaitTimeout(d time.Duration) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.responseWaitTimeout = d
	return nil
}

// MaxDownloadBytes returns the request's maximum download byte cap,
// or -1 if unbounded.
func (r *Request) MaxDownloadBytes() int64 {
	return r.maxDownloadBytes
}

// SetMaxDownloadBytes sets the maximum number of response body bytes
// that will be buffered. Pass -1 for unbounded. Exceeding the cap
// truncates the buffered body but is not treated as an error: the
// request still completes with status Success.
func (r *Request) SetMaxDownloadBytes(n int64) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.maxDownloadBytes = n
	return nil
}

// FollowRedirects returns whether redirects are followed and, if so,
// the maximum number to follow (-1 means unlimited).
func (r *Request) FollowRedirects() (follow bool, max int) {
	return r.followRedirects, r.maxRedirects
}

// SetFollowRedirects sets whether redirects are followed and, if so,
// the maximum number to follow. Pass maxRedirects -1 for unlimited, 0
// for none. It is enforced via the attempt's http.Client.CheckRedirect
// when the HTTPDoer is (or resolves to) an *http.Client; see
// SetVersion.
func (r *Request) SetFollowRedirects(follow bool, maxRedirects int) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.followRedirects = follow
	r.maxRedirects = maxRedirects
	return nil
}

// SetVerifySSLPeer controls whether the attempt verifies the remote
// TLS certificate chain. Passing false sets InsecureSkipVerify on a
// dedicated TLS config for this request; see SetVersion for when this
// takes effect. Disabling peer verification accepts any certificate,
// including an attacker-forged one: only disable it against a known,
// trusted endpoint (for example local testing).
func (r *Request) SetVerifySSLPeer(verify bool) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.verifySSLPeer = verify
	return nil
}

// SetVerifySSLHost controls whether the attempt verifies the remote
// TLS certificate's hostname. Passing false still verifies the
// certificate chain (unless SetVerifySSLPeer(false) is also set) but
// skips matching its hostname against the dialed address; see
// SetVersion for when this takes effect.
func (r *Request) SetVerifySSLHost(verify bool) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.verifySSLHost = verify
	return nil
}

// SetAcceptAllEncoding requests that the transport negotiate every
// encoding it supports, equivalent to omitting a hand-set
// Accept-Encoding header.
func (r *Request) SetAcceptAllEncoding() error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.acceptAllEnc = true
	return nil
}

// SetCorrelationHeader names an outbound header that will be stamped
// with the request's correlation ID. Pass "" to disable (the
// default).
func (r *Request) SetCorrelationHeader(name string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.correlationHeader = name
	return nil
}

// SetOnComplete sets the function invoked exactly once when the
// request reaches a final status. The callback always runs on the
// owning EventLoop's goroutine for requests submitted via
// StartRequest, and on the calling goroutine for requests run via
// Perform.
func (r *Request) SetOnComplete(f func(*RequestHandle)) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.onComplete = f
	return nil
}

// SetHTTPDoer overrides the HTTPDoer used for this request's attempts,
// in place of the EventLoop's or the package default.
func (r *Request) SetHTTPDoer(d HTTPDoer) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	r.doer = d
	return nil
}

// AddHeader appends a request header. If value is omitted, the header
// is sent with an empty value, which can be used to suppress a header
// the transport would otherwise add automatically (for example,
// AddHeader("Accept-Encoding") suppresses automatic negotiation).
func (r *Request) AddHeader(name string, value ...string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	v := ""
	if len(value) > 0 {
		v = value[0]
	}
	r.reqHeaders.Add(name, v)
	return nil
}

// RequestHeaders returns the request headers added so far, in the
// order they were added.
func (r *Request) RequestHeaders() []Header {
	out := make([]Header, 0, r.reqHeaders.Len())
	r.reqHeaders.Each(func(name, value string) {
		out = append(out, Header{name, value})
	})
	return out
}

// SetRequestData sets the raw request body. It fails with
// ErrBodyConflict if any multipart fields have already been added.
func (r *Request) SetRequestData(data []byte) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if len(r.mimeFields) > 0 {
		return errBodyConflict("SetRequestData")
	}
	r.bodyData = data
	return nil
}

// RequestData returns the request's raw body, or nil if none was set.
func (r *Request) RequestData() []byte {
	return r.bodyData
}

// AddMimeField adds a multipart/form-data field. It fails with
// ErrBodyConflict if raw request data has already been set.
func (r *Request) AddMimeField(name, value string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if r.bodyData != nil {
		return errBodyConflict("AddMimeField")
	}
	r.mimeFields = append(r.mimeFields, MimeField{Name: name, Value: value})
	return nil
}

// AddMimeFileField adds a multipart/form-data field whose content is
// read from a file on disk when the request is performed. It fails
// with ErrBodyConflict if raw request data has already been set, and
// with a wrapped error if the file cannot be statted.
func (r *Request) AddMimeFileField(name, filePath string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if r.bodyData != nil {
		return errBodyConflict("AddMimeFileField")
	}
	if _, err := os.Stat(filePath); err != nil {
		return errMissingMimeFile(filePath, err)
	}
	r.mimeFields = append(r.mimeFields, MimeField{Name: name, FilePath: filePath})
	return nil
}

// StatusCode returns the HTTP response status code, or 0 if no
// response was received.
func (r *Request) StatusCode() int {
	return r.statusCode
}

// ResponseHeaders returns the headers of the received response, in
// the order they arrived. It is empty if no response was received.
func (r *Request) ResponseHeaders() []Header {
	out := make([]Header, 0, r.respHeaders.Len())
	r.respHeaders.Each(func(name, value string) {
		out = append(out, Header{name, value})
	})
	return out
}

// ResponseData returns the buffered response body, truncated to
// MaxDownloadBytes if it was exceeded.
func (r *Request) ResponseData() []byte {
	return r.respBody
}

// TotalTime returns the elapsed wall time from submission to
// completion, and whether it has been set yet.
func (r *Request) TotalTime() (time.Duration, bool) {
	return r.totalTime, r.haveTotal
}

// CompletionStatus returns the request's current lifecycle status.
func (r *Request) CompletionStatus() Status {
	return r.status
}

// NumConnects returns the number of connections established to
// complete the request, as reported by the transport. If the
// transport does not report this, NumConnects returns 0 on success.
func (r *Request) NumConnects() uint64 {
	return r.numConnects
}

// RedirectCount returns the number of redirects actually followed.
func (r *Request) RedirectCount() uint64 {
	return r.redirects
}

// Err returns the error, if any, associated with the request's final
// status.
func (r *Request) Err() error {
	return r.err
}

// checkMutable returns ErrRequestSealed if the request has already
// been submitted to an event loop or handed to Perform.
func (r *Request) checkMutable() error {
	if atomic.LoadInt32(&r.sealed) != 0 {
		return errSealed("lift: request")
	}
	return nil
}

// seal marks the request as no longer mutable by the builder. It is
// idempotent.
func (r *Request) seal() {
	atomic.StoreInt32(&r.sealed, 1)
}

// remainingDownloadBytes reports how many more response body bytes may
// be buffered, or -1 if unbounded.
func (r *Request) remainingDownloadBytes() int64 {
	if r.maxDownloadBytes < 0 {
		return -1
	}
	remaining := r.maxDownloadBytes - r.bytesWritten
	if remaining < 0 {
		return 0
	}
	return remaining
}

// toHTTPRequest builds the net/http request for one attempt.
func (r *Request) toHTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	var contentType string
	switch {
	case len(r.mimeFields) > 0:
		b, ct, err := buildMultipartBody(r.mimeFields)
		if err != nil {
			return nil, err
		}
		body, contentType = b, ct
	case r.bodyData != nil:
		body = bytes.NewReader(r.bodyData)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.rawURL, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	r.reqHeaders.Each(func(name, value string) {
		if value == "" {
			req.Header[http.CanonicalHeaderKey(name)] = nil
		} else {
			req.Header.Add(name, value)
		}
	})
	if r.correlationHeader != "" {
		req.Header.Set(r.correlationHeader, r.id)
	}
	if r.acceptAllEnc {
		req.Header.Del("Accept-Encoding")
	}
	return req, nil
}

// resetLocked resets the request to a pristine Building state, as
// performed by the pool when a Request is returned to the free list,
// or constructed fresh.
func (r *Request) resetLocked() {
	if r.reqHeaders == nil {
		r.reqHeaders = header.NewBuffer()
	} else {
		r.reqHeaders.Reset()
	}
	if r.respHeaders == nil {
		r.respHeaders = header.NewBuffer()
	} else {
		r.respHeaders.Reset()
	}

	r.id = ""
	r.method = http.MethodGet
	r.rawURL = ""
	r.url = nil
	r.version = VersionAuto
	r.bodyData = nil
	r.mimeFields = nil
	r.followRedirects = true
	r.maxRedirects = -1
	r.verifySSLPeer = true
	r.verifySSLHost = true
	r.acceptAllEnc = false
	r.transportTimeout = 0
	r.responseWaitTimeout = 0
	r.maxDownloadBytes = -1
	r.bytesWritten = 0
	r.correlationHeader = ""
	r.onComplete = nil
	r.doer = nil

	r.status = Building
	r.statusCode = 0
	r.respBody = nil
	r.numConnects = 0
	r.redirects = 0
	r.startTime = time.Time{}
	r.totalTime = 0
	r.haveTotal = false
	r.err = nil

	r.attempt = 0
	r.attemptTimeouts = 0

	r.deadlineIndex = -1
	r.deadlineAt = time.Time{}
	r.deadlineSeq = 0

	atomic.StoreInt32(&r.sealed, 0)
	atomic.StoreInt32(&r.onCompleteFired, 0)
}

// Reset clears the request so it may be reused. Callers normally do
// not need to call this directly: the pool calls it automatically
// when a Request is returned. It is exposed so a caller performing
// many synchronous requests with the same Request can recycle it
// without going through the pool.
func (r *Request) Reset() {
	r.resetLocked()
}
