// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/url"

	"github.com/goliftio/lift/transient"
)

// classifyStatus maps the outcome of a request's attempt to a Status.
// It gives the completion status for a final attempt, and the status
// reported with a non-final transportResult for an attempt that is
// about to be retried.
func classifyStatus(bodyErr error, attemptErr error) Status {
	if attemptErr == nil {
		if bodyErr != nil {
			return DownloadError
		}
		return Success
	}

	var buildErr *errRequestBuildFailed
	if errors.As(attemptErr, &buildErr) {
		return FailedToStart
	}

	var urlErr *url.Error
	if errors.As(attemptErr, &urlErr) && urlErr.Timeout() {
		return Timeout
	}

	if errors.Is(attemptErr, io.EOF) {
		return ResponseEmpty
	}

	var dnsErr *net.DNSError
	if errors.As(attemptErr, &dnsErr) {
		return ConnectDNSError
	}

	var hostErr x509.HostnameError
	var authErr x509.UnknownAuthorityError
	var certErr x509.CertificateInvalidError
	if errors.As(attemptErr, &hostErr) || errors.As(attemptErr, &authErr) || errors.As(attemptErr, &certErr) {
		return ConnectSSLError
	}

	switch transient.Categorize(attemptErr) {
	case transient.ConnRefused, transient.ConnReset:
		return ConnectError
	case transient.Timeout:
		return Timeout
	}

	var opErr *net.OpError
	if errors.As(attemptErr, &opErr) {
		return ConnectError
	}

	return Error
}
