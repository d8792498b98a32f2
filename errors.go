// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// ErrBodyConflict is returned when a caller attempts to set a
// Request's raw body data after a multipart field has already been
// added, or vice versa. A Request may carry raw body data or
// multipart fields, never both.
var ErrBodyConflict = errors.New("lift: request body data and multipart fields are mutually exclusive")

// ErrRequestSealed is returned when a caller attempts to mutate a
// Request after it has been submitted to an EventLoop or passed to
// Perform. Once sealed, a Request is owned by the attempt in progress
// until it completes and is reset.
var ErrRequestSealed = errors.New("lift: request is sealed and cannot be mutated")

// errRequestBuildFailed wraps an error that occurred while building or
// dispatching the outgoing *http.Request, before any network I/O was
// attempted. classifyStatus uses it to recognise this case and map it
// to FailedToStart rather than a transport-level error status.
type errRequestBuildFailed struct {
	err error
}

func (e *errRequestBuildFailed) Error() string { return e.err.Error() }
func (e *errRequestBuildFailed) Unwrap() error { return e.err }

// errMissingMimeFile wraps a caller-supplied filesystem path for a
// multipart file field that could not be opened.
func errMissingMimeFile(path string, cause error) error {
	return pkgerrors.Wrapf(cause, "lift: mime file field path %q", path)
}

func errSealed(op string) error {
	return pkgerrors.Wrap(ErrRequestSealed, op)
}

func errBodyConflict(op string) error {
	return pkgerrors.Wrap(ErrBodyConflict, op)
}
