// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrSealed_WrapsErrRequestSealed(t *testing.T) {
	err := errSealed("lift: request")
	assert.True(t, errors.Is(err, ErrRequestSealed))
	assert.Contains(t, err.Error(), "lift: request")
}

func TestErrBodyConflict_WrapsErrBodyConflict(t *testing.T) {
	err := errBodyConflict("SetRequestData")
	assert.True(t, errors.Is(err, ErrBodyConflict))
	assert.Contains(t, err.Error(), "SetRequestData")
}

func TestErrMissingMimeFile_WrapsCause(t *testing.T) {
	cause := errors.New("no such file")
	err := errMissingMimeFile("/tmp/does-not-exist", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "/tmp/does-not-exist")
}
