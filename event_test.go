// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvents(t *testing.T) {
	assert.Len(t, eventNames, numEvents)
	assert.Len(t, Events(), numEvents)
	events := Events()
	assert.Equal(t, Submitted, events[Submitted])
	assert.Equal(t, AttemptStarted, events[AttemptStarted])
	assert.Equal(t, AttemptFailed, events[AttemptFailed])
	assert.Equal(t, ResponseWaitExpired, events[ResponseWaitExpired])
	assert.Equal(t, Completed, events[Completed])
}

func TestEvent_Name(t *testing.T) {
	assert.Equal(t, "Submitted", Submitted.Name())
	assert.Equal(t, "AttemptStarted", AttemptStarted.Name())
	assert.Equal(t, "AttemptFailed", AttemptFailed.Name())
	assert.Equal(t, "ResponseWaitExpired", ResponseWaitExpired.Name())
	assert.Equal(t, "Completed", Completed.Name())
	assert.Equal(t, Completed.Name(), Completed.String())
}
