// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains State, the core type describing the progress
of a single request's attempts so far.

State is the input type for the callbacks consulted while deciding
whether and how to retry a failed attempt: retry.Decider, retry.Waiter,
and timeout.Policy. The event loop and RequestHandle.Perform construct a
State from the owning Request's current attempt history immediately
before consulting a policy.
*/
package request
