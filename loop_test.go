// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliftio/lift/racing"
)

func TestEventLoop_Lifecycle(t *testing.T) {
	loop, err := NewEventLoop(WithHTTPDoer(httpServer.Client()))
	require.NoError(t, err)
	assert.True(t, loop.IsRunning())
	assert.False(t, loop.HasUnfinishedRequests())
	require.NoError(t, loop.Close())
	assert.False(t, loop.IsRunning())
}

// closingDoer is an HTTPDoer that also implements DoerCloser, letting
// tests control what EventLoop.Close sees when it tears the doer down.
type closingDoer struct {
	HTTPDoer
	closeErr error
	closed   int32
}

func (d *closingDoer) Close() error {
	atomic.AddInt32(&d.closed, 1)
	return d.closeErr
}

func TestEventLoop_Close_AggregatesDoerCloseError(t *testing.T) {
	closeErr := fmt.Errorf("pool teardown failed")
	doer := &closingDoer{HTTPDoer: httpServer.Client(), closeErr: closeErr}
	loop, err := NewEventLoop(WithHTTPDoer(doer))
	require.NoError(t, err)

	err = loop.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), closeErr.Error())
	assert.Equal(t, int32(1), atomic.LoadInt32(&doer.closed))

	// Close is idempotent: the second call must not re-run teardown or
	// lose the first call's error.
	err2 := loop.Close()
	assert.Equal(t, err, err2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&doer.closed))
}

func TestEventLoop_Close_NilErrorWhenDoerHasNoCloser(t *testing.T) {
	loop, err := NewEventLoop(WithHTTPDoer(httpServer.Client()))
	require.NoError(t, err)
	require.NoError(t, loop.Close())
}

func TestEventLoop_WithCorrelationIDGenerator(t *testing.T) {
	var n int32
	loop, err := NewEventLoop(
		WithHTTPDoer(httpServer.Client()),
		WithCorrelationIDGenerator(func() string {
			return fmt.Sprintf("req-%d", atomic.AddInt32(&n, 1))
		}),
	)
	require.NoError(t, err)
	defer loop.Close()

	h, err := loop.RequestPool().Produce(httpServer.URL)
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, "req-1", h.Request().ID())
}

func TestEventLoop_StartRequest_Success(t *testing.T) {
	var evts []string
	var mu sync.Mutex
	record := func(name string) HandlerFunc {
		return func(_ Event, _ *RequestHandle) {
			mu.Lock()
			evts = append(evts, name)
			mu.Unlock()
		}
	}
	handlers := &HandlerGroup{}
	handlers.PushBack(Submitted, record("Submitted"))
	handlers.PushBack(AttemptStarted, record("AttemptStarted"))
	handlers.PushBack(Completed, record("Completed"))

	loop, err := NewEventLoop(WithHTTPDoer(httpServer.Client()), WithEventHandlers(handlers))
	require.NoError(t, err)
	defer loop.Close()

	done := make(chan struct{})
	h, err := loop.RequestPool().Produce(httpServer.URL, WithMethod(http.MethodGet), WithOnComplete(func(_ *RequestHandle) {
		close(done)
	}))
	require.NoError(t, err)
	require.NoError(t, h.Request().SetRequestData((&serverInstruction{
		StatusCode: 200,
		Body:       []bodyChunk{{Data: []byte("loop ok")}},
	}).toJSON()))
	defer h.Release()

	assert.True(t, loop.StartRequest(h))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete in time")
	}

	assert.Equal(t, Success, h.Request().CompletionStatus())
	assert.Equal(t, "loop ok", string(h.Request().ResponseData()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Submitted", "AttemptStarted", "Completed"}, evts)
}

func TestEventLoop_ConcurrencyCeiling(t *testing.T) {
	const ceiling = 2
	const requests = 6

	var active, maxActive int32
	handlers := &HandlerGroup{}
	handlers.PushBack(AttemptStarted, HandlerFunc(func(_ Event, _ *RequestHandle) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
	}))
	handlers.PushBack(Completed, HandlerFunc(func(_ Event, _ *RequestHandle) {
		atomic.AddInt32(&active, -1)
	}))

	loop, err := NewEventLoop(
		WithHTTPDoer(httpServer.Client()),
		WithEventHandlers(handlers),
		WithConcurrency(ceiling),
	)
	require.NoError(t, err)
	defer loop.Close()

	var wg sync.WaitGroup
	wg.Add(requests)
	for i := 0; i < requests; i++ {
		h, err := loop.RequestPool().Produce(httpServer.URL, WithMethod(http.MethodGet), WithOnComplete(func(_ *RequestHandle) {
			wg.Done()
		}))
		require.NoError(t, err)
		require.NoError(t, h.Request().SetRequestData((&serverInstruction{
			HeaderPause: 30 * time.Millisecond,
			StatusCode:  200,
			Body:        []bodyChunk{{Data: []byte("x")}},
		}).toJSON()))
		require.True(t, loop.StartRequest(h))
		h.Release()
	}

	waitTimeout(t, &wg, 10*time.Second)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(ceiling))
}

func TestEventLoop_ResponseWaitTimeout(t *testing.T) {
	var evts []string
	var mu sync.Mutex
	record := func(name string) HandlerFunc {
		return func(_ Event, _ *RequestHandle) {
			mu.Lock()
			evts = append(evts, name)
			mu.Unlock()
		}
	}
	handlers := &HandlerGroup{}
	handlers.PushBack(ResponseWaitExpired, record("ResponseWaitExpired"))
	handlers.PushBack(Completed, record("Completed"))

	loop, err := NewEventLoop(WithHTTPDoer(httpServer.Client()), WithEventHandlers(handlers))
	require.NoError(t, err)
	defer loop.Close()

	done := make(chan struct{})
	h, err := loop.RequestPool().Produce(httpServer.URL,
		WithMethod(http.MethodGet),
		WithResponseWaitTimeout(20*time.Millisecond),
		WithOnComplete(func(_ *RequestHandle) { close(done) }),
	)
	require.NoError(t, err)
	require.NoError(t, h.Request().SetRequestData((&serverInstruction{
		HeaderPause: 300 * time.Millisecond,
		StatusCode:  200,
		Body:        []bodyChunk{{Data: []byte("slow")}},
	}).toJSON()))
	defer h.Release()

	require.True(t, loop.StartRequest(h))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete in time")
	}

	assert.Equal(t, ResponseWaitTimeout, h.Request().CompletionStatus())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ResponseWaitExpired", "Completed"}, evts)
}

func TestEventLoop_StarterGatesAdmission(t *testing.T) {
	starter := racing.NewThrottleStarter(racing.Limit{MaxAttempts: 1, Period: 100 * time.Millisecond})

	var starts []time.Time
	var mu sync.Mutex
	handlers := &HandlerGroup{}
	handlers.PushBack(AttemptStarted, HandlerFunc(func(_ Event, _ *RequestHandle) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
	}))

	loop, err := NewEventLoop(
		WithHTTPDoer(httpServer.Client()),
		WithEventHandlers(handlers),
		WithStarter(starter),
	)
	require.NoError(t, err)
	defer loop.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		h, err := loop.RequestPool().Produce(httpServer.URL, WithMethod(http.MethodGet), WithOnComplete(func(_ *RequestHandle) {
			wg.Done()
		}))
		require.NoError(t, err)
		require.NoError(t, h.Request().SetRequestData((&serverInstruction{
			StatusCode: 200,
			Body:       []bodyChunk{{Data: []byte("x")}},
		}).toJSON()))
		require.True(t, loop.StartRequest(h))
		h.Release()
	}

	waitTimeout(t, &wg, 10*time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 2)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), 80*time.Millisecond)
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal(fmt.Sprintf("timed out after %s waiting for requests to finish", d))
	}
}
