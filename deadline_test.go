// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadlineSet_OrdersByDeadline(t *testing.T) {
	pool := NewRequestPool()
	s := newDeadlineSet()

	h1 := mustProduce(t, pool, "http://a.example/")
	h2 := mustProduce(t, pool, "http://b.example/")
	h3 := mustProduce(t, pool, "http://c.example/")
	defer h1.Release()
	defer h2.Release()
	defer h3.Release()

	s.insert(h1.Clone(), 300)
	s.insert(h2.Clone(), 100)
	s.insert(h3.Clone(), 200)

	at, ok := s.nextDeadline()
	require.True(t, ok)
	assert.Equal(t, int64(100), at)

	expired := s.popExpired(150)
	require.Len(t, expired, 1)
	assert.Same(t, h2.Request(), expired[0].handle.Request())
	expired[0].handle.Release()

	at, ok = s.nextDeadline()
	require.True(t, ok)
	assert.Equal(t, int64(200), at)
}

func TestDeadlineSet_RemoveIfPresent(t *testing.T) {
	pool := NewRequestPool()
	s := newDeadlineSet()

	h1 := mustProduce(t, pool, "http://a.example/")
	h2 := mustProduce(t, pool, "http://b.example/")
	defer h1.Release()
	defer h2.Release()

	s.insert(h1.Clone(), 100)
	s.insert(h2.Clone(), 200)

	s.removeIfPresent(h1.Request())
	assert.Equal(t, -1, h1.Request().deadlineIndex)

	at, ok := s.nextDeadline()
	require.True(t, ok)
	assert.Equal(t, int64(200), at)

	// Removing again is a no-op.
	s.removeIfPresent(h1.Request())

	expired := s.popExpired(200)
	require.Len(t, expired, 1)
	expired[0].handle.Release()
}

func TestDeadlineSet_SameDeadlineOrderedBySeq(t *testing.T) {
	pool := NewRequestPool()
	s := newDeadlineSet()

	h1 := mustProduce(t, pool, "http://a.example/")
	h2 := mustProduce(t, pool, "http://b.example/")
	defer h1.Release()
	defer h2.Release()

	s.insert(h1.Clone(), 100)
	s.insert(h2.Clone(), 100)

	expired := s.popExpired(100)
	require.Len(t, expired, 2)
	assert.Same(t, h1.Request(), expired[0].handle.Request())
	assert.Same(t, h2.Request(), expired[1].handle.Request())
	expired[0].handle.Release()
	expired[1].handle.Release()
}

func TestDeadlineSet_IndexCookieTracksHeapSwaps(t *testing.T) {
	pool := NewRequestPool()
	s := newDeadlineSet()

	var handles []*RequestHandle
	for i := 0; i < 10; i++ {
		h := mustProduce(t, pool, "http://example/")
		handles = append(handles, h)
		s.insert(h.Clone(), int64(100-i))
	}
	for _, h := range handles {
		idx := h.Request().deadlineIndex
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, len(s.entries))
		assert.Same(t, h.Request(), s.entries[idx].handle.Request())
	}
	expired := s.popExpired(1 << 62)
	require.Len(t, expired, 10)
	for _, e := range expired {
		e.handle.Release()
	}
	for _, h := range handles {
		h.Release()
	}
}

func mustProduce(t *testing.T, pool *RequestPool, url string) *RequestHandle {
	t.Helper()
	h, err := pool.Produce(url)
	require.NoError(t, err)
	return h
}
