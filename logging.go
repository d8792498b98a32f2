// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package lift

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// globalLogger holds the most recently constructed EventLoop's logger,
// consulted by the RequestHandle finalizer safety net, which has no
// other way to reach a specific loop's configuration. A nil value (the
// default) disables this diagnostic logging entirely.
var globalLogger atomic.Value // holds *zerolog.Logger

func setGlobalLogger(l *zerolog.Logger) {
	globalLogger.Store(l)
}

func currentLogger() *zerolog.Logger {
	v := globalLogger.Load()
	if v == nil {
		return nil
	}
	return v.(*zerolog.Logger)
}

func logLeakedHandle(r *Request) {
	l := currentLogger()
	if l == nil {
		return
	}
	id := ""
	if r != nil {
		id = r.ID()
	}
	l.Warn().Str("request_id", id).Msg("request handle reclaimed by garbage collector without Release")
}
