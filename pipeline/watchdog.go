// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"time"
)

// watch logs periodic progress updates at p.watchdogFreq until ctx is
// canceled or duration has elapsed, and samples process resources if
// enabled. It never returns an error: a failed resource sample is logged
// and skipped, never treated as a worker failure.
func (p *Pipeline) watch(ctx context.Context, duration time.Duration) {
	deadline := time.Now().Add(duration)

	tick := time.NewTicker(p.watchdogFreq)
	defer tick.Stop()

	var mon *resourceMonitor
	if p.monitor {
		mon = newResourceMonitor(p.log)
		defer func() {
			if err := mon.stop(); err != nil {
				p.log.Warn("could not stop resource monitor cleanly", "err", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			if p.recordingFailed.Load() {
				return
			}
			remaining := deadline.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			p.log.Debug("run progress", "remaining", remaining.Round(10*time.Millisecond))
			if mon != nil {
				mon.sample()
			}
			if now.After(deadline) {
				return
			}
		}
	}
}
