// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/sbinet/pmon"
)

// resourceMonitor samples the current process's CPU and memory usage at
// a low frequency for the duration of a run, logging failures rather
// than treating them as fatal.
type resourceMonitor struct {
	log     *log.Logger
	started bool
	p       *pmon.Stats
}

func newResourceMonitor(l *log.Logger) *resourceMonitor {
	return &resourceMonitor{log: l}
}

// sample starts the underlying pmon watch on first use, with its output
// written to stderr; subsequent calls are no-ops, as pmon.Stats samples
// on its own internal ticker once running.
func (m *resourceMonitor) sample() {
	if m.started {
		return
	}
	m.started = true

	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		m.log.Warn("could not start resource monitor", "err", err)
		return
	}
	m.p = p
	m.p.W = os.Stderr

	go func() {
		if err := m.p.Run(); err != nil {
			m.log.Warn("resource monitor stopped", "err", err)
		}
	}()
}

func (m *resourceMonitor) stop() error {
	if m.p == nil {
		return nil
	}
	if err := m.p.Kill(); err != nil {
		return fmt.Errorf("pipeline: could not stop resource monitor: %w", err)
	}
	return nil
}
