// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipeline spawns the device, decoder and writer workers for one
// measurement, wires them with bounded channels, and aggregates their
// errors.
package pipeline // import "github.com/go-lpc/tdctoolkit/pipeline"

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/tdctoolkit/device"
	"github.com/go-lpc/tdctoolkit/parquetio"
	"github.com/go-lpc/tdctoolkit/tttr"
)

// defaultChannelCapacity is the in-flight-batch bound applied to both the
// raw and normalized channels, providing back-pressure on the device and
// decoder workers.
const defaultChannelCapacity = 32

// Pipeline wires one measurement run's three workers: device, decoder,
// writer.
type Pipeline struct {
	ctrl *device.Controller
	dec  *tttr.Decoder
	w    *parquetio.Writer

	chanCap int
	log     *log.Logger

	watchdogFreq time.Duration
	monitor      bool
	alert        *AlertConfig

	recordingFailed atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithChannelCapacity overrides the default in-flight-batch bound on both
// pipeline channels.
func WithChannelCapacity(n int) Option {
	return func(p *Pipeline) { p.chanCap = n }
}

// WithLogger attaches a logger used for progress and diagnostic output.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithWatchdogFrequency overrides the default ~10 Hz progress-update
// frequency.
func WithWatchdogFrequency(freq time.Duration) Option {
	return func(p *Pipeline) { p.watchdogFreq = freq }
}

// WithResourceMonitor enables periodic CPU/RSS sampling of the running
// process alongside the watchdog's progress updates.
func WithResourceMonitor(enable bool) Option {
	return func(p *Pipeline) { p.monitor = enable }
}

// WithAlert configures a failure-alert email sent after a failed run.
func WithAlert(cfg *AlertConfig) Option {
	return func(p *Pipeline) { p.alert = cfg }
}

// New returns a Pipeline wiring ctrl, dec and w for one measurement.
// Callers remain responsible for ctrl's lifetime: Run streams through it
// but does not close it.
func New(ctrl *device.Controller, dec *tttr.Decoder, w *parquetio.Writer, opts ...Option) *Pipeline {
	p := &Pipeline{
		ctrl:         ctrl,
		dec:          dec,
		w:            w,
		chanCap:      defaultChannelCapacity,
		log:          log.NewWithOptions(os.Stderr, log.Options{Prefix: "pipeline"}),
		watchdogFreq: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run spawns the three workers and blocks until duration has elapsed (as
// observed by the device's own ctc_status) or a worker fails. It returns
// nil iff all workers succeeded, the single worker error if exactly one
// failed, or a *CompositeError if more than one failed.
func (p *Pipeline) Run(ctx context.Context, duration time.Duration) error {
	eg, egCtx := errgroup.WithContext(ctx)

	rawCh := make(chan tttr.RawBatch, p.chanCap)
	normCh := make(chan tttr.EventBatch, p.chanCap)

	var (
		mu   sync.Mutex
		errs = make(map[string]error, 3)
	)
	record := func(worker string, err error) error {
		if err == nil {
			return nil
		}
		mu.Lock()
		errs[worker] = err
		mu.Unlock()
		p.recordingFailed.Store(true)
		return err
	}

	eg.Go(func() error {
		defer close(rawCh)
		return record("device", p.ctrl.Stream(egCtx, duration, rawCh))
	})

	eg.Go(func() error {
		defer close(normCh)
		return record("decoder", p.runDecoder(egCtx, rawCh, normCh))
	})

	eg.Go(func() error {
		return record("writer", p.runWriter(normCh))
	})

	p.watch(egCtx, duration)

	_ = eg.Wait()

	if p.alert != nil && len(errs) > 0 {
		p.alert.send(errs)
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		for _, err := range errs {
			return err
		}
	}
	return &CompositeError{Errs: errs}
}

func (p *Pipeline) runDecoder(ctx context.Context, in <-chan tttr.RawBatch, out chan<- tttr.EventBatch) error {
	for raw := range in {
		batch, err := p.dec.Decode(raw)
		if err != nil {
			return fmt.Errorf("pipeline: decoder failed: %w", err)
		}
		select {
		case out <- batch:
		case <-ctx.Done():
			return &device.PipelineClosed{}
		}
	}
	return nil
}

func (p *Pipeline) runWriter(in <-chan tttr.EventBatch) error {
	for batch := range in {
		if err := p.w.Write(batch); err != nil {
			_ = p.w.Close()
			return fmt.Errorf("pipeline: writer failed: %w", err)
		}
	}
	if err := p.w.Close(); err != nil {
		return fmt.Errorf("pipeline: writer failed to close: %w", err)
	}
	return nil
}
