// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device validates configuration, programs channel and
// coincidence-filter state onto a mh160.Facade, and owns the device's
// lifetime for exactly one measurement.
package device // import "github.com/go-lpc/tdctoolkit/device"

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/go-lpc/tdctoolkit/mh160"
	"github.com/go-lpc/tdctoolkit/tttr"
)

// Info is an immutable snapshot of device identity, taken once when the
// Controller is constructed.
type Info struct {
	DeviceIndex    int
	Model          string
	PartNo         string
	FWVersion      string
	SerialNumber   string
	LibraryVersion string
	ResolutionPS   float64
	NumChannels    int
	NumRows        int
	CountRates     []int32
}

// Controller owns exactly one mh160.Facade instance for the lifetime of
// one measurement session.
type Controller struct {
	facade mh160.Facade
	log    *log.Logger
	info   Info

	deviceIndex int

	rowsConfigured bool
	mainConfigured bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger attaches a logger to the Controller, used to report
// best-effort shutdown failures that cannot otherwise be propagated.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// WithDeviceIndex records the MultiHarp device index the facade was
// opened against, surfaced on Info for the info subcommand's output.
// mh160.Facade has no way to report its own index back, so the caller
// that built the facade must supply it.
func WithDeviceIndex(index int) Option {
	return func(c *Controller) {
		c.deviceIndex = index
	}
}

func newController(facade mh160.Facade, opts ...Option) *Controller {
	c := &Controller{
		facade: facade,
		log:    log.NewWithOptions(os.Stderr, log.Options{Prefix: "device"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromCurrentConfig opens and initializes the device to T2 mode with an
// internal clock, reads its identity, and returns a Controller that has
// not altered any front-end setting.
func FromCurrentConfig(facade mh160.Facade, opts ...Option) (*Controller, error) {
	c := newController(facade, opts...)

	if err := c.openAndInitialize(); err != nil {
		return nil, err
	}

	info, err := c.readInfo()
	if err != nil {
		c.closeQuiet()
		return nil, err
	}
	c.info = info

	return c, nil
}

// FromConfig opens and initializes the device, then programs the
// front-end in the fixed order required by the device's coincidence-
// filter state machine: sync, inputs, disable-unlisted, row filters,
// main filter.
func FromConfig(facade mh160.Facade, cfg *Config, opts ...Option) (*Controller, error) {
	c := newController(facade, opts...)

	if err := c.openAndInitialize(); err != nil {
		return nil, err
	}

	info, err := c.readInfo()
	if err != nil {
		c.closeQuiet()
		return nil, err
	}
	c.info = info

	if err := cfg.Validate(info.NumChannels, info.NumRows); err != nil {
		c.closeQuiet()
		return nil, err
	}

	if err := c.program(cfg); err != nil {
		c.closeQuiet()
		return nil, err
	}

	return c, nil
}

func (c *Controller) openAndInitialize() error {
	if err := c.facade.Open(); err != nil {
		return fmt.Errorf("device: could not open device: %w", err)
	}
	if err := c.facade.Initialize(mh160.ModeT2, mh160.RefSourceInternal); err != nil {
		c.closeQuiet()
		return fmt.Errorf("device: could not initialize device: %w", err)
	}
	return nil
}

func (c *Controller) readInfo() (Info, error) {
	hw, err := c.facade.HardwareInfo()
	if err != nil {
		return Info{}, fmt.Errorf("device: could not read hardware info: %w", err)
	}
	res, err := c.facade.BaseResolution()
	if err != nil {
		return Info{}, fmt.Errorf("device: could not read base resolution: %w", err)
	}
	serial, err := c.facade.SerialNumber()
	if err != nil {
		return Info{}, fmt.Errorf("device: could not read serial number: %w", err)
	}
	libVersion, err := c.facade.LibraryVersion()
	if err != nil {
		return Info{}, fmt.Errorf("device: could not read library version: %w", err)
	}
	numChannels, err := c.facade.NumberOfInputChannels()
	if err != nil {
		return Info{}, fmt.Errorf("device: could not read channel count: %w", err)
	}
	if numChannels%ChannelsPerRow != 0 {
		return Info{}, &InvalidDevice{Reason: fmt.Sprintf("channel count %d is not a multiple of %d", numChannels, ChannelsPerRow)}
	}

	return Info{
		DeviceIndex:    c.deviceIndex,
		Model:          hw.Model,
		PartNo:         hw.PartNo,
		FWVersion:      hw.Version,
		SerialNumber:   serial,
		LibraryVersion: libVersion,
		ResolutionPS:   res.PicoSeconds,
		NumChannels:    numChannels,
		NumRows:        numChannels / ChannelsPerRow,
	}, nil
}

// program applies cfg to the device front-end in the order mandated by
// the coincidence-filter state machine: sync, inputs, disable-unlisted,
// row filters, main filter. Rows must be programmed before main; main's
// enable must come after its channel masks are set; test mode must be
// cleared before enabling.
func (c *Controller) program(cfg *Config) error {
	if err := c.programSync(cfg.SyncChannel); err != nil {
		return err
	}
	if err := c.programInputs(cfg.InputChannels); err != nil {
		return err
	}
	if err := c.programRowFilter(cfg.RowFilter); err != nil {
		return err
	}
	if err := c.programMainFilter(cfg.MainFilter); err != nil {
		return err
	}
	return nil
}

func (c *Controller) programSync(sync *SyncChannelConfig) error {
	if sync == nil {
		return c.facade.SetSyncChannelEnable(false)
	}
	if err := c.facade.SetSyncChannelEnable(true); err != nil {
		return fmt.Errorf("device: could not enable sync channel: %w", err)
	}
	if err := c.facade.SetSyncDivider(int32(sync.Divider)); err != nil {
		return fmt.Errorf("device: could not set sync divider: %w", err)
	}
	if err := c.facade.SetSyncEdgeTrigger(int32(sync.EdgeTriggerLevel), mh160.Edge(sync.EdgeTrigger)); err != nil {
		return fmt.Errorf("device: could not set sync edge trigger: %w", err)
	}
	if err := c.facade.SetSyncChannelOffset(int32(sync.Offset)); err != nil {
		return fmt.Errorf("device: could not set sync offset: %w", err)
	}
	if sync.DeadtimePS != 0 {
		if err := c.facade.SetSyncDeadtime(true, int32(sync.DeadtimePS)); err != nil {
			return fmt.Errorf("device: could not set sync deadtime: %w", err)
		}
	}
	return nil
}

func (c *Controller) programInputs(inputs []InputChannelConfig) error {
	listed := make(map[int]bool, len(inputs))
	for _, in := range inputs {
		driverID := in.ID - 1
		listed[in.ID] = true

		if err := c.facade.SetInputChannelEnable(driverID, true); err != nil {
			return fmt.Errorf("device: could not enable input channel %d: %w", in.ID, err)
		}
		if err := c.facade.SetInputEdgeTrigger(driverID, int32(in.EdgeTriggerLevel), mh160.Edge(in.EdgeTrigger)); err != nil {
			return fmt.Errorf("device: could not set edge trigger on input channel %d: %w", in.ID, err)
		}
		if err := c.facade.SetInputChannelOffset(driverID, int32(in.Offset)); err != nil {
			return fmt.Errorf("device: could not set offset on input channel %d: %w", in.ID, err)
		}
		if in.DeadtimePS != 0 {
			if err := c.facade.SetInputDeadtime(driverID, true, int32(in.DeadtimePS)); err != nil {
				return fmt.Errorf("device: could not set deadtime on input channel %d: %w", in.ID, err)
			}
		}
	}

	for id := 1; id <= c.info.NumChannels; id++ {
		if listed[id] {
			continue
		}
		if err := c.facade.SetInputChannelEnable(id-1, false); err != nil {
			return fmt.Errorf("device: could not disable input channel %d: %w", id, err)
		}
	}

	return nil
}

func (c *Controller) programRowFilter(rf *RowFilterConfig) error {
	for row := 0; row < c.info.NumRows; row++ {
		var entry *RowFilterEntry
		if rf != nil && row < len(rf.RowFilters) {
			entry = rf.RowFilters[row]
		}
		if entry == nil {
			if err := c.facade.EnableRowEventFilter(row, false); err != nil {
				return fmt.Errorf("device: could not disable row filter %d: %w", row, err)
			}
			continue
		}

		useMask := rowMask(row, entry.UseChannels)
		passMask := rowMask(row, entry.PassChannels)
		err := c.facade.SetRowEventFilter(
			row, int32(entry.TimeRangePS), int32(entry.MatchCount),
			entry.Invert != 0, useMask, passMask,
		)
		if err != nil {
			return fmt.Errorf("device: could not program row filter %d: %w", row, err)
		}
		if err := c.facade.EnableRowEventFilter(row, true); err != nil {
			return fmt.Errorf("device: could not enable row filter %d: %w", row, err)
		}
		c.rowsConfigured = true
	}
	return nil
}

func (c *Controller) programMainFilter(mf *MainFilterConfig) error {
	if mf == nil {
		return c.facade.EnableMainEventFilter(false)
	}

	if err := c.facade.SetMainEventFilterParams(int32(mf.TimeRangePS), int32(mf.MatchCount), mf.Invert != 0); err != nil {
		return fmt.Errorf("device: could not set main filter params: %w", err)
	}

	for row := 0; row < c.info.NumRows; row++ {
		useMask := rowMask(row, mf.UseChannels)
		passMask := rowMask(row, mf.PassChannels)
		if err := c.facade.SetMainEventFilterChannels(row, useMask, passMask); err != nil {
			return fmt.Errorf("device: could not set main filter channels for row %d: %w", row, err)
		}
	}

	if err := c.facade.SetFilterTestMode(false); err != nil {
		return fmt.Errorf("device: could not clear filter test mode: %w", err)
	}

	if err := c.facade.EnableMainEventFilter(mf.enabled()); err != nil {
		return fmt.Errorf("device: could not set main filter enable: %w", err)
	}
	c.mainConfigured = true

	return nil
}

// GetDeviceInfo returns the immutable identity snapshot taken at
// construction time.
func (c *Controller) GetDeviceInfo() Info {
	return c.info
}

// CountRates reads the current per-channel count rates from the device.
// Only meaningful when no measurement is in progress.
func (c *Controller) CountRates() ([]int32, error) {
	rates, err := c.facade.AllCountRates()
	if err != nil {
		return nil, fmt.Errorf("device: could not read count rates: %w", err)
	}
	return rates, nil
}

// Stream streams raw batches into out for duration. It blocks until the
// measurement completes, an error occurs, or ctx is canceled by a
// downstream consumer's death. Back-pressure comes entirely from out;
// Stream never sleeps between iterations.
func (c *Controller) Stream(ctx context.Context, duration time.Duration, out chan<- tttr.RawBatch) (err error) {
	if err := c.facade.StartMeasurement(int32(duration.Milliseconds())); err != nil {
		return fmt.Errorf("device: could not start measurement: %w", err)
	}

	var root error
loop:
	for {
		flags, ferr := c.facade.GetFlags()
		if ferr != nil {
			root = fmt.Errorf("device: could not read flags: %w", ferr)
			break
		}
		if flags&mh160.FlagFifoFull != 0 {
			root = &FifoOverrun{}
			break
		}

		words, rerr := c.facade.ReadFIFO()
		if rerr != nil {
			root = fmt.Errorf("device: could not read FIFO: %w", rerr)
			break
		}

		if len(words) > 0 {
			batch := make(tttr.RawBatch, len(words))
			for i, w := range words {
				batch[i] = tttr.Raw(w)
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				root = &PipelineClosed{}
				break loop
			}
			continue
		}

		status, serr := c.facade.CTCStatus()
		if serr != nil {
			root = fmt.Errorf("device: could not read ctc status: %w", serr)
			break
		}
		if status != 0 {
			break
		}
	}

	stopErr := c.facade.StopMeasurement()
	if stopErr != nil {
		stopErr = fmt.Errorf("device: could not stop measurement: %w", stopErr)
	}

	switch {
	case root != nil && stopErr != nil:
		return &StreamError{Root: root, Secondary: stopErr}
	case root != nil:
		return root
	case stopErr != nil:
		return stopErr
	default:
		return nil
	}
}

// Close defensively disables every configured row and main event filter
// and clears test mode, then closes the device. Every error encountered,
// including a failure to close the device itself, is logged at Warn and
// never returned: destructors cannot fail.
func (c *Controller) Close() error {
	if c.rowsConfigured {
		for row := 0; row < c.info.NumRows; row++ {
			if err := c.facade.EnableRowEventFilter(row, false); err != nil {
				c.log.Warn("could not disable row filter on close", "row", row, "err", err)
			}
		}
	}
	if c.mainConfigured {
		if err := c.facade.SetFilterTestMode(false); err != nil {
			c.log.Warn("could not clear filter test mode on close", "err", err)
		}
		if err := c.facade.EnableMainEventFilter(false); err != nil {
			c.log.Warn("could not disable main filter on close", "err", err)
		}
	}

	if err := c.facade.Close(); err != nil {
		c.log.Warn("could not close device", "err", err)
	}
	return nil
}

func (c *Controller) closeQuiet() {
	if err := c.facade.Close(); err != nil {
		c.log.Warn("could not close device after setup failure", "err", err)
	}
}
