// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mh160

import (
	"sync"
	"time"
)

// stubInputChannels is the channel count reported by the stub, matching
// the vendor reference stub's synthetic hardware description.
const stubInputChannels = 8

// eventsPerPoll bounds how many synthetic records Stub.ReadFIFO returns
// on a single call, well under TTREADMAX.
const eventsPerPoll = 4

// Stub is an in-memory Facade implementation that synthesizes plausible
// device behavior, so the rest of the pipeline can be developed and
// tested without hardware. It is not safe for concurrent use.
type Stub struct {
	mu sync.Mutex

	opened     bool
	measuring  bool
	started    time.Time
	durationMS int32

	nextTimeTag uint32
	nextChannel uint32

	rowFilterEnabled  [stubInputChannels / 8]bool
	mainFilterEnabled bool
}

var _ Facade = (*Stub)(nil)

// NewStub returns a Stub ready to be Open()'d.
func NewStub() *Stub {
	return &Stub{}
}

func (s *Stub) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return nil
}

func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	return nil
}

func (s *Stub) Initialize(mode Mode, ref RefSource) error {
	return nil
}

func (s *Stub) LibraryVersion() (string, error) { return "Stub", nil }

func (s *Stub) HardwareInfo() (HardwareInfo, error) {
	return HardwareInfo{Model: "Stub", PartNo: "Stub", Version: "1.0"}, nil
}

func (s *Stub) SerialNumber() (string, error) { return "ABC123", nil }

func (s *Stub) BaseResolution() (BaseResolution, error) {
	return BaseResolution{PicoSeconds: 5.0, BinSteps: 0}, nil
}

func (s *Stub) NumberOfInputChannels() (int, error) { return stubInputChannels, nil }

func (s *Stub) NumberOfModules() (int, error) { return 1, nil }

func (s *Stub) ModuleInfo(i int) (model, version int32, err error) { return 1, 1, nil }

func (s *Stub) FeatureFlags() (uint32, error) { return 0xFFFFFFFF, nil }

func (s *Stub) SetSyncDivider(div int32) error                      { return nil }
func (s *Stub) SetSyncEdgeTrigger(levelMV int32, edge Edge) error    { return nil }
func (s *Stub) SetSyncChannelOffset(offsetPS int32) error            { return nil }
func (s *Stub) SetSyncChannelEnable(enable bool) error                { return nil }
func (s *Stub) SetSyncDeadtime(onOff bool, deadtimePS int32) error    { return nil }

func (s *Stub) SetInputEdgeTrigger(channel int, levelMV int32, edge Edge) error { return nil }
func (s *Stub) SetInputChannelOffset(channel int, offsetPS int32) error         { return nil }
func (s *Stub) SetInputChannelEnable(channel int, enable bool) error            { return nil }
func (s *Stub) SetInputDeadtime(channel int, onOff bool, deadtimePS int32) error {
	return nil
}
func (s *Stub) SetInputHysteresis(channel int, hystCode int32) error { return nil }

func (s *Stub) StartMeasurement(ms int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measuring = true
	s.started = time.Now()
	s.durationMS = ms
	return nil
}

func (s *Stub) StopMeasurement() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measuring = false
	return nil
}

func (s *Stub) CTCStatus() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.measuring {
		return 1, nil
	}
	if time.Since(s.started) >= time.Duration(s.durationMS)*time.Millisecond {
		return 1, nil
	}
	return 0, nil
}

func (s *Stub) GetFlags() (Flags, error) { return 0, nil }

// ReadFIFO synthesizes a small batch of normal T2 records cycling across
// the reported input channels, with a strictly increasing time tag. Once
// the measurement duration has elapsed it returns an empty batch, as a
// drained FIFO would.
func (s *Stub) ReadFIFO() ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.measuring {
		return nil, nil
	}
	if time.Since(s.started) >= time.Duration(s.durationMS)*time.Millisecond {
		return nil, nil
	}

	out := make([]uint32, 0, eventsPerPoll)
	for i := 0; i < eventsPerPoll; i++ {
		w := (s.nextChannel & 0x3F) << 25
		w |= s.nextTimeTag & 0x01FFFFFF
		out = append(out, w)

		s.nextChannel = (s.nextChannel + 1) % stubInputChannels
		s.nextTimeTag++
	}
	return out, nil
}

func (s *Stub) SetRowEventFilter(row int, timeRangePS, matchCount int32, invert bool, useMask, passMask uint16) error {
	return nil
}

func (s *Stub) EnableRowEventFilter(row int, enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row >= 0 && row < len(s.rowFilterEnabled) {
		s.rowFilterEnabled[row] = enable
	}
	return nil
}

func (s *Stub) SetMainEventFilterParams(timeRangePS, matchCount int32, invert bool) error { return nil }

func (s *Stub) SetMainEventFilterChannels(row int, useMask, passMask uint16) error { return nil }

func (s *Stub) EnableMainEventFilter(enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mainFilterEnabled = enable
	return nil
}

func (s *Stub) SetFilterTestMode(enable bool) error { return nil }

func (s *Stub) RowFilteredRates(row int) (int32, error) { return 0, nil }

func (s *Stub) MainFilteredRates() (int32, error) { return 0, nil }

func (s *Stub) CountRate(channel int) (int32, error) { return 0, nil }

func (s *Stub) AllCountRates() ([]int32, error) {
	return make([]int32, stubInputChannels), nil
}
