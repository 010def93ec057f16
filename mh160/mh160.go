// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mh160 defines the capability set exposed by a MultiHarp-family
// TDC, plus a real implementation backed by the vendor's shared library
// and an in-memory stub implementation used for development and tests.
package mh160 // import "github.com/go-lpc/tdctoolkit/mh160"

// TTREADMAX is the maximum number of 32-bit words the driver returns from
// a single FIFO read.
const TTREADMAX = 1048576

// Mode selects the measurement mode a device is initialized into.
type Mode int

const (
	ModeHistogramming Mode = iota
	ModeT2
	ModeT3
	ModeContinuous
)

// RefSource selects the device's timing reference.
type RefSource int

const (
	RefSourceInternal RefSource = iota
	RefSourceExternal10MHz
	RefSourceWhiteRabbit
	RefSourceExternal100MHz
	RefSourceExternal500MHz
)

// Edge selects a trigger edge polarity.
type Edge int

const (
	EdgeFalling Edge = iota
	EdgeRising
)

// HardwareInfo is the device identity reported by library_info/hardware_info.
type HardwareInfo struct {
	Model     string
	PartNo    string
	Version   string
}

// BaseResolution is the device's native time-tag resolution.
type BaseResolution struct {
	PicoSeconds float64
	BinSteps    int32
}

// Flags is the device status bitmask returned by get_flags.
type Flags uint32

const (
	// FlagFifoFull marks that the FIFO has overrun; bit 2 per vendor docs.
	FlagFifoFull Flags = 1 << 2
)

// Facade is the capability set any device implementation (real or stub)
// must satisfy. A Facade binds exactly one device index; it is not safe
// for concurrent use by more than one goroutine, mirroring the vendor
// library's own single-threaded-per-handle contract.
type Facade interface {
	// Lifecycle
	Open() error
	Close() error
	Initialize(mode Mode, ref RefSource) error

	// Identity
	LibraryVersion() (string, error)
	HardwareInfo() (HardwareInfo, error)
	SerialNumber() (string, error)
	BaseResolution() (BaseResolution, error)
	NumberOfInputChannels() (int, error)
	NumberOfModules() (int, error)
	ModuleInfo(i int) (model, version int32, err error)
	FeatureFlags() (uint32, error)

	// Front-end: sync channel
	SetSyncDivider(div int32) error
	SetSyncEdgeTrigger(levelMV int32, edge Edge) error
	SetSyncChannelOffset(offsetPS int32) error
	SetSyncChannelEnable(enable bool) error
	SetSyncDeadtime(onOff bool, deadtimePS int32) error

	// Front-end: input channels
	SetInputEdgeTrigger(channel int, levelMV int32, edge Edge) error
	SetInputChannelOffset(channel int, offsetPS int32) error
	SetInputChannelEnable(channel int, enable bool) error
	SetInputDeadtime(channel int, onOff bool, deadtimePS int32) error
	SetInputHysteresis(channel int, hystCode int32) error

	// Acquisition
	StartMeasurement(ms int32) error
	StopMeasurement() error
	CTCStatus() (int32, error)
	GetFlags() (Flags, error)
	ReadFIFO() ([]uint32, error)

	// Event filter (optional capability; gated by FeatureFlags)
	SetRowEventFilter(row int, timeRangePS, matchCount int32, invert bool, useMask, passMask uint16) error
	EnableRowEventFilter(row int, enable bool) error
	SetMainEventFilterParams(timeRangePS, matchCount int32, invert bool) error
	SetMainEventFilterChannels(row int, useMask, passMask uint16) error
	EnableMainEventFilter(enable bool) error
	SetFilterTestMode(enable bool) error
	RowFilteredRates(row int) (int32, error)
	MainFilteredRates() (int32, error)

	// CountRate introspection, supplementing the vendor-documented
	// surface for the `info` command.
	CountRate(channel int) (int32, error)
	AllCountRates() ([]int32, error)
}
