// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import "fmt"

// InvalidConfig reports a user error in the device-configuration JSON or
// a command-line argument: an out-of-range value, a duplicate channel id,
// or a malformed field.
type InvalidConfig struct {
	Path  string
	Value string
}

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("device: invalid config at %s (value=%s)", e.Path, e.Value)
}

// InvalidDevice reports that the device reported state inconsistent with
// the controller's invariants, e.g. a channel count that isn't a multiple
// of ChannelsPerRow.
type InvalidDevice struct {
	Reason string
}

func (e *InvalidDevice) Error() string {
	return fmt.Sprintf("device: invalid device state: %s", e.Reason)
}

// FifoOverrun reports that the driver's FIFO_FULL flag was observed
// during streaming. Fatal for the measurement: some FIFO data is
// presumed lost and is not recovered.
type FifoOverrun struct{}

func (e *FifoOverrun) Error() string { return "device: FIFO overrun" }

// PipelineClosed reports that Stream could not hand a raw batch to its
// sink because the sink's context was canceled, meaning a downstream
// worker has already died.
type PipelineClosed struct{}

func (e *PipelineClosed) Error() string { return "device: downstream pipeline closed" }

// StreamError wraps the root cause of a failed Stream call together with
// a secondary error observed while stopping the measurement on the way
// out, mirroring the "attach stop error to root cause" shutdown policy.
type StreamError struct {
	Root      error
	Secondary error
}

func (e *StreamError) Error() string {
	if e.Secondary != nil {
		return fmt.Sprintf("%v (secondary error while stopping measurement: %v)", e.Root, e.Secondary)
	}
	return e.Root.Error()
}

func (e *StreamError) Unwrap() error { return e.Root }
