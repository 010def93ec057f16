// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tttr decodes packed TTTR-T2 records from a MultiHarp-family
// time-to-digital converter into a normalized, monotonic event stream.
package tttr // import "github.com/go-lpc/tdctoolkit/tttr"

// WraparoundPeriod is the length of one 25-bit time-tag counter cycle,
// expressed in raw time-tag units (2^25).
const WraparoundPeriod uint64 = 33554432

// overflowChannel is the raw channel value (6 bits, all set) that marks
// an overflow record.
const overflowChannel = 0x3F

// DefaultResolutionPS is the picosecond value of one time-tag unit used
// when a decoder is not given an explicit resolution.
const DefaultResolutionPS = 5

// Raw is one 32-bit record as read from the driver FIFO.
//
//	[31]    special
//	[30:25] channel
//	[24:0]  time_tag
type Raw uint32

func (w Raw) special() bool {
	return (w>>31)&0x1 != 0
}

func (w Raw) channel() uint32 {
	return (uint32(w) >> 25) & 0x3F
}

func (w Raw) timeTag() uint32 {
	return uint32(w) & 0x01FFFFFF
}

// Event is a normalized photon-detection event.
type Event struct {
	Channel   uint16
	TimeTagPS uint64
}

// RawBatch is an ordered sequence of raw records, bounded by the size of
// one driver FIFO read.
type RawBatch []Raw

// EventBatch is an ordered sequence of normalized events, preserving the
// arrival order of the raw records that produced them.
type EventBatch []Event
