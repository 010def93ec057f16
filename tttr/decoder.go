// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tttr

import (
	"os"

	"github.com/charmbracelet/log"
	"golang.org/x/xerrors"
)

// Decoder turns a stream of raw TTTR-T2 batches into normalized event
// batches. It is stateful and single-threaded: a Decoder must not be
// shared between goroutines.
type Decoder struct {
	overflow     uint64 // accumulated wraparound, in raw time-tag units
	resolutionPS uint64 // picoseconds per time-tag unit

	// strict, when true, turns a channel value at or beyond NumChannels
	// into an error instead of forwarding the event. Left unset by
	// NewDecoder; see WithStrictChannels.
	strict      bool
	numChannels uint32

	log *log.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithResolutionPS overrides the default 5 ps/time-tag-unit resolution.
func WithResolutionPS(ps uint64) Option {
	return func(dec *Decoder) {
		dec.resolutionPS = ps
	}
}

// WithStrictChannels makes the decoder fail with InvalidDevice the first
// time it sees a raw channel value at or beyond numChannels, rather than
// forwarding the event unchecked. The vendor reference forwards them; this
// is the stricter alternative the spec leaves as an implementation choice.
func WithStrictChannels(numChannels uint32) Option {
	return func(dec *Decoder) {
		dec.strict = true
		dec.numChannels = numChannels
	}
}

// WithLogger attaches a logger used to report the legacy zero-time-tag
// overflow branch, which vendor material documents as "shouldn't happen
// with modern firmware".
func WithLogger(l *log.Logger) Option {
	return func(dec *Decoder) {
		dec.log = l
	}
}

// NewDecoder returns a Decoder with fresh state: overflow correction at
// zero, resolution at DefaultResolutionPS.
func NewDecoder(opts ...Option) *Decoder {
	dec := &Decoder{
		resolutionPS: DefaultResolutionPS,
		log:          log.NewWithOptions(os.Stderr, log.Options{Prefix: "tttr"}),
	}
	for _, opt := range opts {
		opt(dec)
	}
	return dec
}

// InvalidDevice reports a device-reported channel value inconsistent with
// the decoder's configured channel count.
type InvalidDevice struct {
	Channel uint32
}

func (e *InvalidDevice) Error() string {
	return xerrors.Errorf("tttr: raw channel %d at or beyond configured channel count", e.Channel).Error()
}

// Decode consumes one raw batch and returns the normalized batch it
// produces, preserving record order and batch boundaries. Overflow
// records contribute no event; the output capacity is sized to the input
// length since, in the worst case, every record emits one event.
func (dec *Decoder) Decode(in RawBatch) (EventBatch, error) {
	out := make(EventBatch, 0, len(in))
	for _, w := range in {
		ev, ok, err := dec.step(w)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (dec *Decoder) step(w Raw) (Event, bool, error) {
	channel := w.channel()

	if !w.special() {
		if dec.strict && channel >= dec.numChannels {
			return Event{}, false, &InvalidDevice{Channel: channel}
		}
		return dec.emit(uint16(channel+1), w.timeTag()), true, nil
	}

	switch channel {
	case overflowChannel:
		tag := w.timeTag()
		if tag == 0 {
			dec.log.Warn("legacy zero time-tag overflow record observed")
			dec.overflow += WraparoundPeriod
		} else {
			dec.overflow += WraparoundPeriod * uint64(tag)
		}
		return Event{}, false, nil

	case 0:
		return dec.emit(0, w.timeTag()), true, nil

	default:
		// external marker, channel in 1..=15: discarded in T2 mode.
		return Event{}, false, nil
	}
}

func (dec *Decoder) emit(channel uint16, tag uint32) Event {
	return Event{
		Channel:   channel,
		TimeTagPS: (dec.overflow + uint64(tag)) * dec.resolutionPS,
	}
}

// OverflowCorrection returns the decoder's current accumulated wraparound,
// in raw time-tag units. Exposed for tests and diagnostics.
func (dec *Decoder) OverflowCorrection() uint64 {
	return dec.overflow
}
