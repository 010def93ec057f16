// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tttr

import (
	"testing"

	"pgregory.net/rapid"
)

func TestDecodeScenarios(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   RawBatch
		want EventBatch
	}{
		{
			name: "S1-single-normal-record",
			in:   RawBatch{0x02000001},
			want: EventBatch{{Channel: 2, TimeTagPS: 5}},
		},
		{
			name: "S2-overflow-then-event",
			in:   RawBatch{0xFE000002, 0x02000001},
			want: EventBatch{{Channel: 2, TimeTagPS: 335544325}},
		},
		{
			name: "S3-sync",
			in:   RawBatch{0x80000007},
			want: EventBatch{{Channel: 0, TimeTagPS: 35}},
		},
		{
			name: "S4-marker-discarded",
			in:   RawBatch{0x82000005},
			want: EventBatch{},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewDecoder()
			got, err := dec.Decode(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("invalid batch length: got=%d want=%d (got=%#v)", len(got), len(tc.want), got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("event[%d]: got=%+v want=%+v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestLegacyZeroOverflowDoesNotZeroCorrection(t *testing.T) {
	dec := NewDecoder()

	// first a real overflow, to push overflow_correction away from zero.
	if _, err := dec.Decode(RawBatch{0xFE000003}); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	before := dec.OverflowCorrection()
	if before != 3*WraparoundPeriod {
		t.Fatalf("invalid overflow after multi-overflow: got=%d want=%d", before, 3*WraparoundPeriod)
	}

	// then a legacy zero-tag overflow: must add one period, never reset.
	if _, err := dec.Decode(RawBatch{0xFE000000}); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	after := dec.OverflowCorrection()
	if after != before+WraparoundPeriod {
		t.Fatalf("legacy overflow corrupted accumulator: got=%d want=%d", after, before+WraparoundPeriod)
	}
}

// TestDecodeProperties exercises the per-record properties from the
// decoder's testable-property list via randomized raw records.
func TestDecodeProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dec := NewDecoder()

		var (
			prevTag    uint64
			haveEvent  bool
			lastRawTag uint32
			numRecords = rapid.IntRange(1, 64).Draw(rt, "numRecords")
		)

		for i := 0; i < numRecords; i++ {
			special := rapid.Boolean().Draw(rt, "special")
			channel := uint32(rapid.IntRange(0, 63).Draw(rt, "channel"))

			// In a continuous device stream the raw time tag only goes back
			// down across an overflow record, so every other record draws a
			// tag no smaller than the last one since the previous overflow.
			isOverflow := special && channel == overflowChannel
			minTag := lastRawTag
			if isOverflow {
				minTag = 0
			}
			tag := uint32(rapid.IntRange(int(minTag), 0x01FFFFFF).Draw(rt, "tag"))
			if isOverflow {
				lastRawTag = 0
			} else {
				lastRawTag = tag
			}

			w := Raw(tag) & 0x01FFFFFF
			w |= Raw(channel&0x3F) << 25
			if special {
				w |= 1 << 31
			}

			overflowBefore := dec.OverflowCorrection()

			out, err := dec.Decode(RawBatch{w})
			if err != nil {
				rt.Fatalf("unexpected error: %+v", err)
			}

			switch {
			case !special:
				// property 1: exactly one event, channel+1, correct time.
				if len(out) != 1 {
					rt.Fatalf("normal record emitted %d events, want 1", len(out))
				}
				wantChan := uint16(channel + 1)
				wantTag := (overflowBefore + uint64(tag)) * DefaultResolutionPS
				if out[0].Channel != wantChan || out[0].TimeTagPS != wantTag {
					rt.Fatalf("normal record: got=%+v want={%d %d}", out[0], wantChan, wantTag)
				}
			case channel == overflowChannel:
				// properties 2 and 3: no event, correction advances monotonically.
				if len(out) != 0 {
					rt.Fatalf("overflow record emitted an event: %+v", out)
				}
				var want uint64
				if tag == 0 {
					want = overflowBefore + WraparoundPeriod
				} else {
					want = overflowBefore + WraparoundPeriod*uint64(tag)
				}
				if dec.OverflowCorrection() != want {
					rt.Fatalf("overflow correction: got=%d want=%d", dec.OverflowCorrection(), want)
				}
			case channel == 0:
				// property 4: sync record always emits channel 0.
				if len(out) != 1 || out[0].Channel != 0 {
					rt.Fatalf("sync record: got=%+v", out)
				}
			default:
				// property 5: markers 1..15 emit nothing.
				if len(out) != 0 {
					rt.Fatalf("marker record emitted an event: %+v", out)
				}
			}

			// property 6: time tags are non-decreasing across the stream.
			if len(out) == 1 {
				if haveEvent && out[0].TimeTagPS < prevTag {
					rt.Fatalf("time tag decreased: prev=%d got=%d", prevTag, out[0].TimeTagPS)
				}
				prevTag = out[0].TimeTagPS
				haveEvent = true
			}

			// overflow_correction must never decrease.
			if dec.OverflowCorrection() < overflowBefore {
				rt.Fatalf("overflow correction decreased: before=%d after=%d", overflowBefore, dec.OverflowCorrection())
			}
		}
	})
}

func TestDecodeBatchShapePreserved(t *testing.T) {
	dec := NewDecoder()
	in := RawBatch{0x02000001, 0xFE000001, 0x80000002, 0x82000003, 0x02000004}
	out, err := dec.Decode(in)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	// property 7 (partial): order preserved; only non-overflow/marker
	// records contribute an event, in arrival order.
	want := []uint16{2, 0, 2}
	if len(out) != len(want) {
		t.Fatalf("invalid output length: got=%d want=%d", len(out), len(want))
	}
	for i, ch := range want {
		if out[i].Channel != ch {
			t.Fatalf("event[%d].Channel: got=%d want=%d", i, out[i].Channel, ch)
		}
	}
}
