// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"testing"

	"pgregory.net/rapid"
)

func TestRowMask(t *testing.T) {
	for _, tc := range []struct {
		row      int
		channels []int
		want     uint16
	}{
		{row: 0, channels: []int{1, 2, 8}, want: 0b10000011},
		{row: 1, channels: []int{9, 16}, want: 0b10000001},
		{row: 0, channels: []int{9}, want: 0}, // out of row range
		{row: 0, channels: nil, want: 0},
	} {
		if got := rowMask(tc.row, tc.channels); got != tc.want {
			t.Fatalf("rowMask(%d, %v): got=%08b want=%08b", tc.row, tc.channels, got, tc.want)
		}
	}
}

func TestRowMaskProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		row := rapid.IntRange(0, 7).Draw(rt, "row")
		channels := rapid.SliceOfN(rapid.IntRange(1, 64), 0, 16).Draw(rt, "channels")

		got := rowMask(row, channels)

		lo := row*ChannelsPerRow + 1
		hi := lo + ChannelsPerRow - 1
		var want uint16
		for _, g := range channels {
			if g >= lo && g <= hi {
				want |= 1 << uint(g-lo)
			}
		}

		if got != want {
			rt.Fatalf("rowMask(%d, %v): got=%08b want=%08b", row, channels, got, want)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "duplicate input channel ids",
			cfg: Config{
				InputChannels: []InputChannelConfig{{ID: 1}, {ID: 1}},
			},
			wantErr: true,
		},
		{
			name: "zero input channel id",
			cfg: Config{
				InputChannels: []InputChannelConfig{{ID: 0}},
			},
			wantErr: true,
		},
		{
			name: "time range out of bounds",
			cfg: Config{
				MainFilter: &MainFilterConfig{TimeRangePS: 200000, MatchCount: 1},
			},
			wantErr: true,
		},
		{
			name: "match count out of bounds",
			cfg: Config{
				MainFilter: &MainFilterConfig{TimeRangePS: 1000, MatchCount: 7},
			},
			wantErr: true,
		},
		{
			name: "too many row filters",
			cfg: Config{
				RowFilter: &RowFilterConfig{
					RowFilters: []*RowFilterEntry{{}, {}, {}},
				},
			},
			wantErr: true,
		},
		{
			name: "valid config",
			cfg: Config{
				InputChannels: []InputChannelConfig{{ID: 1}, {ID: 2}},
				MainFilter:    &MainFilterConfig{TimeRangePS: 1000, MatchCount: 2},
			},
			wantErr: false,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate(8, 1)
			if tc.wantErr && err == nil {
				t.Fatalf("expected an error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}
		})
	}
}
