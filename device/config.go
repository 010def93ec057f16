// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import "fmt"

// ChannelsPerRow is the number of consecutive global channel ids a single
// hardware coincidence-filter row covers.
const ChannelsPerRow = 8

// Edge mirrors mh160.Edge at the JSON-config boundary.
type Edge int

const (
	EdgeFalling Edge = iota
	EdgeRising
)

// UnmarshalJSON accepts the "falling"/"rising" strings used by the device
// configuration file.
func (e *Edge) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"falling"`:
		*e = EdgeFalling
	case `"rising"`:
		*e = EdgeRising
	default:
		return &InvalidConfig{Path: "edge_trigger", Value: string(data)}
	}
	return nil
}

// MarshalJSON renders Edge back to its JSON string form.
func (e Edge) MarshalJSON() ([]byte, error) {
	switch e {
	case EdgeFalling:
		return []byte(`"falling"`), nil
	case EdgeRising:
		return []byte(`"rising"`), nil
	default:
		return nil, fmt.Errorf("device: invalid edge value %d", e)
	}
}

// SyncChannelConfig configures the device's sync input.
type SyncChannelConfig struct {
	Divider          int  `json:"divider"`
	EdgeTriggerLevel int  `json:"edge_trigger_level"`
	EdgeTrigger      Edge `json:"edge_trigger"`
	Offset           int  `json:"offset"`
	DeadtimePS       int  `json:"deadtime_ps,omitempty"`
}

// InputChannelConfig configures one detector input channel.
type InputChannelConfig struct {
	ID               int  `json:"id"`
	EdgeTriggerLevel int  `json:"edge_trigger_level"`
	EdgeTrigger      Edge `json:"edge_trigger"`
	Offset           int  `json:"offset"`
	DeadtimePS       int  `json:"deadtime_ps,omitempty"`
}

// MainFilterConfig configures the device's cross-row coincidence filter.
type MainFilterConfig struct {
	Enable       *int  `json:"enable,omitempty"` // default 1 when nil
	TimeRangePS  int   `json:"time_range_ps"`
	MatchCount   int   `json:"match_count"`
	Invert       int   `json:"invert,omitempty"`
	PassChannels []int `json:"pass_channels"`
	UseChannels  []int `json:"use_channels"`
}

func (c *MainFilterConfig) enabled() bool {
	if c.Enable == nil {
		return true
	}
	return *c.Enable != 0
}

// RowFilterEntry configures one hardware row's coincidence filter.
type RowFilterEntry struct {
	TimeRangePS  int   `json:"time_range_ps"`
	Invert       int   `json:"invert,omitempty"`
	PassChannels []int `json:"pass_channels"`
	UseChannels  []int `json:"use_channels"`
	MatchCount   int   `json:"match_count"`
}

// RowFilterConfig configures per-row coincidence filters.
type RowFilterConfig struct {
	RowFilters []*RowFilterEntry `json:"row_filters"`
}

// Config is the full device front-end configuration, as decoded from the
// device-config JSON file.
type Config struct {
	SyncChannel    *SyncChannelConfig    `json:"sync_channel"`
	InputChannels  []InputChannelConfig  `json:"input_channels"`
	MainFilter     *MainFilterConfig     `json:"main_filter"`
	RowFilter      *RowFilterConfig      `json:"row_filter"`
}

// Validate checks the structural invariants a Config must satisfy before
// it can be programmed onto a device. numInputChannels and numRows come
// from the device's own reported capabilities.
func (c *Config) Validate(numInputChannels, numRows int) error {
	seen := make(map[int]bool, len(c.InputChannels))
	for _, ic := range c.InputChannels {
		if ic.ID < 1 {
			return &InvalidConfig{Path: "input_channels[].id", Value: fmt.Sprintf("%d", ic.ID)}
		}
		if seen[ic.ID] {
			return &InvalidConfig{Path: "input_channels[].id", Value: fmt.Sprintf("duplicate id %d", ic.ID)}
		}
		seen[ic.ID] = true
	}

	if c.MainFilter != nil {
		if err := validateFilterParams("main_filter", c.MainFilter.TimeRangePS, c.MainFilter.MatchCount); err != nil {
			return err
		}
		if err := validateChannelList("main_filter.pass_channels", c.MainFilter.PassChannels, numInputChannels); err != nil {
			return err
		}
		if err := validateChannelList("main_filter.use_channels", c.MainFilter.UseChannels, numInputChannels); err != nil {
			return err
		}
	}

	if c.RowFilter != nil {
		if len(c.RowFilter.RowFilters) > numRows {
			return &InvalidConfig{Path: "row_filter.row_filters", Value: fmt.Sprintf("len=%d > num_rows=%d", len(c.RowFilter.RowFilters), numRows)}
		}
		for i, rf := range c.RowFilter.RowFilters {
			if rf == nil {
				continue
			}
			path := fmt.Sprintf("row_filter.row_filters[%d]", i)
			if err := validateFilterParams(path, rf.TimeRangePS, rf.MatchCount); err != nil {
				return err
			}
			if err := validateChannelList(path+".pass_channels", rf.PassChannels, numInputChannels); err != nil {
				return err
			}
			if err := validateChannelList(path+".use_channels", rf.UseChannels, numInputChannels); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateFilterParams(path string, timeRangePS, matchCount int) error {
	if timeRangePS < 0 || timeRangePS > 160000 {
		return &InvalidConfig{Path: path + ".time_range_ps", Value: fmt.Sprintf("%d", timeRangePS)}
	}
	if matchCount < 1 || matchCount > 6 {
		return &InvalidConfig{Path: path + ".match_count", Value: fmt.Sprintf("%d", matchCount)}
	}
	return nil
}

func validateChannelList(path string, channels []int, numInputChannels int) error {
	for _, ch := range channels {
		if ch < 0 || ch > numInputChannels {
			return &InvalidConfig{Path: path, Value: fmt.Sprintf("%d", ch)}
		}
	}
	return nil
}

// rowMask translates a global channel-id list into an 8-bit row-local
// mask for hardware row. A global id g contributes to row iff
// g in [row*8+1, row*8+8]; its bit position is g-(row*8+1). Sync (id 0)
// is never included in a row mask.
func rowMask(row int, channels []int) uint16 {
	lo := row*ChannelsPerRow + 1
	hi := lo + ChannelsPerRow - 1

	var mask uint16
	for _, g := range channels {
		if g < lo || g > hi {
			continue
		}
		mask |= 1 << uint(g-lo)
	}
	return mask
}
