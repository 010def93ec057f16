// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build mh160hw

package mh160

/*
#cgo LDFLAGS: -lmhlib
#include <stdlib.h>
#include "mhlib.h"
*/
import "C"

import (
	"unsafe"
)

// Real is a Facade backed by the vendor MHLib shared library. It binds
// one device index for its entire lifetime and is not safe for
// concurrent use, matching the vendor's single-threaded-per-handle
// contract (see design notes on global mutable state in the library).
type Real struct {
	index int32
}

var _ Facade = (*Real)(nil)

// NewReal returns a Real bound to the given MultiHarp device index.
func NewReal(index int) *Real {
	return &Real{index: int32(index)}
}

func (r *Real) Open() error {
	code := C.MH_OpenDevice(C.int(r.index), nil)
	if code != 0 {
		return newDriverError("open_device", int32(code))
	}
	return nil
}

func (r *Real) Close() error {
	code := C.MH_CloseDevice(C.int(r.index))
	if code != 0 {
		return newDriverError("close_device", int32(code))
	}
	return nil
}

func (r *Real) Initialize(mode Mode, ref RefSource) error {
	code := C.MH_Initialize(C.int(r.index), C.int(mode), C.int(ref))
	if code != 0 {
		return newDriverError("initialize", int32(code))
	}
	return nil
}

func (r *Real) LibraryVersion() (string, error) {
	var buf [8]C.char
	code := C.MH_GetLibraryVersion(&buf[0])
	if code != 0 {
		return "", newDriverError("get_library_version", int32(code))
	}
	return C.GoString(&buf[0]), nil
}

func (r *Real) HardwareInfo() (HardwareInfo, error) {
	var model, partno, version [16]C.char
	code := C.MH_GetHardwareInfo(C.int(r.index), &model[0], &partno[0], &version[0])
	if code != 0 {
		return HardwareInfo{}, newDriverError("get_hardware_info", int32(code))
	}
	return HardwareInfo{
		Model:   C.GoString(&model[0]),
		PartNo:  C.GoString(&partno[0]),
		Version: C.GoString(&version[0]),
	}, nil
}

func (r *Real) SerialNumber() (string, error) {
	var buf [8]C.char
	code := C.MH_GetSerialNumber(C.int(r.index), &buf[0])
	if code != 0 {
		return "", newDriverError("get_serial_number", int32(code))
	}
	return C.GoString(&buf[0]), nil
}

func (r *Real) BaseResolution() (BaseResolution, error) {
	var ps C.double
	var bs C.int
	code := C.MH_GetBaseResolution(C.int(r.index), &ps, &bs)
	if code != 0 {
		return BaseResolution{}, newDriverError("get_base_resolution", int32(code))
	}
	return BaseResolution{PicoSeconds: float64(ps), BinSteps: int32(bs)}, nil
}

func (r *Real) NumberOfInputChannels() (int, error) {
	var n C.int
	code := C.MH_GetNumOfInputChannels(C.int(r.index), &n)
	if code != 0 {
		return 0, newDriverError("get_num_of_input_channels", int32(code))
	}
	return int(n), nil
}

func (r *Real) NumberOfModules() (int, error) {
	var n C.int
	code := C.MH_GetNumOfModules(C.int(r.index), &n)
	if code != 0 {
		return 0, newDriverError("get_num_of_modules", int32(code))
	}
	return int(n), nil
}

func (r *Real) ModuleInfo(i int) (model, version int32, err error) {
	var m, v C.int
	code := C.MH_GetModuleInfo(C.int(r.index), C.int(i), &m, &v)
	if code != 0 {
		return 0, 0, newDriverError("get_module_info", int32(code))
	}
	return int32(m), int32(v), nil
}

func (r *Real) FeatureFlags() (uint32, error) {
	var f C.int
	code := C.MH_GetFeatures(C.int(r.index), &f)
	if code != 0 {
		return 0, newDriverError("get_features", int32(code))
	}
	return uint32(f), nil
}

func (r *Real) SetSyncDivider(div int32) error {
	code := C.MH_SetSyncDiv(C.int(r.index), C.int(div))
	if code != 0 {
		return newDriverError("set_sync_div", int32(code))
	}
	return nil
}

func (r *Real) SetSyncEdgeTrigger(levelMV int32, edge Edge) error {
	code := C.MH_SetSyncEdgeTrg(C.int(r.index), C.int(levelMV), C.int(edge))
	if code != 0 {
		return newDriverError("set_sync_edge_trg", int32(code))
	}
	return nil
}

func (r *Real) SetSyncChannelOffset(offsetPS int32) error {
	code := C.MH_SetSyncChannelOffset(C.int(r.index), C.int(offsetPS))
	if code != 0 {
		return newDriverError("set_sync_channel_offset", int32(code))
	}
	return nil
}

func (r *Real) SetSyncChannelEnable(enable bool) error {
	code := C.MH_SetSyncChannelEnable(C.int(r.index), boolToC(enable))
	if code != 0 {
		return newDriverError("set_sync_channel_enable", int32(code))
	}
	return nil
}

func (r *Real) SetSyncDeadtime(onOff bool, deadtimePS int32) error {
	code := C.MH_SetSyncDeadTime(C.int(r.index), boolToC(onOff), C.int(deadtimePS))
	if code != 0 {
		return newDriverError("set_sync_dead_time", int32(code))
	}
	return nil
}

func (r *Real) SetInputEdgeTrigger(channel int, levelMV int32, edge Edge) error {
	code := C.MH_SetInputEdgeTrg(C.int(r.index), C.int(channel), C.int(levelMV), C.int(edge))
	if code != 0 {
		return newDriverError("set_input_edge_trg", int32(code))
	}
	return nil
}

func (r *Real) SetInputChannelOffset(channel int, offsetPS int32) error {
	code := C.MH_SetInputChannelOffset(C.int(r.index), C.int(channel), C.int(offsetPS))
	if code != 0 {
		return newDriverError("set_input_channel_offset", int32(code))
	}
	return nil
}

func (r *Real) SetInputChannelEnable(channel int, enable bool) error {
	code := C.MH_SetInputChannelEnable(C.int(r.index), C.int(channel), boolToC(enable))
	if code != 0 {
		return newDriverError("set_input_channel_enable", int32(code))
	}
	return nil
}

func (r *Real) SetInputDeadtime(channel int, onOff bool, deadtimePS int32) error {
	code := C.MH_SetInputDeadTime(C.int(r.index), C.int(channel), boolToC(onOff), C.int(deadtimePS))
	if code != 0 {
		return newDriverError("set_input_dead_time", int32(code))
	}
	return nil
}

func (r *Real) SetInputHysteresis(channel int, hystCode int32) error {
	code := C.MH_SetInputHysteresis(C.int(r.index), C.int(hystCode))
	if code != 0 {
		return newDriverError("set_input_hysteresis", int32(code))
	}
	return nil
}

func (r *Real) StartMeasurement(ms int32) error {
	code := C.MH_StartMeas(C.int(r.index), C.int(ms))
	if code != 0 {
		return newDriverError("start_meas", int32(code))
	}
	return nil
}

func (r *Real) StopMeasurement() error {
	code := C.MH_StopMeas(C.int(r.index))
	if code != 0 {
		return newDriverError("stop_meas", int32(code))
	}
	return nil
}

func (r *Real) CTCStatus() (int32, error) {
	var status C.int
	code := C.MH_CTCStatus(C.int(r.index), &status)
	if code != 0 {
		return 0, newDriverError("ctc_status", int32(code))
	}
	return int32(status), nil
}

func (r *Real) GetFlags() (Flags, error) {
	var flags C.int
	code := C.MH_GetFlags(C.int(r.index), &flags)
	if code != 0 {
		return 0, newDriverError("get_flags", int32(code))
	}
	return Flags(flags), nil
}

func (r *Real) ReadFIFO() ([]uint32, error) {
	buf := make([]C.uint, TTREADMAX)
	var n C.int
	code := C.MH_ReadFiFo(C.int(r.index), (*C.uint)(unsafe.Pointer(&buf[0])), C.int(len(buf)), &n)
	if code != 0 {
		return nil, newDriverError("read_fifo", int32(code))
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(buf[i])
	}
	return out, nil
}

func (r *Real) SetRowEventFilter(row int, timeRangePS, matchCount int32, invert bool, useMask, passMask uint16) error {
	code := C.MH_SetRowEventFilter(C.int(r.index), C.int(row), C.int(timeRangePS), C.int(matchCount), boolToC(invert), C.int(useMask), C.int(passMask))
	if code != 0 {
		return newDriverError("set_row_event_filter", int32(code))
	}
	return nil
}

func (r *Real) EnableRowEventFilter(row int, enable bool) error {
	code := C.MH_EnableRowEventFilter(C.int(r.index), C.int(row), boolToC(enable))
	if code != 0 {
		return newDriverError("enable_row_event_filter", int32(code))
	}
	return nil
}

func (r *Real) SetMainEventFilterParams(timeRangePS, matchCount int32, invert bool) error {
	code := C.MH_SetMainEventFilterParams(C.int(r.index), C.int(timeRangePS), C.int(matchCount), boolToC(invert))
	if code != 0 {
		return newDriverError("set_main_event_filter_params", int32(code))
	}
	return nil
}

func (r *Real) SetMainEventFilterChannels(row int, useMask, passMask uint16) error {
	code := C.MH_SetMainEventFilterChannels(C.int(r.index), C.int(row), C.int(useMask), C.int(passMask))
	if code != 0 {
		return newDriverError("set_main_event_filter_channels", int32(code))
	}
	return nil
}

func (r *Real) EnableMainEventFilter(enable bool) error {
	code := C.MH_EnableMainEventFilter(C.int(r.index), boolToC(enable))
	if code != 0 {
		return newDriverError("enable_main_event_filter", int32(code))
	}
	return nil
}

func (r *Real) SetFilterTestMode(enable bool) error {
	code := C.MH_SetFilterTestMode(C.int(r.index), boolToC(enable))
	if code != 0 {
		return newDriverError("set_filter_test_mode", int32(code))
	}
	return nil
}

func (r *Real) RowFilteredRates(row int) (int32, error) {
	var rate C.int
	code := C.MH_GetRowFilteredRates(C.int(r.index), C.int(row), &rate)
	if code != 0 {
		return 0, newDriverError("get_row_filtered_rates", int32(code))
	}
	return int32(rate), nil
}

func (r *Real) MainFilteredRates() (int32, error) {
	var rate C.int
	code := C.MH_GetMainFilteredRates(C.int(r.index), &rate)
	if code != 0 {
		return 0, newDriverError("get_main_filtered_rates", int32(code))
	}
	return int32(rate), nil
}

func (r *Real) CountRate(channel int) (int32, error) {
	var rate C.int
	code := C.MH_GetCountRate(C.int(r.index), C.int(channel), &rate)
	if code != 0 {
		return 0, newDriverError("get_count_rate", int32(code))
	}
	return int32(rate), nil
}

func (r *Real) AllCountRates() ([]int32, error) {
	n, err := r.NumberOfInputChannels()
	if err != nil {
		return nil, err
	}
	rates := make([]int32, n)
	for i := range rates {
		rate, err := r.CountRate(i)
		if err != nil {
			return nil, err
		}
		rates[i] = rate
	}
	return rates, nil
}

func boolToC(b bool) C.int {
	if b {
		return 1
	}
	return 0
}
