// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"context"
	"errors"
	"testing"

	"github.com/go-lpc/tdctoolkit/mh160"
	"github.com/go-lpc/tdctoolkit/tttr"
)

// recordingFacade is a minimal mh160.Facade fake that records the
// sequence of front-end programming calls, so FromConfig's fixed
// ordering (sync, inputs, disable-unlisted, rows, main) can be asserted.
type recordingFacade struct {
	calls []string

	numChannels int

	flagsSeq      []mh160.Flags
	fifoSeq       [][]uint32
	ctcSeq        []int32
	stopErr       error
	closeErr      error
	countRates    []int32
	countRatesErr error
	callIndex     struct {
		flags, fifo, ctc int
	}
}

func newRecordingFacade(numChannels int) *recordingFacade {
	return &recordingFacade{numChannels: numChannels}
}

func (f *recordingFacade) Open() error  { f.calls = append(f.calls, "open"); return nil }
func (f *recordingFacade) Close() error {
	f.calls = append(f.calls, "close")
	return f.closeErr
}
func (f *recordingFacade) Initialize(mh160.Mode, mh160.RefSource) error {
	f.calls = append(f.calls, "initialize")
	return nil
}

func (f *recordingFacade) LibraryVersion() (string, error) { return "1.0", nil }
func (f *recordingFacade) HardwareInfo() (mh160.HardwareInfo, error) {
	return mh160.HardwareInfo{Model: "MH160", PartNo: "PN", Version: "1"}, nil
}
func (f *recordingFacade) SerialNumber() (string, error) { return "SN", nil }
func (f *recordingFacade) BaseResolution() (mh160.BaseResolution, error) {
	return mh160.BaseResolution{PicoSeconds: 5}, nil
}
func (f *recordingFacade) NumberOfInputChannels() (int, error) { return f.numChannels, nil }
func (f *recordingFacade) NumberOfModules() (int, error)       { return 1, nil }
func (f *recordingFacade) ModuleInfo(int) (int32, int32, error) { return 1, 1, nil }
func (f *recordingFacade) FeatureFlags() (uint32, error)        { return 0xFFFFFFFF, nil }

func (f *recordingFacade) SetSyncDivider(int32) error {
	f.calls = append(f.calls, "sync.divider")
	return nil
}
func (f *recordingFacade) SetSyncEdgeTrigger(int32, mh160.Edge) error {
	f.calls = append(f.calls, "sync.edge")
	return nil
}
func (f *recordingFacade) SetSyncChannelOffset(int32) error {
	f.calls = append(f.calls, "sync.offset")
	return nil
}
func (f *recordingFacade) SetSyncChannelEnable(enable bool) error {
	if enable {
		f.calls = append(f.calls, "sync.enable")
	} else {
		f.calls = append(f.calls, "sync.disable")
	}
	return nil
}
func (f *recordingFacade) SetSyncDeadtime(bool, int32) error {
	f.calls = append(f.calls, "sync.deadtime")
	return nil
}

func (f *recordingFacade) SetInputEdgeTrigger(ch int, _ int32, _ mh160.Edge) error {
	f.calls = append(f.calls, "input.edge")
	return nil
}
func (f *recordingFacade) SetInputChannelOffset(int, int32) error {
	f.calls = append(f.calls, "input.offset")
	return nil
}
func (f *recordingFacade) SetInputChannelEnable(ch int, enable bool) error {
	if enable {
		f.calls = append(f.calls, "input.enable")
	} else {
		f.calls = append(f.calls, "input.disable")
	}
	return nil
}
func (f *recordingFacade) SetInputDeadtime(int, bool, int32) error {
	f.calls = append(f.calls, "input.deadtime")
	return nil
}
func (f *recordingFacade) SetInputHysteresis(int, int32) error {
	f.calls = append(f.calls, "input.hysteresis")
	return nil
}

func (f *recordingFacade) StartMeasurement(int32) error {
	f.calls = append(f.calls, "start")
	return nil
}
func (f *recordingFacade) StopMeasurement() error {
	f.calls = append(f.calls, "stop")
	return f.stopErr
}
func (f *recordingFacade) CTCStatus() (int32, error) {
	v := f.ctcSeq[f.callIndex.ctc]
	if f.callIndex.ctc < len(f.ctcSeq)-1 {
		f.callIndex.ctc++
	}
	return v, nil
}
func (f *recordingFacade) GetFlags() (mh160.Flags, error) {
	v := f.flagsSeq[f.callIndex.flags]
	if f.callIndex.flags < len(f.flagsSeq)-1 {
		f.callIndex.flags++
	}
	return v, nil
}
func (f *recordingFacade) ReadFIFO() ([]uint32, error) {
	v := f.fifoSeq[f.callIndex.fifo]
	if f.callIndex.fifo < len(f.fifoSeq)-1 {
		f.callIndex.fifo++
	}
	return v, nil
}

func (f *recordingFacade) SetRowEventFilter(row int, _, _ int32, _ bool, _, _ uint16) error {
	f.calls = append(f.calls, "row.set")
	return nil
}
func (f *recordingFacade) EnableRowEventFilter(row int, enable bool) error {
	if enable {
		f.calls = append(f.calls, "row.enable")
	} else {
		f.calls = append(f.calls, "row.disable")
	}
	return nil
}
func (f *recordingFacade) SetMainEventFilterParams(int32, int32, bool) error {
	f.calls = append(f.calls, "main.params")
	return nil
}
func (f *recordingFacade) SetMainEventFilterChannels(int, uint16, uint16) error {
	f.calls = append(f.calls, "main.channels")
	return nil
}
func (f *recordingFacade) EnableMainEventFilter(enable bool) error {
	if enable {
		f.calls = append(f.calls, "main.enable")
	} else {
		f.calls = append(f.calls, "main.disable")
	}
	return nil
}
func (f *recordingFacade) SetFilterTestMode(bool) error {
	f.calls = append(f.calls, "main.testmode")
	return nil
}
func (f *recordingFacade) RowFilteredRates(int) (int32, error) { return 0, nil }
func (f *recordingFacade) MainFilteredRates() (int32, error)   { return 0, nil }
func (f *recordingFacade) CountRate(int) (int32, error)        { return 0, nil }
func (f *recordingFacade) AllCountRates() ([]int32, error)     { return f.countRates, f.countRatesErr }

var _ mh160.Facade = (*recordingFacade)(nil)

func TestFromConfigProgrammingOrder(t *testing.T) {
	f := newRecordingFacade(8)
	f.ctcSeq = []int32{1}
	f.flagsSeq = []mh160.Flags{0}
	f.fifoSeq = [][]uint32{nil}

	cfg := &Config{
		SyncChannel:   &SyncChannelConfig{Divider: 1},
		InputChannels: []InputChannelConfig{{ID: 1}, {ID: 3}},
		RowFilter: &RowFilterConfig{
			RowFilters: []*RowFilterEntry{
				{TimeRangePS: 1000, MatchCount: 2, UseChannels: []int{1, 3}, PassChannels: []int{1}},
			},
		},
		MainFilter: &MainFilterConfig{TimeRangePS: 2000, MatchCount: 3},
	}

	c, err := FromConfig(f, cfg)
	if err != nil {
		t.Fatalf("could not build controller: %+v", err)
	}
	defer c.Close()

	want := []string{
		"open", "initialize",
		"sync.enable", "sync.divider", "sync.edge", "sync.offset",
		"input.enable", "input.edge", "input.offset",
		"input.enable", "input.edge", "input.offset",
		"input.disable", "input.disable", "input.disable",
		"input.disable", "input.disable", "input.disable",
		"row.set", "row.enable",
		"main.params", "main.channels", "main.testmode", "main.enable",
	}

	if len(f.calls) != len(want) {
		t.Fatalf("invalid call sequence length: got=%d want=%d\ngot=%v\nwant=%v", len(f.calls), len(want), f.calls, want)
	}
	for i := range want {
		if f.calls[i] != want[i] {
			t.Fatalf("call[%d]: got=%q want=%q\ngot=%v", i, f.calls[i], want[i], f.calls)
		}
	}
}

func TestStreamFifoOverrun(t *testing.T) {
	f := newRecordingFacade(8)
	f.fifoSeq = [][]uint32{nil}
	f.ctcSeq = []int32{0}
	f.flagsSeq = []mh160.Flags{0, mh160.FlagFifoFull}
	f.stopErr = errors.New("boom")

	c, err := FromCurrentConfig(f)
	if err != nil {
		t.Fatalf("could not build controller: %+v", err)
	}

	out := make(chan tttr.RawBatch, 1)
	err = c.Stream(context.Background(), 0, out)
	if err == nil {
		t.Fatalf("expected a FIFO overrun error")
	}

	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected a *StreamError wrapping a secondary stop failure, got %+v", err)
	}
	var overrun *FifoOverrun
	if !errors.As(streamErr.Root, &overrun) {
		t.Fatalf("expected root cause to be *FifoOverrun, got %+v", streamErr.Root)
	}
}

func TestCountRatesAndDeviceIndex(t *testing.T) {
	f := newRecordingFacade(8)
	f.ctcSeq = []int32{1}
	f.flagsSeq = []mh160.Flags{0}
	f.fifoSeq = [][]uint32{nil}
	f.countRates = []int32{10, 20, 30}

	c, err := FromCurrentConfig(f, WithDeviceIndex(3))
	if err != nil {
		t.Fatalf("could not build controller: %+v", err)
	}
	defer c.Close()

	if got := c.GetDeviceInfo().DeviceIndex; got != 3 {
		t.Fatalf("invalid device index: got=%d want=3", got)
	}

	rates, err := c.CountRates()
	if err != nil {
		t.Fatalf("could not read count rates: %+v", err)
	}
	if len(rates) != 3 || rates[0] != 10 || rates[1] != 20 || rates[2] != 30 {
		t.Fatalf("invalid count rates: got=%v", rates)
	}
}

func TestCloseSwallowsFacadeError(t *testing.T) {
	f := newRecordingFacade(8)
	f.ctcSeq = []int32{1}
	f.flagsSeq = []mh160.Flags{0}
	f.fifoSeq = [][]uint32{nil}
	f.closeErr = errors.New("boom")

	c, err := FromCurrentConfig(f)
	if err != nil {
		t.Fatalf("could not build controller: %+v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close must never propagate a facade close error, got: %+v", err)
	}
}

func TestStreamPipelineClosed(t *testing.T) {
	f := newRecordingFacade(8)
	f.fifoSeq = [][]uint32{{0x02000001}}
	f.ctcSeq = []int32{0}
	f.flagsSeq = []mh160.Flags{0}

	c, err := FromCurrentConfig(f)
	if err != nil {
		t.Fatalf("could not build controller: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan tttr.RawBatch) // unbuffered, nobody reads: send must block until ctx fires
	err = c.Stream(ctx, 0, out)
	if err == nil {
		t.Fatalf("expected a PipelineClosed error")
	}
	var closedErr *PipelineClosed
	if !errors.As(err, &closedErr) {
		t.Fatalf("expected *PipelineClosed, got %+v", err)
	}
}
