// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mh160

import "fmt"

// DriverError wraps a non-zero return from the vendor library, carrying
// the operation name and the vendor's own error-code string.
type DriverError struct {
	Op   string
	Code int32
	Text string
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("mh160: %s failed (code=%d): %s", e.Op, e.Code, e.Text)
}

// errCodeText maps a subset of MultiHarp library error codes to a short
// human-readable reason, mirroring the vendor's own error-code table.
// Codes not present here fall back to a generic message.
var errCodeText = map[int32]string{
	-1:  "device busy",
	-2:  "device closed",
	-3:  "no device available",
	-4:  "invalid device index",
	-11: "time-out reading FIFO",
	-37: "FIFO overrun",
}

func newDriverError(op string, code int32) *DriverError {
	text, ok := errCodeText[code]
	if !ok {
		text = "unknown device error"
	}
	return &DriverError{Op: op, Code: code, Text: text}
}
