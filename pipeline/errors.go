// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import "strings"

// CompositeError aggregates the errors returned by more than one worker,
// each labeled with the worker's name ("device", "decoder", "writer").
type CompositeError struct {
	Errs map[string]error
}

func (e *CompositeError) Error() string {
	var b strings.Builder
	b.WriteString("pipeline: multiple workers failed:")
	for _, name := range []string{"device", "decoder", "writer"} {
		err, ok := e.Errs[name]
		if !ok {
			continue
		}
		b.WriteString("\n  ")
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(err.Error())
	}
	return b.String()
}
