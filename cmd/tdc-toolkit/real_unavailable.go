// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !mh160hw

package main

import (
	"fmt"

	"github.com/go-lpc/tdctoolkit/mh160"
)

// mh160hwAvailable is true when this binary was built with the mh160hw
// tag, i.e. the vendor driver is actually linked in.
const mh160hwAvailable = false

func newRealFacade(index uint8) (mh160.Facade, error) {
	return nil, fmt.Errorf("tdc-toolkit: built without the mh160hw tag; " +
		"pass --mh-wrapper-implementation=stub or rebuild with -tags mh160hw")
}
