// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import "testing"

func TestAlertConfigValid(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  *AlertConfig
		want bool
	}{
		{name: "nil config", cfg: nil, want: false},
		{name: "zero value", cfg: &AlertConfig{}, want: false},
		{
			name: "missing recipients",
			cfg:  &AlertConfig{From: "a@b.c", Server: "smtp.example.org", Port: 587},
			want: false,
		},
		{
			name: "missing server",
			cfg:  &AlertConfig{From: "a@b.c", To: []string{"x@y.z"}, Port: 587},
			want: false,
		},
		{
			name: "missing port",
			cfg:  &AlertConfig{From: "a@b.c", To: []string{"x@y.z"}, Server: "smtp.example.org"},
			want: false,
		},
		{
			name: "complete config",
			cfg:  &AlertConfig{From: "a@b.c", To: []string{"x@y.z"}, Server: "smtp.example.org", Port: 587},
			want: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.valid(); got != tc.want {
				t.Fatalf("valid(): got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestAlertSendSkipsWhenNotConfigured(t *testing.T) {
	// An unconfigured AlertConfig must not attempt to dial out; send must
	// return without blocking or panicking.
	var cfg *AlertConfig
	cfg.send(map[string]error{"device": errNoop})

	cfg = &AlertConfig{}
	cfg.send(map[string]error{"device": errNoop})
}

type noopErr struct{}

func (noopErr) Error() string { return "noop" }

var errNoop = noopErr{}
