// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"crypto/tls"
	"fmt"
	"strings"

	mail "gopkg.in/gomail.v2"
)

// AlertConfig configures the failure-alert email sent when Run returns a
// non-nil error.
type AlertConfig struct {
	From   string
	To     []string
	Server string
	Port   int
	User   string
	Pwd    string
}

func (c *AlertConfig) valid() bool {
	return c != nil && c.From != "" && c.Server != "" && c.Port != 0 && len(c.To) > 0
}

// send emails the aggregated worker errors to c.To. Failures to send are
// swallowed: an alerting failure must never mask the run's real error.
func (c *AlertConfig) send(errs map[string]error) {
	if !c.valid() {
		return
	}

	var body strings.Builder
	for _, name := range []string{"device", "decoder", "writer"} {
		err, ok := errs[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&body, "%s: %v\n", name, err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", c.From)
	msg.SetHeader("Bcc", c.To...)
	msg.SetHeader("Subject", "[tdc-toolkit] recording failed")
	msg.SetBody("text/plain", body.String())

	dial := mail.NewDialer(c.Server, c.Port, c.User, c.Pwd)
	dial.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	_ = dial.DialAndSend(msg)
}
