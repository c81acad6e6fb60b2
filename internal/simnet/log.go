// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package simnet

import (
	"github.com/sirupsen/logrus"
)

// logf emits a simulation-time-tagged debug log line. Handlers normally log
// through Node.Logf instead of calling this directly.
func logf(now Clock, id NodeID, format string, a ...any) {
	logrus.WithFields(logrus.Fields{
		"simTime": now.String(),
		"node":    int(id),
	}).Debugf(format, a...)
}
