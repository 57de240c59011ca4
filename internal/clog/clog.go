// Package clog configures the SDK's structured logging, one package-level
// entry per subsystem, mirroring dendrite's internal packages' use of
// logrus.WithFields rather than the standard library log package.
package clog

import "github.com/sirupsen/logrus"

// Base is shared by every subsystem logger; callers may replace it (e.g. to
// redirect output or raise the level) before constructing SDK components.
var Base = logrus.New()

// For returns a component-scoped logger, e.g. For("syncengine").
func For(component string) *logrus.Entry {
	return Base.WithField("component", component)
}
