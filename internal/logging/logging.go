// Package logging provides the named, per-subsystem loggers shared across
// the launcher: a single process-wide logrus logger, scoped per subsystem
// with WithField and threaded down into each subsystem's goroutines as a
// *logrus.Entry.
package logging

import "github.com/sirupsen/logrus"

var base = logrus.StandardLogger()

// Default returns the process-wide root logger.
func Default() *logrus.Logger {
	return base
}

// SetLevel adjusts the verbosity of the root logger. Called once from main
// in response to the -v flag.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// Named returns a subsystem-scoped logger, e.g. Named("roslaunch.runner").
func Named(name string) *logrus.Entry {
	return base.WithField("module", name)
}
