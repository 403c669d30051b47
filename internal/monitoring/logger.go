// Package monitoring carries the training run's diagnostic surface: a
// swappable package logger and a loss-curve plotter.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger; tests and embedding hosts can redirect or
// mute it. The loss hot path never logs; only the training driver does, at
// its configured interval.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
