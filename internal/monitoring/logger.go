// Package monitoring provides the log sinks for the job-manager daemon and
// its monitor workers: a swappable package-level logger for daemon lines and
// per-worker log files for job histories.
package monitoring

import "log"

// Logf is the daemon-level diagnostic logger. It defaults to log.Printf;
// tests and embedders can redirect or mute it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
