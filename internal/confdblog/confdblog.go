// Package confdblog wires up the op/go-logging backend used by every other
// package in this module, the way cluster.go does it for a single package:
// one named *logging.Logger per subsystem, backed by a shared formatted
// stderr writer.
package confdblog

import (
	"os"

	logging "github.com/op/go-logging"
)

var format = logging.MustStringFormatter(
	`%{time:2006-01-02T15:04:05.000Z07:00} %{level:.4s} %{module}: %{message}`,
)

func init() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, format)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(logging.INFO, "")
	logging.SetBackend(leveled)
}

// Get returns the named logger for a package, e.g. confdblog.Get("acceptor").
func Get(name string) *logging.Logger {
	return logging.MustGetLogger(name)
}

// SetLevel adjusts the global log level, used by the CLI's --log-level flag.
func SetLevel(level logging.Level) {
	logging.SetLevel(level, "")
}

// ParseLevel parses a level name as accepted by the --log-level flag.
func ParseLevel(name string) (logging.Level, error) {
	return logging.LogLevel(name)
}
