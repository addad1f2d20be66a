// Package klog is the kernel's leveled diagnostic logger.
//
// gVisor's systrap platform never writes routine diagnostics with
// fmt.Print; it threads everything through its own leveled pkg/log
// (log.Debugf, log.Infof, log.Warningf), reserving direct output for fatal
// dumps immediately before a panic. bkernel follows the same shape but
// backs it with logrus instead of hand-rolling a leveled logger.
package klog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.Mutex
	log = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetLevel adjusts the global kernel logger's verbosity. cmd/bkernel wires
// this to a --log-level flag.
func SetLevel(level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	log.SetLevel(level)
}

// SetOutput redirects where kernel diagnostics are written; tests use this
// to capture log output.
func SetOutput(w interface {
	Write([]byte) (int, error)
}) {
	mu.Lock()
	defer mu.Unlock()
	log.SetOutput(w)
}

func Debugf(format string, args ...any) {
	log.Debugf(format, args...)
}

func Infof(format string, args ...any) {
	log.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	log.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	log.Errorf(format, args...)
}

// Fields is a typed alias so call sites don't need to import logrus
// directly.
type Fields = logrus.Fields

func WithFields(fields Fields) *logrus.Entry {
	return log.WithFields(fields)
}
