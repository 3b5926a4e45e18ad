// Package glog is a minimal leveled logger in the shape of weed/glog:
// a package-level Verbose gate plus Info/Warning/Error/Fatal helpers,
// so call sites read the same way regardless of which collaborator
// package they live in.
package glog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

var verbosity int32

// SetVerbosity sets the global -v level. Higher values log more.
func SetVerbosity(level int) {
	atomic.StoreInt32(&verbosity, int32(level))
}

// Verbose is a boolean gate returned by V(level); logging calls on it
// are no-ops when the configured verbosity is below level.
type Verbose bool

// V reports whether logging at the given level is enabled.
func V(level int) Verbose {
	return Verbose(atomic.LoadInt32(&verbosity) >= int32(level))
}

func (v Verbose) Info(args ...interface{}) {
	if v {
		log.Output(2, "I "+fmt.Sprintln(args...))
	}
}

func (v Verbose) Infof(format string, args ...interface{}) {
	if v {
		log.Output(2, "I "+fmt.Sprintf(format, args...))
	}
}

func Infof(format string, args ...interface{}) {
	log.Output(2, "I "+fmt.Sprintf(format, args...))
}

func Warningf(format string, args ...interface{}) {
	log.Output(2, "W "+fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	log.Output(2, "E "+fmt.Sprintf(format, args...))
}

func Error(args ...interface{}) {
	log.Output(2, "E "+fmt.Sprintln(args...))
}

func Fatalf(format string, args ...interface{}) {
	log.Output(2, "F "+fmt.Sprintf(format, args...))
	os.Exit(1)
}
