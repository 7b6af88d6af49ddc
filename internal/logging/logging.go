// Package logging provides small log-and-return/log-and-panic helpers over
// the standard library's structured logger, so fallible call sites across
// this module don't each repeat a slog.Error call (ground:
// cogentcore.org/core/base/errors's Log/Log1/Must pattern).
package logging

import (
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
)

// Error logs err (if non-nil) at the call site and returns it unchanged, so
// callers can write `return logging.Error(doThing())`.
func Error(err error) error {
	if err != nil {
		slog.Error(err.Error() + " | " + callerInfo())
	}
	return err
}

// Errorf is a convenience for logging.Error(fmt.Errorf(...)).
func Errorf(format string, args ...any) error {
	return Error(fmt.Errorf(format, args...))
}

// Must panics if err is non-nil, after logging it. Intended for programmer
// contract violations that have no recovery path (e.g. a double commit).
func Must(err error) {
	if err != nil {
		slog.Error(err.Error() + " | " + callerInfo())
		panic(err)
	}
}

func callerInfo() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}
