// Package log provides a global logger with a configurable level and
// output. The engine treats verification failures as telemetry, so the
// logger is the main observability surface of the receiver.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected to occur during normal use.
	LevelWarning              // Logs anomalies that are expected to occur occasionally during normal use.
	LevelInfo                 // Logs major events, such as completed authentications.
	LevelDebug                // Logs detailed protocol processing.
)

var (
	mu             sync.Mutex
	globalLogLevel Level
	output         io.Writer = os.Stderr
)

var labels = map[Level]string{
	LevelDebug:   "[debug]",
	LevelInfo:    "[info ]",
	LevelWarning: "[warn ]",
	LevelError:   "[error]",
}

// SetLevel selects the maximum level that is written out.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	globalLogLevel = level
}

// SetOutput redirects log lines to w. The default is standard error.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func logf(level Level, format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if level > globalLogLevel {
		return
	}
	msg := fmt.Sprintf("%s %s ", time.Now().Format(time.RFC3339), labels[level])
	msg += fmt.Sprintf(format, a...)
	fmt.Fprintln(output, msg)
}

func Debug(format string, a ...interface{}) {
	logf(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	logf(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	logf(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	logf(LevelError, format, a...)
}
