package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the engine-wide log instance.
var Logger *logrus.Logger

// CustomFormatter renders single-line entries with timestamp, level and
// caller, matching the server log layout.
type CustomFormatter struct {
	TimestampFormat string
}

// Format implements the logrus.Formatter interface.
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format("15:04:05 MST 2006/01/02")

	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	logMsg := fmt.Sprintf("[%s] [%s] (%s) %s\n",
		timestamp,
		level,
		getCaller(),
		entry.Message)

	return []byte(logMsg), nil
}

// getCaller walks past the logging frames to the engine call site.
func getCaller() string {
	for i := 4; i < 20; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		if strings.Contains(file, "sirupsen") ||
			strings.Contains(file, "logger/logger.go") {
			continue
		}

		funcName := runtime.FuncForPC(pc).Name()
		if idx := strings.LastIndex(funcName, "/"); idx >= 0 {
			funcName = funcName[idx+1:]
		}

		short := file
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			short = file[idx+1:]
		}

		return fmt.Sprintf("%s:%d %s", short, line, funcName)
	}

	return "unknown"
}

func init() {
	Logger = logrus.New()
	Logger.SetFormatter(&CustomFormatter{})
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
}

// SetOutput redirects the engine log, mainly for tests.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetLevel parses and applies a log level name.
func SetLevel(level string) {
	if lv, err := logrus.ParseLevel(level); err == nil {
		Logger.SetLevel(lv)
	}
}

func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}
