package log

import (
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Global logger instance
var globalLogger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
	ReportTimestamp: true,
	TimeFormat:      "2006-01-02 15:04:05",
	Level:           charmlog.InfoLevel,
})

// SetLevel changes the global log level. Unknown names are ignored.
func SetLevel(name string) {
	level, err := charmlog.ParseLevel(name)
	if err != nil {
		return
	}
	globalLogger.SetLevel(level)
}

func Debug(format string, args ...interface{}) {
	globalLogger.Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	globalLogger.Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	globalLogger.Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	globalLogger.Errorf(format, args...)
}

func Fatal(format string, args ...interface{}) {
	globalLogger.Fatalf(format, args...)
}
