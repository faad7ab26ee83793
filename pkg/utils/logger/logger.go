package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/labstack/gommon/log"
)

const header = "${time_rfc3339} ${level} [${prefix}]"

// Null returns a logger which writes nothing.
func Null() *log.Logger {
	l := log.New("-")
	l.SetOutput(io.Discard)
	l.SetLevel(log.OFF)
	return l
}

// New returns a text logger writing into w, at WARN level.
func New(w io.Writer, prefix string) *log.Logger {
	l := log.New(prefix)
	l.SetOutput(w)
	l.SetHeader(header)
	l.DisableColor()
	l.SetLevel(log.WARN)
	return l
}

// SetLevel sets the level by its name.
//
// Names are debug, info, warn, error and off. An empty name is warn.
func SetLevel(l *log.Logger, level string) error {
	switch strings.ToLower(level) {
	case "debug":
		l.SetLevel(log.DEBUG)
	case "info":
		l.SetLevel(log.INFO)
	case "warn", "":
		l.SetLevel(log.WARN)
	case "error":
		l.SetLevel(log.ERROR)
	case "off":
		l.SetLevel(log.OFF)
	default:
		l.SetLevel(log.WARN)
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}
