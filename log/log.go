package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DebugEnv is the environment variable that enables debug logging.
const DebugEnv = "GRAPH_DEBUG"

var debug bool

// Logger is a global interface for graph loggers.
type Logger interface {
	logrus.FieldLogger
}

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv(DebugEnv))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// ParseLevel returns a logger with provided level. Empty level keeps the
// default one.
func ParseLevel(level string) (*logrus.Logger, error) {
	l := GetLogger()
	if level == "" {
		return l, nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l.SetLevel(lvl)
	return l, nil
}

// Discard returns a logger that drops all entries.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
