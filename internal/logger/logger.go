package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with audit and security helpers.
type Logger struct {
	*logrus.Logger
}

// New creates a logger writing to stdout. Unknown levels fall back to info.
func New(level, format string) *Logger {
	return NewWithOutput(level, format, os.Stdout)
}

func NewWithOutput(level, format string, out io.Writer) *Logger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	log.SetOutput(out)

	return &Logger{Logger: log}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithOutput("panic", "json", io.Discard)
}

func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// Audit records a state change performed by userID.
func (l *Logger) Audit(userID, action, resource string, fields logrus.Fields) {
	entry := l.Logger.WithFields(logrus.Fields{
		"audit":    true,
		"user_id":  userID,
		"action":   action,
		"resource": resource,
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Info("Audit event")
}

// Security records a denied or suspicious event. reason is an internal code.
func (l *Logger) Security(event, userID, reason string, fields logrus.Fields) {
	entry := l.Logger.WithFields(logrus.Fields{
		"security": true,
		"event":    event,
		"user_id":  userID,
		"reason":   reason,
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Warn("Security event")
}
