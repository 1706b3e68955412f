package utils

import (
	"log"
	"os"
)

// Logger is the app-wide printf logger. Errorf lines are prefixed so venue
// operators can grep them out of the combined journal.
type Logger struct {
	out *log.Logger
	err *log.Logger
}

func NewLogger() *Logger {
	flags := log.LstdFlags | log.LUTC
	return &Logger{
		out: log.New(os.Stdout, "", flags),
		err: log.New(os.Stderr, "ERROR ", flags),
	}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.out == nil {
		return
	}
	l.out.Printf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.err == nil {
		return
	}
	l.err.Printf(format, args...)
}
