// Package logging builds the tool's logger: verbose output goes to a log
// file so interactive sessions stay quiet, while errors are still echoed
// to the console.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing at the given level to the named file. When
// the file cannot be opened the logger falls back to stderr. Errors and
// worse are mirrored to stderr either way.
func New(level, logFile string) *logrus.Logger {
	log := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log file %s: %v, logging to stderr\n", logFile, err)
			log.SetOutput(os.Stderr)
			return log
		}
		log.SetOutput(f)
		log.AddHook(&consoleErrorHook{out: os.Stderr})
	} else {
		log.SetOutput(os.Stderr)
	}
	return log
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// consoleErrorHook mirrors error-and-worse entries to the console when the
// logger's main output is a file.
type consoleErrorHook struct {
	out io.Writer
}

func (h *consoleErrorHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (h *consoleErrorHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	_, err = h.out.Write([]byte(line))
	return err
}
