package main

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// verbosityLevel maps the number of -v flags to a log level. Errors are
// always shown.
func verbosityLevel(v int) log.Level {
	switch {
	case v <= 0:
		return log.ErrorLevel
	case v == 1:
		return log.WarnLevel
	case v == 2:
		return log.InfoLevel
	case v == 3:
		return log.DebugLevel
	}
	return log.TraceLevel
}

func setupLogging(w io.Writer, verbosity int) {
	log.SetOutput(w)
	log.SetLevel(verbosityLevel(verbosity))
	log.SetFormatter(&log.TextFormatter{
		DisableColors:    !isTerminal(w),
		DisableTimestamp: verbosity < 3,
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
