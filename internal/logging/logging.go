package logging

import (
	"io"
	"log"
	"os"
)

func NewStdLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags|log.LUTC)
}

// NewNopLogger discards everything; used by tests.
func NewNopLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
