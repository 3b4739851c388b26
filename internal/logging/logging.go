// Package logging builds the plain-text status logger shared by the CLIs.
package logging

import (
	"io"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the optional log file.
const (
	MaxSizeMB  = 10
	MaxBackups = 5
	MaxAgeDays = 30
)

// Options select where status text goes.
type Options struct {
	// NoTimestamp drops the date/time prefix.
	NoTimestamp bool
	// File, if set, receives a copy of everything in a size-rotated file.
	File string
}

// New returns a logger writing to w and, optionally, to a rotated file. The
// returned closer releases the file and is never nil.
func New(w io.Writer, opts Options) (*log.Logger, io.Closer) {
	flags := log.LstdFlags
	if opts.NoTimestamp {
		flags = 0
	}

	if opts.File == "" {
		return log.New(w, "", flags), io.NopCloser(nil)
	}

	rotated := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    MaxSizeMB,
		MaxBackups: MaxBackups,
		MaxAge:     MaxAgeDays,
	}
	return log.New(io.MultiWriter(w, rotated), "", flags), rotated
}
