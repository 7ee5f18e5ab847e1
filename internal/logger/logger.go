// Package logger is the single log output of clkdst, with a fixed prefix
// and a quiet switch for informational messages.
package logger

import "log"

// Quiet suppresses Info messages when true; Error is always printed.
var Quiet bool

// Info prints an informational message with the "clkdst: " prefix unless Quiet.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Printf("clkdst: "+format, args...)
}

// Error prints an error message with the "clkdst: " prefix. Always printed.
func Error(format string, args ...interface{}) {
	log.Printf("clkdst: "+format, args...)
}
