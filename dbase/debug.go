package dbase

import (
	"io"
	"log"
	"os"
)

var debug = false
var debugLogger = log.New(os.Stdout, "[dbase] [DEBUG] ", log.LstdFlags)
var errorLogger = log.New(os.Stdout, "[dbase] [ERROR] ", log.LstdFlags)

// Debug enables or disables debug logging and sets its destination.
// A nil writer keeps logging on stdout.
func Debug(enabled bool, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	debug = enabled
	debugLogger.SetOutput(out)
	errorLogger.SetOutput(out)
}

func debugf(format string, v ...interface{}) {
	if debug {
		debugLogger.Printf(format, v...)
	}
}

func errorf(format string, v ...interface{}) {
	if debug {
		errorLogger.Printf(format, v...)
	}
}
