package cli

import (
	"fmt"
	"os"
)

// LogWarning prints a warning message to stderr with the crbranch prefix
func LogWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "crbranch: warning: "+format+"\n", args...)
}

// LogInfo prints an info message to stderr with the crbranch prefix
func LogInfo(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "crbranch: "+format+"\n", args...)
}
