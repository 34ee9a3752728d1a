package errors

import (
	"os"

	"github.com/fatih/color"

	log "github.com/cloudposse/grant/pkg/logger"
)

// OsExit is a variable for testing, so we can mock os.Exit.
var OsExit = os.Exit

// CheckErrorAndPrint prints an error message to stderr. User-facing failures
// are plain descriptive strings; stack traces only appear in debug logs.
func CheckErrorAndPrint(err error) {
	if err == nil {
		return
	}
	if _, printErr := color.New(color.FgRed).Fprintln(os.Stderr, err.Error()); printErr != nil {
		log.Error(err)
	}
}
