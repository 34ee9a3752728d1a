package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudposse/grant/cmd"
	errUtils "github.com/cloudposse/grant/errors"
	log "github.com/cloudposse/grant/pkg/logger"
)

func main() {
	// Set up signal handling so tunnels and temp keys never outlive the
	// process.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	go func() {
		sig := <-sigChan
		// Clean up session resources before exit.
		cmd.Cleanup()
		// Exit with correct POSIX exit code (128 + signal number).
		// Use errUtils.OsExit to allow test interception.
		if s, ok := sig.(syscall.Signal); ok {
			errUtils.OsExit(128 + int(s))
		}
		// Fallback to SIGINT exit code if signal type assertion fails.
		errUtils.OsExit(130)
	}()

	log.Default().SetReportTimestamp(false)

	// Run the application and exit with the appropriate code.
	errUtils.OsExit(run())
}

// run executes the main application logic and returns an exit code. This
// separation allows proper cleanup via defer before os.Exit in main().
func run() int {
	// Ensure cleanup happens on normal exit.
	defer cmd.Cleanup()

	err := cmd.Execute()
	if err != nil {
		errUtils.CheckErrorAndPrint(err)

		exitCode := errUtils.GetExitCode(err)
		log.Debug("Exiting with exit code", "code", exitCode)
		return exitCode
	}

	return 0
}
