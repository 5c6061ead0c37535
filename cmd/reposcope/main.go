package main

import (
	"fmt"
	"os"

	"github.com/temirov/reposcope/internal/cli"
	"github.com/temirov/reposcope/internal/failure"
	"github.com/temirov/reposcope/internal/utils"
)

// main is the entry point for the reposcope command.
func main() {
	loggerInstance, loggerInitializationError := utils.NewApplicationLogger("")
	if loggerInitializationError != nil {
		panic(fmt.Errorf(utils.LoggerInitializationFailedMessageFormat, loggerInitializationError))
	}
	defer loggerInstance.Sync()
	if applicationExecutionError := cli.Execute(); applicationExecutionError != nil {
		loggerInstance.Error(utils.ApplicationExecutionFailedMessage + ": " + applicationExecutionError.Error())
		_ = loggerInstance.Sync()
		os.Exit(exitCode(applicationExecutionError))
	}
}

// exitCode distinguishes caller mistakes from remote and internal failures.
func exitCode(err error) int {
	switch failure.KindOf(err) {
	case failure.KindInvalidReference, failure.KindInvalidPath, failure.KindInvalidHandle, failure.KindInvalidTarget:
		return 2
	case failure.KindNotFound:
		return 3
	default:
		return 1
	}
}
