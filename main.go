package main

import (
	"fmt"
	"os"

	"github.com/temirov/gfold/cmd/cli"
)

const exitErrorTemplateConstant = "%v\n"

// main executes the gfold command-line application.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		os.Exit(1)
	}
}
