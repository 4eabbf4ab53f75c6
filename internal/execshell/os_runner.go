package execshell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
)

const environmentAssignmentSeparatorConstant = "="

// OSCommandRunner executes commands with os/exec.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs a runner backed by os/exec.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// Run executes the command. A non-zero exit is reported through ExecutionResult.ExitCode;
// only failures to start or wait on the process are returned as errors.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executable := exec.CommandContext(executionContext, string(command.Name), command.Details.Arguments...)
	executable.Dir = command.Details.WorkingDirectory
	executable.Env = mergeEnvironment(os.Environ(), command.Details.EnvironmentVariables)

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = &standardOutputBuffer
	executable.Stderr = &standardErrorBuffer
	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	executionResult := ExecutionResult{}
	runError := executable.Run()
	executionResult.StandardOutput = standardOutputBuffer.String()
	executionResult.StandardError = standardErrorBuffer.String()
	if runError == nil {
		return executionResult, nil
	}

	var exitError *exec.ExitError
	if errors.As(runError, &exitError) {
		executionResult.ExitCode = exitError.ExitCode()
		return executionResult, nil
	}
	return ExecutionResult{}, runError
}

// mergeEnvironment appends overrides in key order so repeated runs see identical environments.
func mergeEnvironment(baseEnvironment []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}
	overrideKeys := make([]string, 0, len(overrides))
	for overrideKey := range overrides {
		overrideKeys = append(overrideKeys, overrideKey)
	}
	sort.Strings(overrideKeys)

	mergedEnvironment := append([]string{}, baseEnvironment...)
	for _, overrideKey := range overrideKeys {
		mergedEnvironment = append(mergedEnvironment, overrideKey+environmentAssignmentSeparatorConstant+overrides[overrideKey])
	}
	return mergedEnvironment
}
