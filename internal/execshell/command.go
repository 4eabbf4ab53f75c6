package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	commandFailedTemplateConstant    = "%s %s exited with code %d: %s"
	commandExecutionTemplateConstant = "%s %s could not run: %v"
	argumentJoinSeparatorConstant    = " "
)

// CommandName identifies an external executable.
type CommandName string

// Supported executables.
const (
	CommandGit CommandName = "git"
)

var (
	// ErrLoggerNotConfigured indicates a ShellExecutor was built without a logger.
	ErrLoggerNotConfigured = errors.New("execshell: logger not configured")
	// ErrCommandRunnerNotConfigured indicates a ShellExecutor was built without a runner.
	ErrCommandRunnerNotConfigured = errors.New("execshell: command runner not configured")
)

// CommandDetails describes the invocation of a command.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand pairs an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outcome of a command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a command that ran and exited with a non-zero code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failure.
func (failedError CommandFailedError) Error() string {
	return fmt.Sprintf(
		commandFailedTemplateConstant,
		failedError.Command.Name,
		strings.Join(failedError.Command.Details.Arguments, argumentJoinSeparatorConstant),
		failedError.Result.ExitCode,
		strings.TrimSpace(failedError.Result.StandardError),
	)
}

// CommandExecutionError reports a command that could not be started.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the failure.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(
		commandExecutionTemplateConstant,
		executionError.Command.Name,
		strings.Join(executionError.Command.Details.Arguments, argumentJoinSeparatorConstant),
		executionError.Cause,
	)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}
