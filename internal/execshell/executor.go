package execshell

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	commandStartedMessageConstant   = "external command started"
	commandCompletedMessageConstant = "external command completed"
	commandFailedMessageConstant    = "external command failed"
	commandNameFieldConstant        = "command"
	commandArgumentsFieldConstant   = "arguments"
	workingDirectoryFieldConstant   = "working_directory"
	exitCodeFieldConstant           = "exit_code"
	durationFieldConstant           = "duration"
)

// ShellExecutor runs external commands through a CommandRunner and logs each invocation.
type ShellExecutor struct {
	logger        *zap.Logger
	commandRunner CommandRunner
}

// NewShellExecutor validates its collaborators and constructs a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{logger: logger, commandRunner: commandRunner}, nil
}

// ExecuteGit runs git with the supplied details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// Execute runs an arbitrary command. A non-zero exit code yields CommandFailedError and a
// runner failure yields CommandExecutionError; in both cases the result is empty.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	commandFields := []zap.Field{
		zap.String(commandNameFieldConstant, string(command.Name)),
		zap.String(commandArgumentsFieldConstant, strings.Join(command.Details.Arguments, argumentJoinSeparatorConstant)),
		zap.String(workingDirectoryFieldConstant, command.Details.WorkingDirectory),
	}
	executor.logger.Debug(commandStartedMessageConstant, commandFields...)

	startTime := time.Now()
	executionResult, runError := executor.commandRunner.Run(executionContext, command)
	elapsed := time.Since(startTime)

	if runError != nil {
		executor.logger.Debug(commandFailedMessageConstant, append(commandFields, zap.Duration(durationFieldConstant, elapsed), zap.Error(runError))...)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	if executionResult.ExitCode != 0 {
		executor.logger.Debug(commandFailedMessageConstant, append(commandFields, zap.Duration(durationFieldConstant, elapsed), zap.Int(exitCodeFieldConstant, executionResult.ExitCode))...)
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logger.Debug(commandCompletedMessageConstant, append(commandFields, zap.Duration(durationFieldConstant, elapsed))...)
	return executionResult, nil
}
