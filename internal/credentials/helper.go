package credentials

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/temirov/gfold/internal/execshell"
	"github.com/temirov/gfold/internal/gitrepo"
)

const (
	gitExecutableNameConstant         = "git"
	credentialSubcommandConstant      = "credential"
	credentialFillActionConstant      = "fill"
	credentialProtocolKeyConstant     = "protocol"
	credentialHostKeyConstant         = "host"
	credentialPathKeyConstant         = "path"
	credentialUsernameKeyConstant     = "username"
	credentialPasswordKeyConstant     = "password"
	credentialAssignmentConstant      = "="
	credentialLineTemplateConstant    = "%s=%s\n"
	terminalPromptEnvironmentConstant = "GIT_TERMINAL_PROMPT"
	disabledValueConstant             = "0"
	hostPortSeparatorConstant         = ":"
)

// GitExecutor runs git commands.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// ExecutableLocator mirrors exec.LookPath.
type ExecutableLocator func(file string) (string, error)

// HelperCredentials holds what git credential fill returned.
type HelperCredentials struct {
	Username string
	Password string
}

// CredentialHelper queries the configured git credential helpers without prompting.
type CredentialHelper struct {
	executor      GitExecutor
	locateCommand ExecutableLocator
}

// NewCredentialHelper constructs a CredentialHelper. A nil locator uses exec.LookPath.
func NewCredentialHelper(executor GitExecutor, locateCommand ExecutableLocator) *CredentialHelper {
	if locateCommand == nil {
		locateCommand = exec.LookPath
	}
	return &CredentialHelper{executor: executor, locateCommand: locateCommand}
}

// Fill asks git for credentials matching the endpoint.
func (helper *CredentialHelper) Fill(executionContext context.Context, endpoint gitrepo.RemoteEndpoint) (HelperCredentials, error) {
	if helper == nil || helper.executor == nil {
		return HelperCredentials{}, ErrGitExecutableNotFound
	}
	if _, locateError := helper.locateCommand(gitExecutableNameConstant); locateError != nil {
		return HelperCredentials{}, fmt.Errorf("%w: %w", ErrGitExecutableNotFound, locateError)
	}

	executionResult, executionError := helper.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            []string{credentialSubcommandConstant, credentialFillActionConstant},
		EnvironmentVariables: map[string]string{terminalPromptEnvironmentConstant: disabledValueConstant},
		StandardInput:        []byte(credentialRequest(endpoint)),
	})
	if executionError != nil {
		return HelperCredentials{}, executionError
	}

	helperCredentials := parseCredentialResponse(executionResult.StandardOutput)
	if len(helperCredentials.Username) == 0 || len(helperCredentials.Password) == 0 {
		return HelperCredentials{}, ErrCredentialHelperIncomplete
	}
	return helperCredentials, nil
}

func credentialRequest(endpoint gitrepo.RemoteEndpoint) string {
	host := endpoint.Host
	if endpoint.Port > 0 {
		host = host + hostPortSeparatorConstant + strconv.Itoa(endpoint.Port)
	}

	var requestBuilder strings.Builder
	fmt.Fprintf(&requestBuilder, credentialLineTemplateConstant, credentialProtocolKeyConstant, endpoint.Protocol)
	fmt.Fprintf(&requestBuilder, credentialLineTemplateConstant, credentialHostKeyConstant, host)
	if trimmedPath := strings.TrimPrefix(endpoint.Path, "/"); len(trimmedPath) > 0 {
		fmt.Fprintf(&requestBuilder, credentialLineTemplateConstant, credentialPathKeyConstant, trimmedPath)
	}
	if len(endpoint.User) > 0 {
		fmt.Fprintf(&requestBuilder, credentialLineTemplateConstant, credentialUsernameKeyConstant, endpoint.User)
	}
	requestBuilder.WriteString("\n")
	return requestBuilder.String()
}

func parseCredentialResponse(response string) HelperCredentials {
	helperCredentials := HelperCredentials{}
	responseScanner := bufio.NewScanner(strings.NewReader(response))
	for responseScanner.Scan() {
		key, value, found := strings.Cut(responseScanner.Text(), credentialAssignmentConstant)
		if !found {
			continue
		}
		switch key {
		case credentialUsernameKeyConstant:
			helperCredentials.Username = value
		case credentialPasswordKeyConstant:
			helperCredentials.Password = value
		}
	}
	return helperCredentials
}
