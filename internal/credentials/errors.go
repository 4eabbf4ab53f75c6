package credentials

import "errors"

var (
	// ErrAgentSocketNotConfigured indicates SSH_AUTH_SOCK is not set.
	ErrAgentSocketNotConfigured = errors.New("credentials: ssh agent socket not configured")
	// ErrAgentHasNoIdentities indicates the agent answered but holds no keys.
	ErrAgentHasNoIdentities = errors.New("credentials: ssh agent holds no identities")
	// ErrAgentUnresponsive indicates an agent request missed its deadline and the connection was retired.
	ErrAgentUnresponsive = errors.New("credentials: ssh agent did not respond")
	// ErrCredentialHelperIncomplete indicates git credential fill returned no usable username and password.
	ErrCredentialHelperIncomplete = errors.New("credentials: credential helper returned incomplete credentials")
	// ErrGitExecutableNotFound indicates git is not available on PATH.
	ErrGitExecutableNotFound = errors.New("credentials: git executable not found")
)
