package credentials

import (
	"os"
	"time"
)

const (
	defaultContactTimeoutConstant  = 5 * time.Second
	defaultSSHUserConstant         = "git"
	defaultTokenUserConstant       = "x-access-token"
	agentSocketEnvironmentConstant = "SSH_AUTH_SOCK"
)

// Options configures a Resolver.
type Options struct {
	// SSHConfigPath is the SSH client configuration file; empty selects ~/.ssh/config.
	SSHConfigPath string
	// KeyPassphrase decrypts passphrase-protected identity files.
	KeyPassphrase string
	// IdentityFiles are tried after the default key paths.
	IdentityFiles []string
	// HomeDirectory overrides the user's home directory.
	HomeDirectory string
	// Token, Username and Password are explicit HTTPS credentials.
	Token    string
	Username string
	Password string
	// UseCredentialHelper enables git credential fill for HTTPS endpoints.
	UseCredentialHelper bool
	// ContactTimeout bounds dialling the SSH agent, each agent request, and running the credential helper.
	ContactTimeout time.Duration
	// LookupEnvironment replaces os.LookupEnv.
	LookupEnvironment EnvironmentLookup
}

func (options Options) sanitize() Options {
	sanitized := options
	if sanitized.ContactTimeout <= 0 {
		sanitized.ContactTimeout = defaultContactTimeoutConstant
	}
	if sanitized.LookupEnvironment == nil {
		sanitized.LookupEnvironment = os.LookupEnv
	}
	if len(sanitized.HomeDirectory) == 0 {
		if homeDirectory, homeError := os.UserHomeDir(); homeError == nil {
			sanitized.HomeDirectory = homeDirectory
		}
	}
	return sanitized
}
