package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v6/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v6/plumbing/transport/ssh"
	"go.uber.org/zap"

	"github.com/temirov/gfold/internal/gitrepo"
)

const (
	sshAgentDescriptionConstant       = "ssh agent"
	sshKeyDescriptionTemplateConstant = "ssh key %s"
	httpsTokenDescriptionConstant     = "https token"
	httpsBasicDescriptionConstant     = "https basic credentials"
	httpsHelperDescriptionConstant    = "git credential helper"
	anonymousDescriptionConstant      = "anonymous"
	candidateSkippedMessageConstant   = "credential candidate skipped"
	candidateKindFieldConstant        = "credential_kind"
	candidatePathFieldConstant        = "credential_path"
	endpointFieldConstant             = "remote_endpoint"
	defaultEd25519KeyFileNameConstant = "id_ed25519"
	defaultECDSAKeyFileNameConstant   = "id_ecdsa"
	defaultRSAKeyFileNameConstant     = "id_rsa"
)

var defaultKeyFileNames = []string{
	defaultEd25519KeyFileNameConstant,
	defaultECDSAKeyFileNameConstant,
	defaultRSAKeyFileNameConstant,
}

// Resolver produces authentication candidates for remote endpoints. A single
// Resolver is shared by every resolution task of a run; its SSH agent connection
// and parsed SSH client configuration are initialized on first use.
type Resolver struct {
	options          Options
	logger           *zap.Logger
	sshConfiguration *sshClientConfiguration
	agent            *agentConnector
	credentialHelper *CredentialHelper
}

// NewResolver constructs a Resolver. The credential helper is optional; a nil
// helper disables the git credential fill candidate.
func NewResolver(options Options, logger *zap.Logger, credentialHelper *CredentialHelper) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	sanitizedOptions := options.sanitize()
	return &Resolver{
		options:          sanitizedOptions,
		logger:           logger,
		sshConfiguration: newSSHClientConfiguration(sanitizedOptions.SSHConfigPath, sanitizedOptions.HomeDirectory, logger),
		agent:            newAgentConnector(sanitizedOptions.LookupEnvironment, sanitizedOptions.ContactTimeout),
		credentialHelper: credentialHelper,
	}
}

// Candidates returns the ordered candidate sequence for the endpoint. Each candidate
// is prepared only when the consumer asks for it, so stopping after the first
// success never dials the agent, reads keys, or runs the credential helper needlessly.
func (resolver *Resolver) Candidates(executionContext context.Context, endpoint gitrepo.RemoteEndpoint) iter.Seq[Candidate] {
	switch {
	case endpoint.IsSSH():
		return resolver.sshCandidates(executionContext, endpoint)
	case endpoint.IsHTTP():
		return resolver.httpCandidates(executionContext, endpoint)
	default:
		return func(yield func(Candidate) bool) {
			yield(anonymousCandidate())
		}
	}
}

// RequiresCredentials reports whether an endpoint's transport authenticates at all.
func RequiresCredentials(endpoint gitrepo.RemoteEndpoint) bool {
	return endpoint.IsSSH() || endpoint.IsHTTP()
}

func (resolver *Resolver) sshCandidates(executionContext context.Context, endpoint gitrepo.RemoteEndpoint) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		sshUser := resolver.sshUser(endpoint)

		if agentCallback, agentError := resolver.agent.signers(executionContext); agentError == nil {
			agentCandidate := Candidate{
				Kind:        KindSSHAgent,
				Description: sshAgentDescriptionConstant,
				method:      &gitssh.PublicKeysCallback{User: sshUser, Callback: agentCallback},
			}
			if !yield(agentCandidate) {
				return
			}
		} else {
			resolver.logSkipped(KindSSHAgent, endpoint, "", agentError)
		}

		yieldedPaths := make(map[string]struct{})
		for _, keyPath := range resolver.keyPaths(endpoint.Host, sshUser) {
			if executionContext.Err() != nil {
				return
			}
			canonicalPath := filepath.Clean(keyPath)
			if _, alreadyYielded := yieldedPaths[canonicalPath]; alreadyYielded {
				continue
			}
			yieldedPaths[canonicalPath] = struct{}{}

			keyCandidate, loadError := resolver.keyCandidate(sshUser, canonicalPath)
			if loadError != nil {
				resolver.logSkipped(KindSSHKey, endpoint, canonicalPath, loadError)
				continue
			}
			if !yield(keyCandidate) {
				return
			}
		}
	}
}

// keyPaths lists configured identities for the host followed by the default key
// files and the explicitly configured extra identity files.
func (resolver *Resolver) keyPaths(host string, sshUser string) []string {
	keyPaths := append([]string{}, resolver.sshConfiguration.IdentityFiles(host, sshUser)...)
	if len(resolver.options.HomeDirectory) > 0 {
		for _, keyFileName := range defaultKeyFileNames {
			keyPaths = append(keyPaths, filepath.Join(resolver.options.HomeDirectory, sshDirectoryNameConstant, keyFileName))
		}
	}
	for _, identityFile := range resolver.options.IdentityFiles {
		keyPaths = append(keyPaths, resolver.sshConfiguration.homeExpander.Expand(identityFile))
	}
	return keyPaths
}

func (resolver *Resolver) keyCandidate(sshUser string, keyPath string) (Candidate, error) {
	if _, statError := os.Stat(keyPath); statError != nil {
		return Candidate{}, statError
	}
	publicKeys, loadError := gitssh.NewPublicKeysFromFile(sshUser, keyPath, resolver.options.KeyPassphrase)
	if loadError != nil {
		return Candidate{}, loadError
	}
	return Candidate{
		Kind:        KindSSHKey,
		Description: fmt.Sprintf(sshKeyDescriptionTemplateConstant, keyPath),
		method:      publicKeys,
	}, nil
}

func (resolver *Resolver) sshUser(endpoint gitrepo.RemoteEndpoint) string {
	if len(endpoint.User) > 0 {
		return endpoint.User
	}
	if configuredUser := resolver.sshConfiguration.User(endpoint.Host); len(configuredUser) > 0 {
		return configuredUser
	}
	return defaultSSHUserConstant
}

func (resolver *Resolver) httpCandidates(executionContext context.Context, endpoint gitrepo.RemoteEndpoint) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		if token, tokenFound := ResolveToken(resolver.options.Token, resolver.options.LookupEnvironment); tokenFound {
			tokenCandidate := Candidate{
				Kind:        KindHTTPSToken,
				Description: httpsTokenDescriptionConstant,
				method:      &http.BasicAuth{Username: resolver.tokenUser(endpoint), Password: token},
			}
			if !yield(tokenCandidate) {
				return
			}
		}

		if len(resolver.options.Username) > 0 && len(resolver.options.Password) > 0 {
			basicCandidate := Candidate{
				Kind:        KindHTTPSBasic,
				Description: httpsBasicDescriptionConstant,
				method:      &http.BasicAuth{Username: resolver.options.Username, Password: resolver.options.Password},
			}
			if !yield(basicCandidate) {
				return
			}
		}

		if executionContext.Err() != nil {
			return
		}
		if resolver.options.UseCredentialHelper && resolver.credentialHelper != nil {
			helperContext, cancelHelper := context.WithTimeout(executionContext, resolver.options.ContactTimeout)
			helperCredentials, helperError := resolver.credentialHelper.Fill(helperContext, endpoint)
			cancelHelper()
			if helperError == nil {
				helperCandidate := Candidate{
					Kind:        KindHTTPSCredentialHelper,
					Description: httpsHelperDescriptionConstant,
					method:      &http.BasicAuth{Username: helperCredentials.Username, Password: helperCredentials.Password},
				}
				if !yield(helperCandidate) {
					return
				}
			} else {
				resolver.logSkipped(KindHTTPSCredentialHelper, endpoint, "", helperError)
			}
		}

		yield(anonymousCandidate())
	}
}

func (resolver *Resolver) tokenUser(endpoint gitrepo.RemoteEndpoint) string {
	if len(resolver.options.Username) > 0 {
		return resolver.options.Username
	}
	if len(endpoint.User) > 0 {
		return endpoint.User
	}
	return defaultTokenUserConstant
}

func (resolver *Resolver) logSkipped(kind Kind, endpoint gitrepo.RemoteEndpoint, keyPath string, cause error) {
	if errors.Is(cause, fs.ErrNotExist) || errors.Is(cause, ErrAgentSocketNotConfigured) {
		return
	}
	fields := []zap.Field{
		zap.String(candidateKindFieldConstant, string(kind)),
		zap.String(endpointFieldConstant, endpoint.String()),
		zap.Error(cause),
	}
	if len(keyPath) > 0 {
		fields = append(fields, zap.String(candidatePathFieldConstant, keyPath))
	}
	resolver.logger.Debug(candidateSkippedMessageConstant, fields...)
}
