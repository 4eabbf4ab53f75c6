package dependencies

import (
	"context"

	"go.uber.org/zap"

	"github.com/temirov/gfold/internal/credentials"
	"github.com/temirov/gfold/internal/execshell"
	"github.com/temirov/gfold/internal/repos/discovery"
	"github.com/temirov/gfold/internal/status"
)

// RepositoryDiscoverer yields candidate repository paths beneath scan roots.
type RepositoryDiscoverer interface {
	DiscoverRepositories(executionContext context.Context, roots []string) ([]string, error)
}

// ResolveRepositoryDiscoverer returns the provided discoverer or a filesystem-backed default.
func ResolveRepositoryDiscoverer(existing RepositoryDiscoverer, logger *zap.Logger) RepositoryDiscoverer {
	if existing != nil {
		return existing
	}
	return discovery.NewFilesystemRepositoryDiscoverer(logger)
}

// ResolveGitExecutor returns the provided executor or constructs a shell-backed default.
func ResolveGitExecutor(existing credentials.GitExecutor, logger *zap.Logger) (credentials.GitExecutor, error) {
	if existing != nil {
		return existing, nil
	}

	shellExecutor, creationError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if creationError != nil {
		return nil, creationError
	}
	return shellExecutor, nil
}

// ResolveCredentialSource returns the provided source or a credentials.Resolver whose
// credential helper runs through executor.
func ResolveCredentialSource(existing status.CredentialSource, options credentials.Options, executor credentials.GitExecutor, logger *zap.Logger) status.CredentialSource {
	if existing != nil {
		return existing
	}

	var credentialHelper *credentials.CredentialHelper
	if options.UseCredentialHelper && executor != nil {
		credentialHelper = credentials.NewCredentialHelper(executor, nil)
	}
	return credentials.NewResolver(options, logger, credentialHelper)
}

// ResolveRepositoryResolver returns the provided resolver or a status.Resolver backed by source.
func ResolveRepositoryResolver(existing status.RepositoryResolver, options status.Options, source status.CredentialSource, logger *zap.Logger) status.RepositoryResolver {
	if existing != nil {
		return existing
	}
	return status.NewResolver(options, source, logger)
}
