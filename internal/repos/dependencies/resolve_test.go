package dependencies_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/temirov/gfold/internal/credentials"
	"github.com/temirov/gfold/internal/execshell"
	"github.com/temirov/gfold/internal/repos/dependencies"
	"github.com/temirov/gfold/internal/repos/discovery"
	"github.com/temirov/gfold/internal/status"
)

type recordingExecutor struct{}

func (recordingExecutor) ExecuteGit(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return execshell.ExecutionResult{}, nil
}

type fixedResolver struct{}

func (fixedResolver) Resolve(context.Context, string) (status.Record, error) {
	return status.Record{}, nil
}

func TestResolveDefaults(testInstance *testing.T) {
	logger := zaptest.NewLogger(testInstance)

	discoverer := dependencies.ResolveRepositoryDiscoverer(nil, logger)
	require.IsType(testInstance, &discovery.FilesystemRepositoryDiscoverer{}, discoverer)

	executor, executorError := dependencies.ResolveGitExecutor(nil, logger)
	require.NoError(testInstance, executorError)
	require.IsType(testInstance, &execshell.ShellExecutor{}, executor)

	source := dependencies.ResolveCredentialSource(nil, credentials.Options{UseCredentialHelper: true}, executor, logger)
	require.IsType(testInstance, &credentials.Resolver{}, source)

	resolver := dependencies.ResolveRepositoryResolver(nil, status.Options{}, source, logger)
	require.IsType(testInstance, &status.Resolver{}, resolver)
}

func TestResolveKeepsProvidedCollaborators(testInstance *testing.T) {
	providedExecutor := recordingExecutor{}
	executor, executorError := dependencies.ResolveGitExecutor(providedExecutor, nil)
	require.NoError(testInstance, executorError)
	require.Equal(testInstance, providedExecutor, executor)

	providedResolver := fixedResolver{}
	require.Equal(testInstance, providedResolver, dependencies.ResolveRepositoryResolver(providedResolver, status.Options{}, nil, nil))
}
