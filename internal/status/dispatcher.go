package status

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	dispatchStartedMessageConstant   = "dispatching repository resolution"
	dispatchCompletedMessageConstant = "repository resolution finished"
	notARepositoryMessageConstant    = "path is not a git repository"
	abandonedMessageConstant         = "repository resolution abandoned"
	pathCountFieldConstant           = "path_count"
	workerCountFieldConstant         = "worker_count"
	abandonedCountFieldConstant      = "abandoned_count"
	abandonedTemplateConstant        = "%w: %w"
)

// RepositoryResolver resolves one repository path.
type RepositoryResolver interface {
	Resolve(executionContext context.Context, repositoryPath string) (Record, error)
}

// Outcome pairs an input path with its Record or the error that replaced it.
type Outcome struct {
	Path   string
	Record Record
	Err    error
}

// NotARepository reports whether the path could not be opened as a repository.
func (outcome Outcome) NotARepository() bool {
	return errors.Is(outcome.Err, ErrNotARepository)
}

// Abandoned reports whether the resolution was cancelled.
func (outcome Outcome) Abandoned() bool {
	return errors.Is(outcome.Err, ErrAbandoned)
}

// Dispatcher applies a RepositoryResolver to many paths with bounded concurrency.
type Dispatcher struct {
	resolver RepositoryResolver
	workers  int
	logger   *zap.Logger
}

// NewDispatcher constructs a Dispatcher. Non-positive worker counts select runtime.NumCPU.
func NewDispatcher(resolver RepositoryResolver, workers int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		resolver: resolver,
		workers:  Options{Workers: workers}.sanitize().Workers,
		logger:   logger,
	}
}

// Dispatch resolves every path and returns one Outcome per input in input order.
// A failing path never stops its siblings. After executionContext is cancelled,
// paths that have not completed carry an error matching ErrAbandoned while
// completed outcomes are kept.
func (dispatcher *Dispatcher) Dispatch(executionContext context.Context, repositoryPaths []string) []Outcome {
	outcomes := make([]Outcome, len(repositoryPaths))
	dispatcher.logger.Debug(dispatchStartedMessageConstant, zap.Int(pathCountFieldConstant, len(repositoryPaths)), zap.Int(workerCountFieldConstant, dispatcher.workers))

	var workerGroup errgroup.Group
	workerGroup.SetLimit(dispatcher.workers)

	for pathIndex, repositoryPath := range repositoryPaths {
		outcomes[pathIndex].Path = repositoryPath
		if contextError := executionContext.Err(); contextError != nil {
			outcomes[pathIndex].Err = abandoned(contextError)
			continue
		}
		workerGroup.Go(func() error {
			outcomes[pathIndex] = dispatcher.resolveOne(executionContext, repositoryPath)
			return nil
		})
	}
	_ = workerGroup.Wait()

	abandonedCount := 0
	for _, outcome := range outcomes {
		if outcome.Abandoned() {
			abandonedCount++
		}
	}
	dispatcher.logger.Debug(dispatchCompletedMessageConstant, zap.Int(pathCountFieldConstant, len(outcomes)), zap.Int(abandonedCountFieldConstant, abandonedCount))
	return outcomes
}

func (dispatcher *Dispatcher) resolveOne(executionContext context.Context, repositoryPath string) Outcome {
	if contextError := executionContext.Err(); contextError != nil {
		return Outcome{Path: repositoryPath, Err: abandoned(contextError)}
	}

	record, resolveError := dispatcher.resolver.Resolve(executionContext, repositoryPath)
	switch {
	case resolveError == nil:
		return Outcome{Path: repositoryPath, Record: record}
	case errors.Is(resolveError, ErrNotARepository):
		dispatcher.logger.Debug(notARepositoryMessageConstant, zap.String(repositoryPathFieldConstant, repositoryPath), zap.Error(resolveError))
		return Outcome{Path: repositoryPath, Err: resolveError}
	case errors.Is(resolveError, context.Canceled), errors.Is(resolveError, context.DeadlineExceeded):
		dispatcher.logger.Debug(abandonedMessageConstant, zap.String(repositoryPathFieldConstant, repositoryPath))
		return Outcome{Path: repositoryPath, Err: abandoned(resolveError)}
	default:
		return Outcome{Path: repositoryPath, Err: resolveError}
	}
}

func abandoned(cause error) error {
	return fmt.Errorf(abandonedTemplateConstant, ErrAbandoned, cause)
}
