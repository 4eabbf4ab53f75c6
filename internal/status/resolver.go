package status

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v6"
	gitconfig "github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing"
	"go.uber.org/zap"
)

const (
	originRemoteNameConstant            = "origin"
	gitDirectoryNameConstant            = ".git"
	repositoryPathFieldConstant         = "repository_path"
	endpointFieldConstant               = "remote_endpoint"
	resolutionStartedMessageConstant    = "resolving repository"
	resolutionCompletedMessageConstant  = "repository resolved"
	divergenceFailedMessageConstant     = "divergence unavailable"
	classificationFailedMessageConstant = "working tree unreadable"
	optionalFieldFailedMessageConstant  = "optional field unavailable"
	optionalFieldNameFieldConstant      = "field"
	summaryFieldConstant                = "summary"
	configurationOperationConstant      = "read configuration"
	headOperationConstant               = "read HEAD"
	emailFieldNameConstant              = "email"
	submodulesFieldNameConstant         = "submodules"
)

// Resolver produces one Record per repository path.
type Resolver struct {
	options    Options
	logger     *zap.Logger
	classifier *WorkingTreeClassifier
	divergence *DivergenceCalculator
}

// NewResolver constructs a Resolver. credentialSource may be nil when remotes are
// never fetched or only anonymous access is wanted.
func NewResolver(options Options, credentialSource CredentialSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	sanitizedOptions := options.sanitize()
	return &Resolver{
		options:    sanitizedOptions,
		logger:     logger,
		classifier: NewWorkingTreeClassifier(logger),
		divergence: NewDivergenceCalculator(sanitizedOptions, credentialSource, logger),
	}
}

// Resolve opens the repository at repositoryPath and builds its Record. The error
// is non-nil only for a *NotARepositoryError or when executionContext is cancelled
// before resolution completes; every other failure is recorded inside the Record.
func (resolver *Resolver) Resolve(executionContext context.Context, repositoryPath string) (Record, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return Record{}, contextError
	}

	absolutePath, absoluteError := filepath.Abs(repositoryPath)
	if absoluteError != nil {
		absolutePath = filepath.Clean(repositoryPath)
	}
	logger := resolver.logger.With(zap.String(repositoryPathFieldConstant, absolutePath))
	logger.Debug(resolutionStartedMessageConstant)

	repository, openError := git.PlainOpenWithOptions(absolutePath, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	if openError != nil {
		return Record{}, &NotARepositoryError{Path: absolutePath, Cause: openError}
	}

	record := Record{
		Path:   absolutePath,
		Name:   filepath.Base(absolutePath),
		Parent: filepath.Dir(absolutePath),
	}

	branch, branchError := readBranch(repository)
	if branchError != nil {
		record.Error = &FilesystemError{Path: absolutePath, Operation: headOperationConstant, Cause: branchError}
	}
	record.Branch = branch

	repositoryConfig, configError := repository.Config()
	if configError != nil && record.Error == nil {
		record.Error = &FilesystemError{Path: absolutePath, Operation: configurationOperationConstant, Cause: configError}
	}

	if branchError == nil && configError == nil && !branch.Detached {
		record.Upstream = lookupUpstream(repositoryConfig, branch)
	}

	if record.Upstream != nil {
		divergence, divergenceError := resolver.divergence.Diverge(executionContext, repository, branch, *record.Upstream)
		if contextError := executionContext.Err(); contextError != nil {
			return Record{}, contextError
		}
		if divergenceError != nil {
			var remoteError *RemoteError
			if !errors.As(divergenceError, &remoteError) {
				remoteError = newRemoteError(RemoteErrorUnreachable, record.Upstream.RemoteName, divergenceError)
			}
			logger.Debug(divergenceFailedMessageConstant, zap.Error(remoteError))
			record.RemoteError = remoteError
		} else {
			record.Divergence = &divergence
		}
	}

	dirtyState, classifyError := resolver.classifier.Classify(repository, absolutePath)
	if classifyError != nil {
		logger.Debug(classificationFailedMessageConstant, zap.Error(classifyError))
		if record.Error == nil {
			record.Error = classifyError
		}
	} else {
		record.Dirty = dirtyState
	}

	if configError == nil {
		record.RemoteURL = selectRemoteURL(repositoryConfig, record.Upstream)
	}
	if resolver.options.IncludeEmail {
		record.Email = resolver.readEmail(repository, logger)
	}
	if resolver.options.IncludeSubmodules && !record.Dirty.Has(DirtyBare) && classifyError == nil {
		record.Submodules = resolver.readSubmodules(repository, absolutePath, logger)
	}

	logger.Debug(resolutionCompletedMessageConstant, zap.String(summaryFieldConstant, string(record.Summary())))
	return record, nil
}

// readBranch reads HEAD without resolving it. An unborn branch is still a named branch.
func readBranch(repository *git.Repository) (BranchInfo, error) {
	headReference, headError := repository.Reference(plumbing.HEAD, false)
	if headError != nil {
		return BranchInfo{}, headError
	}
	if headReference.Type() == plumbing.HashReference {
		return BranchInfo{Detached: true}, nil
	}
	targetName := headReference.Target()
	if !targetName.IsBranch() {
		return BranchInfo{Detached: true}, nil
	}
	return BranchInfo{Name: targetName.Short()}, nil
}

// lookupUpstream reads branch.<name>.remote and branch.<name>.merge. Either being
// absent means the branch has no upstream.
func lookupUpstream(repositoryConfig *gitconfig.Config, branch BranchInfo) *UpstreamRef {
	branchConfig, configured := repositoryConfig.Branches[branch.Name]
	if !configured || branchConfig == nil || len(branchConfig.Remote) == 0 || len(branchConfig.Merge) == 0 {
		return nil
	}

	mergeRef := branchConfig.Merge
	upstream := &UpstreamRef{
		RemoteName: branchConfig.Remote,
		BranchName: mergeRef.Short(),
		MergeRef:   mergeRef.String(),
	}
	if branchConfig.Remote == localRemoteNameConstant {
		upstream.Local = true
		upstream.TrackingRef = mergeRef.String()
		return upstream
	}
	upstream.TrackingRef = trackingReference(repositoryConfig.Remotes[branchConfig.Remote], branchConfig.Remote, mergeRef).String()
	return upstream
}

// trackingReference maps the merge ref through the remote's fetch refspecs, falling
// back to refs/remotes/<remote>/<branch>.
func trackingReference(remoteConfig *gitconfig.RemoteConfig, remoteName string, mergeRef plumbing.ReferenceName) plumbing.ReferenceName {
	if remoteConfig != nil {
		for _, fetchRefSpec := range remoteConfig.Fetch {
			if !fetchRefSpec.Match(mergeRef) {
				continue
			}
			return fetchRefSpec.Dst(mergeRef)
		}
	}
	return plumbing.ReferenceName(remoteTrackingPrefixConstant + remoteName + "/" + mergeRef.Short())
}

// selectRemoteURL prefers the upstream's remote, then origin, then the first remote by name.
func selectRemoteURL(repositoryConfig *gitconfig.Config, upstream *UpstreamRef) string {
	firstURL := func(remoteName string) string {
		remoteConfig, exists := repositoryConfig.Remotes[remoteName]
		if !exists || remoteConfig == nil || len(remoteConfig.URLs) == 0 {
			return ""
		}
		return remoteConfig.URLs[0]
	}

	if upstream != nil && !upstream.Local {
		if remoteURL := firstURL(upstream.RemoteName); len(remoteURL) > 0 {
			return remoteURL
		}
	}
	if remoteURL := firstURL(originRemoteNameConstant); len(remoteURL) > 0 {
		return remoteURL
	}

	remoteNames := make([]string, 0, len(repositoryConfig.Remotes))
	for remoteName := range repositoryConfig.Remotes {
		remoteNames = append(remoteNames, remoteName)
	}
	sort.Strings(remoteNames)
	for _, remoteName := range remoteNames {
		if remoteURL := firstURL(remoteName); len(remoteURL) > 0 {
			return remoteURL
		}
	}
	return ""
}

// readEmail returns user.email from the repository configuration merged over the
// global configuration.
func (resolver *Resolver) readEmail(repository *git.Repository, logger *zap.Logger) string {
	scopedConfig, scopedError := repository.ConfigScoped(gitconfig.GlobalScope)
	if scopedError != nil {
		logger.Debug(optionalFieldFailedMessageConstant, zap.String(optionalFieldNameFieldConstant, emailFieldNameConstant), zap.Error(scopedError))
		return ""
	}
	return scopedConfig.User.Email
}

func (resolver *Resolver) readSubmodules(repository *git.Repository, repositoryPath string, logger *zap.Logger) []SubmoduleRecord {
	worktree, worktreeError := repository.Worktree()
	if worktreeError != nil {
		logger.Debug(optionalFieldFailedMessageConstant, zap.String(optionalFieldNameFieldConstant, submodulesFieldNameConstant), zap.Error(worktreeError))
		return nil
	}
	submodules, submodulesError := worktree.Submodules()
	if submodulesError != nil {
		logger.Debug(optionalFieldFailedMessageConstant, zap.String(optionalFieldNameFieldConstant, submodulesFieldNameConstant), zap.Error(submodulesError))
		return nil
	}

	submoduleRecords := make([]SubmoduleRecord, 0, len(submodules))
	for _, submodule := range submodules {
		submoduleConfig := submodule.Config()
		if submoduleConfig == nil {
			continue
		}
		submoduleRecord := SubmoduleRecord{Name: submoduleConfig.Name, Path: submoduleConfig.Path}

		// Repository() initializes missing module storage, so only open checkouts that exist.
		if _, statError := os.Stat(filepath.Join(repositoryPath, filepath.FromSlash(submoduleConfig.Path), gitDirectoryNameConstant)); statError == nil {
			if submoduleRepository, openError := submodule.Repository(); openError == nil {
				submoduleRecord.Initialized = true
				if submoduleDirty, classifyError := resolver.classifier.Classify(submoduleRepository, filepath.Join(repositoryPath, submoduleConfig.Path)); classifyError == nil {
					submoduleRecord.Dirty = submoduleDirty
				}
				if submoduleStatus, statusError := submodule.Status(); statusError == nil {
					submoduleRecord.CommitMatches = submoduleStatus.IsClean()
				}
			}
		}
		submoduleRecords = append(submoduleRecords, submoduleRecord)
	}

	sort.Slice(submoduleRecords, func(first int, second int) bool {
		return submoduleRecords[first].Path < submoduleRecords[second].Path
	})
	return submoduleRecords
}
