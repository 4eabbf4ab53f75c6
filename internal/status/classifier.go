package status

import (
	"errors"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/format/index"
	"go.uber.org/zap"
)

const (
	worktreeOperationConstant          = "open worktree"
	statusOperationConstant            = "read status"
	indexOperationConstant             = "read index"
	submoduleListFailedMessageConstant = "submodule list unavailable"
	gitPathSeparatorConstant           = "/"
)

// WorkingTreeClassifier derives DirtyState from the index and working tree. It
// never touches the network.
type WorkingTreeClassifier struct {
	logger *zap.Logger
}

// NewWorkingTreeClassifier constructs a classifier; a nil logger discards output.
func NewWorkingTreeClassifier(logger *zap.Logger) *WorkingTreeClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkingTreeClassifier{logger: logger}
}

// Classify compares HEAD, the index, and the working tree. Ignored files are never
// reported as untracked. Changes under a submodule path only set DirtySubmodule,
// and a bare repository yields DirtyBare without error.
func (classifier *WorkingTreeClassifier) Classify(repository *git.Repository, repositoryPath string) (DirtyState, error) {
	worktree, worktreeError := repository.Worktree()
	if worktreeError != nil {
		if errors.Is(worktreeError, git.ErrIsBareRepository) {
			return DirtyBare, nil
		}
		return 0, &FilesystemError{Path: repositoryPath, Operation: worktreeOperationConstant, Cause: worktreeError}
	}

	repositoryIndex, indexError := repository.Storer.Index()
	if indexError != nil {
		return 0, &FilesystemError{Path: repositoryPath, Operation: indexOperationConstant, Cause: indexError}
	}
	conflictedPaths := unmergedPaths(repositoryIndex)

	worktreeStatus, statusError := worktree.Status()
	if statusError != nil {
		return 0, &FilesystemError{Path: repositoryPath, Operation: statusOperationConstant, Cause: statusError}
	}
	if len(worktreeStatus) == 0 && len(conflictedPaths) == 0 {
		return 0, nil
	}

	submodulePaths := classifier.submodulePaths(worktree, repositoryPath)

	var dirtyState DirtyState
	for conflictedPath := range conflictedPaths {
		if isSubmodulePath(conflictedPath, submodulePaths) {
			dirtyState |= DirtySubmodule
			continue
		}
		dirtyState |= DirtyConflicted
	}
	for filePath, fileStatus := range worktreeStatus {
		if _, conflicted := conflictedPaths[filePath]; conflicted {
			continue
		}
		if isSubmodulePath(filePath, submodulePaths) {
			if fileStatus.Staging != git.Unmodified || fileStatus.Worktree != git.Unmodified {
				dirtyState |= DirtySubmodule
			}
			continue
		}
		dirtyState |= classifyFileStatus(fileStatus)
	}
	return dirtyState, nil
}

// unmergedPaths lists index entries held at a merge stage; Worktree.Status never
// reports them.
func unmergedPaths(repositoryIndex *index.Index) map[string]struct{} {
	conflictedPaths := make(map[string]struct{})
	for _, entry := range repositoryIndex.Entries {
		if entry.Stage >= index.AncestorMode {
			conflictedPaths[entry.Name] = struct{}{}
		}
	}
	return conflictedPaths
}

func classifyFileStatus(fileStatus *git.FileStatus) DirtyState {
	var dirtyState DirtyState
	if fileStatus.Staging == git.Untracked || fileStatus.Worktree == git.Untracked {
		return DirtyUntracked
	}
	if fileStatus.Staging != git.Unmodified {
		dirtyState |= DirtyStaged
	}
	if fileStatus.Worktree != git.Unmodified {
		dirtyState |= DirtyUnstaged
	}
	return dirtyState
}

func (classifier *WorkingTreeClassifier) submodulePaths(worktree *git.Worktree, repositoryPath string) []string {
	submodules, submodulesError := worktree.Submodules()
	if submodulesError != nil {
		classifier.logger.Debug(submoduleListFailedMessageConstant, zap.String(repositoryPathFieldConstant, repositoryPath), zap.Error(submodulesError))
		return nil
	}
	paths := make([]string, 0, len(submodules))
	for _, submodule := range submodules {
		if submoduleConfig := submodule.Config(); submoduleConfig != nil && len(submoduleConfig.Path) > 0 {
			paths = append(paths, strings.TrimSuffix(submoduleConfig.Path, gitPathSeparatorConstant))
		}
	}
	return paths
}

func isSubmodulePath(filePath string, submodulePaths []string) bool {
	for _, submodulePath := range submodulePaths {
		if filePath == submodulePath || strings.HasPrefix(filePath, submodulePath+gitPathSeparatorConstant) {
			return true
		}
	}
	return false
}
