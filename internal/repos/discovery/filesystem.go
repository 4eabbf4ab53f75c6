package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

const (
	gitMetadataEntryNameConstant        = ".git"
	rootUnavailableTemplateConstant     = "%w: %s: %w"
	unreadableDirectoryMessageConstant  = "skipping unreadable directory"
	repositoryDiscoveredMessageConstant = "repository discovered"
	walkPathFieldConstant               = "path"
)

// ErrRootUnavailable indicates a scan root could not be inspected.
var ErrRootUnavailable = errors.New("scan root unavailable")

// FilesystemRepositoryDiscoverer locates git repositories on disk.
type FilesystemRepositoryDiscoverer struct {
	logger *zap.Logger
}

// NewFilesystemRepositoryDiscoverer constructs a repository discoverer backed by filepath.WalkDir.
func NewFilesystemRepositoryDiscoverer(logger *zap.Logger) *FilesystemRepositoryDiscoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilesystemRepositoryDiscoverer{logger: logger}
}

// DiscoverRepositories walks the provided roots and returns, in sorted order, every directory
// holding a .git entry. The entry may be a directory or a gitdir file, as in linked worktrees
// and submodules. Walking continues below a repository so nested repositories are reported too.
// Unreadable subdirectories are skipped; a missing root is an error.
func (discoverer *FilesystemRepositoryDiscoverer) DiscoverRepositories(executionContext context.Context, roots []string) ([]string, error) {
	seen := make(map[string]struct{})
	var repositories []string

	for _, root := range roots {
		if _, statError := os.Stat(root); statError != nil {
			return nil, fmt.Errorf(rootUnavailableTemplateConstant, ErrRootUnavailable, root, statError)
		}

		walkError := filepath.WalkDir(root, func(path string, directoryEntry fs.DirEntry, visitError error) error {
			if contextError := executionContext.Err(); contextError != nil {
				return contextError
			}
			if visitError != nil {
				discoverer.logger.Debug(unreadableDirectoryMessageConstant, zap.String(walkPathFieldConstant, path), zap.Error(visitError))
				if directoryEntry != nil && directoryEntry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			if directoryEntry.Name() != gitMetadataEntryNameConstant {
				return nil
			}

			repositoryPath := filepath.Dir(path)
			if _, alreadySeen := seen[repositoryPath]; !alreadySeen {
				seen[repositoryPath] = struct{}{}
				repositories = append(repositories, repositoryPath)
				discoverer.logger.Debug(repositoryDiscoveredMessageConstant, zap.String(walkPathFieldConstant, repositoryPath))
			}

			if directoryEntry.IsDir() {
				return fs.SkipDir
			}
			return nil
		})
		if walkError != nil {
			return nil, walkError
		}
	}

	sort.Strings(repositories)
	return repositories, nil
}
