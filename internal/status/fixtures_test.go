package status_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v6"
	gitconfig "github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/stretchr/testify/require"
)

const (
	testOriginRemoteConstant    = "origin"
	testAuthorNameConstant      = "Fixture Author"
	testAuthorEmailConstant     = "fixture@example.com"
	testRemoteURLConstant       = "https://example.com/team/fixture.git"
	testSubtestTemplateConstant = "%d_%s"
	testFileModeConstant        = 0o644
)

type fixtureRepository struct {
	testInstance *testing.T
	path         string
	repository   *git.Repository
	worktree     *git.Worktree
	commitIndex  int
}

func newFixtureRepository(testInstance *testing.T) *fixtureRepository {
	testInstance.Helper()
	repositoryPath := testInstance.TempDir()
	repository, initError := git.PlainInit(repositoryPath, false)
	require.NoError(testInstance, initError)
	worktree, worktreeError := repository.Worktree()
	require.NoError(testInstance, worktreeError)
	return &fixtureRepository{testInstance: testInstance, path: repositoryPath, repository: repository, worktree: worktree}
}

// cloneFixtureRepository clones source through its filesystem path, so the clone's
// current branch tracks origin.
func cloneFixtureRepository(testInstance *testing.T, source *fixtureRepository) *fixtureRepository {
	testInstance.Helper()
	repositoryPath := testInstance.TempDir()
	repository, cloneError := git.PlainCloneContext(context.Background(), repositoryPath, &git.CloneOptions{URL: source.path})
	require.NoError(testInstance, cloneError)
	worktree, worktreeError := repository.Worktree()
	require.NoError(testInstance, worktreeError)
	return &fixtureRepository{testInstance: testInstance, path: repositoryPath, repository: repository, worktree: worktree, commitIndex: source.commitIndex}
}

func (fixture *fixtureRepository) writeFile(relativePath string, content string) {
	fixture.testInstance.Helper()
	absolutePath := filepath.Join(fixture.path, filepath.FromSlash(relativePath))
	require.NoError(fixture.testInstance, os.MkdirAll(filepath.Dir(absolutePath), 0o755))
	require.NoError(fixture.testInstance, os.WriteFile(absolutePath, []byte(content), testFileModeConstant))
}

func (fixture *fixtureRepository) stage(relativePath string) {
	fixture.testInstance.Helper()
	_, addError := fixture.worktree.Add(relativePath)
	require.NoError(fixture.testInstance, addError)
}

// commit writes a uniquely named file and commits it on the current branch.
func (fixture *fixtureRepository) commit(message string) plumbing.Hash {
	fixture.testInstance.Helper()
	fixture.commitIndex++
	fileName := filepath.ToSlash(filepath.Join("history", message+".txt"))
	fixture.writeFile(fileName, message)
	fixture.stage(fileName)
	return fixture.commitStaged(message)
}

func (fixture *fixtureRepository) commitStaged(message string) plumbing.Hash {
	fixture.testInstance.Helper()
	commitHash, commitError := fixture.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  testAuthorNameConstant,
			Email: testAuthorEmailConstant,
			When:  time.Unix(1700000000+int64(fixture.commitIndex), 0),
		},
	})
	require.NoError(fixture.testInstance, commitError)
	return commitHash
}

func (fixture *fixtureRepository) branchName() string {
	fixture.testInstance.Helper()
	headReference, headError := fixture.repository.Reference(plumbing.HEAD, false)
	require.NoError(fixture.testInstance, headError)
	return headReference.Target().Short()
}

func (fixture *fixtureRepository) addRemote(remoteName string, remoteURL string) {
	fixture.testInstance.Helper()
	_, remoteError := fixture.repository.CreateRemote(&gitconfig.RemoteConfig{
		Name:  remoteName,
		URLs:  []string{remoteURL},
		Fetch: []gitconfig.RefSpec{gitconfig.RefSpec("+refs/heads/*:refs/remotes/" + remoteName + "/*")},
	})
	require.NoError(fixture.testInstance, remoteError)
}

func (fixture *fixtureRepository) trackUpstream(remoteName string, branchName string) {
	fixture.testInstance.Helper()
	require.NoError(fixture.testInstance, fixture.repository.CreateBranch(&gitconfig.Branch{
		Name:   fixture.branchName(),
		Remote: remoteName,
		Merge:  plumbing.NewBranchReferenceName(branchName),
	}))
}

func (fixture *fixtureRepository) setReference(referenceName plumbing.ReferenceName, commitHash plumbing.Hash) {
	fixture.testInstance.Helper()
	require.NoError(fixture.testInstance, fixture.repository.Storer.SetReference(plumbing.NewHashReference(referenceName, commitHash)))
}

func (fixture *fixtureRepository) setRemoteTracking(remoteName string, branchName string, commitHash plumbing.Hash) {
	fixture.setReference(plumbing.NewRemoteReferenceName(remoteName, branchName), commitHash)
}

func (fixture *fixtureRepository) hardReset(commitHash plumbing.Hash) {
	fixture.testInstance.Helper()
	require.NoError(fixture.testInstance, fixture.worktree.Reset(&git.ResetOptions{Commit: commitHash, Mode: git.HardReset}))
}

// withOriginUpstream configures origin with a tracked upstream of the same name as
// the current branch and returns that branch name.
func (fixture *fixtureRepository) withOriginUpstream(remoteURL string) string {
	fixture.testInstance.Helper()
	branchName := fixture.branchName()
	fixture.addRemote(testOriginRemoteConstant, remoteURL)
	fixture.trackUpstream(testOriginRemoteConstant, branchName)
	return branchName
}
