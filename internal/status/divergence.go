package status

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/go-git/go-git/v6"
	gitconfig "github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/transport"
	"go.uber.org/zap"

	"github.com/temirov/gfold/internal/credentials"
	"github.com/temirov/gfold/internal/gitrepo"
)

const (
	localRemoteNameConstant              = "."
	remoteTrackingPrefixConstant         = "refs/remotes/"
	fetchRefSpecTemplateConstant         = "+%s:%s"
	remoteHasNoURLMessageConstant        = "remote has no url"
	noCredentialsMessageConstant         = "no credential candidates available"
	missingTrackingRefMessageConstant    = "remote-tracking ref missing"
	missingMergeRefMessageConstant       = "upstream branch missing"
	unableToAuthenticateFragmentConstant = "unable to authenticate"
	fetchAttemptMessageConstant          = "fetching upstream"
	fetchAttemptFailedMessageConstant    = "fetch attempt failed"
	credentialKindFieldConstant          = "credential_kind"
	remoteNameFieldConstant              = "remote_name"
)

// CredentialSource yields authentication candidates for a remote endpoint.
type CredentialSource interface {
	Candidates(executionContext context.Context, endpoint gitrepo.RemoteEndpoint) iter.Seq[credentials.Candidate]
}

// DivergenceCalculator counts ahead/behind commits between a local branch and its upstream.
type DivergenceCalculator struct {
	options          Options
	credentialSource CredentialSource
	logger           *zap.Logger
}

// NewDivergenceCalculator constructs a calculator. The credential source is only
// consulted when Options.FetchRemote is set.
func NewDivergenceCalculator(options Options, credentialSource CredentialSource, logger *zap.Logger) *DivergenceCalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DivergenceCalculator{options: options.sanitize(), credentialSource: credentialSource, logger: logger}
}

// Diverge returns the divergence of the local branch against its upstream. Failures
// are *RemoteError values.
func (calculator *DivergenceCalculator) Diverge(executionContext context.Context, repository *git.Repository, branch BranchInfo, upstream UpstreamRef) (Divergence, error) {
	localReferenceName := plumbing.NewBranchReferenceName(branch.Name)

	if upstream.Local {
		return calculator.count(repository, upstream.RemoteName, localReferenceName, plumbing.ReferenceName(upstream.MergeRef))
	}

	remote, remoteError := repository.Remote(upstream.RemoteName)
	if remoteError != nil {
		return Divergence{}, newRemoteError(RemoteErrorInvalidRemote, upstream.RemoteName, remoteError)
	}
	remoteURLs := remote.Config().URLs
	if len(remoteURLs) == 0 {
		return Divergence{}, newRemoteError(RemoteErrorInvalidRemote, upstream.RemoteName, errors.New(remoteHasNoURLMessageConstant))
	}
	endpoint, parseError := gitrepo.ParseRemoteURL(remoteURLs[0])
	if parseError != nil {
		return Divergence{}, newRemoteError(RemoteErrorInvalidRemote, upstream.RemoteName, parseError)
	}

	if calculator.options.FetchRemote {
		if fetchError := calculator.fetch(executionContext, remote, endpoint, upstream); fetchError != nil {
			return Divergence{}, fetchError
		}
	}

	return calculator.count(repository, upstream.RemoteName, localReferenceName, plumbing.ReferenceName(upstream.TrackingRef))
}

// fetch updates the remote-tracking ref of the upstream branch, trying credential
// candidates in order until one is accepted.
func (calculator *DivergenceCalculator) fetch(executionContext context.Context, remote *git.Remote, endpoint gitrepo.RemoteEndpoint, upstream UpstreamRef) *RemoteError {
	fetchContext, cancelFetch := context.WithTimeout(executionContext, calculator.options.RemoteTimeout)
	defer cancelFetch()

	refSpec := gitconfig.RefSpec(fmt.Sprintf(fetchRefSpecTemplateConstant, upstream.MergeRef, upstream.TrackingRef))
	calculator.logger.Debug(fetchAttemptMessageConstant, zap.String(remoteNameFieldConstant, upstream.RemoteName), zap.String(endpointFieldConstant, endpoint.String()))

	candidates := calculator.candidates(fetchContext, endpoint)
	var lastFailure *RemoteError
	var lastAuthenticationFailure *RemoteError
	attempted := false
	for candidate := range candidates {
		attempted = true
		fetchError := remote.FetchContext(fetchContext, &git.FetchOptions{
			RemoteName: upstream.RemoteName,
			RefSpecs:   []gitconfig.RefSpec{refSpec},
			Auth:       candidate.AuthMethod(),
		})
		if fetchError == nil || errors.Is(fetchError, git.NoErrAlreadyUpToDate) {
			return nil
		}

		calculator.logger.Debug(fetchAttemptFailedMessageConstant, zap.String(remoteNameFieldConstant, upstream.RemoteName), zap.String(credentialKindFieldConstant, string(candidate.Kind)), zap.Error(fetchError))
		failure, retryable := classifyFetchError(fetchContext, upstream.RemoteName, fetchError)
		if !retryable {
			return failure
		}
		lastFailure = failure
		if failure.Kind == RemoteErrorAuthFailed {
			lastAuthenticationFailure = failure
		}
		if fetchContext.Err() != nil {
			return newRemoteError(RemoteErrorUnreachable, upstream.RemoteName, fetchContext.Err())
		}
	}

	if !attempted {
		return newRemoteError(RemoteErrorAuthFailed, upstream.RemoteName, errors.New(noCredentialsMessageConstant))
	}
	if lastAuthenticationFailure != nil {
		return lastAuthenticationFailure
	}
	return lastFailure
}

func (calculator *DivergenceCalculator) candidates(executionContext context.Context, endpoint gitrepo.RemoteEndpoint) iter.Seq[credentials.Candidate] {
	if calculator.credentialSource == nil || !credentials.RequiresCredentials(endpoint) {
		return func(yield func(credentials.Candidate) bool) {
			yield(credentials.Candidate{Kind: credentials.KindAnonymous})
		}
	}
	return calculator.credentialSource.Candidates(executionContext, endpoint)
}

// classifyFetchError maps a fetch failure to a RemoteError and reports whether the
// next credential candidate may succeed where this one failed.
func classifyFetchError(fetchContext context.Context, remoteName string, fetchError error) (*RemoteError, bool) {
	switch {
	case fetchContext.Err() != nil:
		return newRemoteError(RemoteErrorUnreachable, remoteName, fetchError), false
	case errors.Is(fetchError, transport.ErrAuthenticationRequired),
		errors.Is(fetchError, transport.ErrAuthorizationFailed),
		strings.Contains(fetchError.Error(), unableToAuthenticateFragmentConstant):
		return newRemoteError(RemoteErrorAuthFailed, remoteName, fetchError), true
	case errors.Is(fetchError, transport.ErrRepositoryNotFound):
		// Hosts answer "not found" to keys that lack access, so another key may still work.
		return newRemoteError(RemoteErrorUnreachable, remoteName, fetchError), true
	case errors.Is(fetchError, git.ErrRemoteRefNotFound),
		errors.Is(fetchError, transport.ErrEmptyRemoteRepository):
		return newRemoteError(RemoteErrorRefNotFound, remoteName, fetchError), false
	default:
		return newRemoteError(RemoteErrorUnreachable, remoteName, fetchError), false
	}
}

// count resolves both tips and counts the commits unique to each side.
func (calculator *DivergenceCalculator) count(repository *git.Repository, remoteName string, localReferenceName plumbing.ReferenceName, upstreamReferenceName plumbing.ReferenceName) (Divergence, error) {
	upstreamReference, upstreamError := repository.Reference(upstreamReferenceName, true)
	if upstreamError != nil {
		message := missingTrackingRefMessageConstant
		if remoteName == localRemoteNameConstant {
			message = missingMergeRefMessageConstant
		}
		return Divergence{}, newRemoteError(RemoteErrorRefNotFound, remoteName, fmt.Errorf("%s %s: %w", message, upstreamReferenceName, upstreamError))
	}

	upstreamCommit, upstreamCommitError := repository.CommitObject(upstreamReference.Hash())
	if upstreamCommitError != nil {
		return Divergence{}, newRemoteError(RemoteErrorHistoryUnavailable, remoteName, upstreamCommitError)
	}

	localReference, localError := repository.Reference(localReferenceName, true)
	if errors.Is(localError, plumbing.ErrReferenceNotFound) {
		behind, behindError := countExclusive(upstreamCommit, map[plumbing.Hash]bool{})
		if behindError != nil {
			return Divergence{}, newRemoteError(RemoteErrorHistoryUnavailable, remoteName, behindError)
		}
		return Divergence{Behind: behind}, nil
	}
	if localError != nil {
		return Divergence{}, newRemoteError(RemoteErrorHistoryUnavailable, remoteName, localError)
	}

	if localReference.Hash() == upstreamReference.Hash() {
		return Divergence{}, nil
	}

	localCommit, localCommitError := repository.CommitObject(localReference.Hash())
	if localCommitError != nil {
		return Divergence{}, newRemoteError(RemoteErrorHistoryUnavailable, remoteName, localCommitError)
	}

	divergence, countError := countDivergence(localCommit, upstreamCommit)
	if countError != nil {
		return Divergence{}, newRemoteError(RemoteErrorHistoryUnavailable, remoteName, countError)
	}
	return divergence, nil
}

// countDivergence computes the symmetric difference of the two histories. The
// common set is every ancestor of every merge base, so criss-cross histories with
// several bases are counted exactly.
func countDivergence(localCommit *object.Commit, upstreamCommit *object.Commit) (Divergence, error) {
	mergeBases, mergeBaseError := localCommit.MergeBase(upstreamCommit)
	if mergeBaseError != nil {
		return Divergence{}, mergeBaseError
	}

	commonHashes := make(map[plumbing.Hash]bool)
	for _, mergeBase := range mergeBases {
		if commonHashes[mergeBase.Hash] {
			continue
		}
		ancestorIterator := object.NewCommitPreorderIter(mergeBase, commonHashes, nil)
		walkError := ancestorIterator.ForEach(func(ancestor *object.Commit) error {
			commonHashes[ancestor.Hash] = true
			return nil
		})
		ancestorIterator.Close()
		if walkError != nil {
			return Divergence{}, walkError
		}
	}

	ahead, aheadError := countExclusive(localCommit, commonHashes)
	if aheadError != nil {
		return Divergence{}, aheadError
	}
	behind, behindError := countExclusive(upstreamCommit, commonHashes)
	if behindError != nil {
		return Divergence{}, behindError
	}
	return Divergence{Ahead: ahead, Behind: behind}, nil
}

func countExclusive(tipCommit *object.Commit, excludedHashes map[plumbing.Hash]bool) (uint, error) {
	if excludedHashes[tipCommit.Hash] {
		return 0, nil
	}
	var exclusiveCount uint
	commitIterator := object.NewCommitPreorderIter(tipCommit, excludedHashes, nil)
	defer commitIterator.Close()
	walkError := commitIterator.ForEach(func(*object.Commit) error {
		exclusiveCount++
		return nil
	})
	if walkError != nil {
		return 0, walkError
	}
	return exclusiveCount, nil
}
