package status

import (
	"errors"
	"fmt"
)

const (
	notARepositoryTemplateConstant     = "%s: not a git repository: %v"
	filesystemErrorTemplateConstant    = "%s: %s failed: %v"
	remoteErrorTemplateConstant        = "remote %s: %s: %v"
	remoteErrorNoCauseTemplateConstant = "remote %s: %s"
)

var (
	// ErrNotARepository matches NotARepositoryError.
	ErrNotARepository = errors.New("not a git repository")
	// ErrAbandoned marks a path whose resolution was cancelled before it completed.
	ErrAbandoned = errors.New("repository resolution abandoned")
	// ErrInvalidRemote matches RemoteError values of kind RemoteErrorInvalidRemote.
	ErrInvalidRemote = errors.New("invalid remote")
	// ErrUnreachable matches RemoteError values of kind RemoteErrorUnreachable.
	ErrUnreachable = errors.New("remote unreachable")
	// ErrAuthFailed matches RemoteError values of kind RemoteErrorAuthFailed.
	ErrAuthFailed = errors.New("remote authentication failed")
	// ErrRefNotFound matches RemoteError values of kind RemoteErrorRefNotFound.
	ErrRefNotFound = errors.New("remote ref not found")
	// ErrHistoryUnavailable matches RemoteError values of kind RemoteErrorHistoryUnavailable.
	ErrHistoryUnavailable = errors.New("commit history unavailable")
)

// NotARepositoryError reports a path that could not be opened as a Git repository.
type NotARepositoryError struct {
	Path  string
	Cause error
}

func (notARepositoryError *NotARepositoryError) Error() string {
	return fmt.Sprintf(notARepositoryTemplateConstant, notARepositoryError.Path, notARepositoryError.Cause)
}

// Is matches ErrNotARepository.
func (notARepositoryError *NotARepositoryError) Is(target error) bool {
	return target == ErrNotARepository
}

func (notARepositoryError *NotARepositoryError) Unwrap() error {
	return notARepositoryError.Cause
}

// FilesystemError reports an I/O failure while reading repository internals.
type FilesystemError struct {
	Path      string
	Operation string
	Cause     error
}

func (filesystemError *FilesystemError) Error() string {
	return fmt.Sprintf(filesystemErrorTemplateConstant, filesystemError.Path, filesystemError.Operation, filesystemError.Cause)
}

func (filesystemError *FilesystemError) Unwrap() error {
	return filesystemError.Cause
}

// RemoteErrorKind classifies a failure of the divergence step.
type RemoteErrorKind string

// Remote error kinds.
const (
	RemoteErrorInvalidRemote      RemoteErrorKind = RemoteErrorKind("invalid_remote")
	RemoteErrorUnreachable        RemoteErrorKind = RemoteErrorKind("unreachable")
	RemoteErrorAuthFailed         RemoteErrorKind = RemoteErrorKind("auth_failed")
	RemoteErrorRefNotFound        RemoteErrorKind = RemoteErrorKind("ref_not_found")
	RemoteErrorHistoryUnavailable RemoteErrorKind = RemoteErrorKind("history_unavailable")
)

var remoteErrorSentinels = map[RemoteErrorKind]error{
	RemoteErrorInvalidRemote:      ErrInvalidRemote,
	RemoteErrorUnreachable:        ErrUnreachable,
	RemoteErrorAuthFailed:         ErrAuthFailed,
	RemoteErrorRefNotFound:        ErrRefNotFound,
	RemoteErrorHistoryUnavailable: ErrHistoryUnavailable,
}

// RemoteError is the scoped failure of the divergence step. It never aborts the record.
type RemoteError struct {
	Kind   RemoteErrorKind
	Remote string
	Cause  error
}

func newRemoteError(kind RemoteErrorKind, remote string, cause error) *RemoteError {
	return &RemoteError{Kind: kind, Remote: remote, Cause: cause}
}

func (remoteError *RemoteError) Error() string {
	if remoteError.Cause == nil {
		return fmt.Sprintf(remoteErrorNoCauseTemplateConstant, remoteError.Remote, remoteError.Kind)
	}
	return fmt.Sprintf(remoteErrorTemplateConstant, remoteError.Remote, remoteError.Kind, remoteError.Cause)
}

// Is matches the sentinel for the error kind.
func (remoteError *RemoteError) Is(target error) bool {
	return remoteErrorSentinels[remoteError.Kind] == target
}

func (remoteError *RemoteError) Unwrap() error {
	return remoteError.Cause
}
