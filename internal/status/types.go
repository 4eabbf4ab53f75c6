package status

import (
	"strings"
)

const (
	detachedBranchNameConstant  = "HEAD"
	dirtyStateSeparatorConstant = ","
)

// BranchInfo names the checked-out branch. Detached marks a HEAD that points
// directly at a commit; its display name is HEAD.
type BranchInfo struct {
	Name     string
	Detached bool
}

// DisplayName returns the branch name or HEAD for a detached checkout.
func (branch BranchInfo) DisplayName() string {
	if branch.Detached {
		return detachedBranchNameConstant
	}
	return branch.Name
}

// UpstreamRef describes the configured upstream of a local branch.
type UpstreamRef struct {
	// RemoteName is branch.<name>.remote; "." when the upstream is a local branch.
	RemoteName string
	// BranchName is the short name of MergeRef.
	BranchName string
	// MergeRef is branch.<name>.merge, for example refs/heads/main.
	MergeRef string
	// TrackingRef is the local ref compared against, for example refs/remotes/origin/main.
	TrackingRef string
	Local       bool
}

// Divergence counts commits unique to each side of a local branch and its upstream.
type Divergence struct {
	Ahead  uint
	Behind uint
}

// InSync reports whether both sides point at the same history.
func (divergence Divergence) InSync() bool {
	return divergence.Ahead == 0 && divergence.Behind == 0
}

// DirtyState is a set of working-tree and index conditions. The zero value is clean.
type DirtyState uint8

// Dirty state flags.
const (
	DirtyStaged DirtyState = 1 << iota
	DirtyUnstaged
	DirtyUntracked
	DirtySubmodule
	DirtyConflicted
	DirtyBare
)

var dirtyStateNames = []struct {
	flag DirtyState
	name string
}{
	{flag: DirtyStaged, name: "staged"},
	{flag: DirtyUnstaged, name: "unstaged"},
	{flag: DirtyUntracked, name: "untracked"},
	{flag: DirtySubmodule, name: "submodule"},
	{flag: DirtyConflicted, name: "conflicted"},
	{flag: DirtyBare, name: "bare"},
}

// Has reports whether every flag in other is set.
func (state DirtyState) Has(other DirtyState) bool {
	return state&other == other
}

// IsClean reports whether no change is present. A bare repository has no work
// tree and is never clean or dirty in the usual sense; IsClean reports false.
func (state DirtyState) IsClean() bool {
	return state == 0
}

// IsDirty reports whether any change flag other than Bare is set.
func (state DirtyState) IsDirty() bool {
	return state&^DirtyBare != 0
}

// Names lists the set flags in a fixed order.
func (state DirtyState) Names() []string {
	names := make([]string, 0, len(dirtyStateNames))
	for _, entry := range dirtyStateNames {
		if state.Has(entry.flag) {
			names = append(names, entry.name)
		}
	}
	return names
}

// String joins the flag names; clean for the zero value.
func (state DirtyState) String() string {
	if state.IsClean() {
		return string(SummaryClean)
	}
	return strings.Join(state.Names(), dirtyStateSeparatorConstant)
}

// SubmoduleRecord summarizes one submodule declared in .gitmodules.
type SubmoduleRecord struct {
	Name        string
	Path        string
	Initialized bool
	// CommitMatches is false when the submodule checkout differs from the gitlink recorded in the index.
	CommitMatches bool
	Dirty         DirtyState
}

// Record is the resolved state of one repository. It is built once and never mutated.
type Record struct {
	Path   string
	Name   string
	Parent string
	Branch BranchInfo
	// Upstream is nil when the branch has no upstream or HEAD is detached.
	Upstream *UpstreamRef
	// Exactly one of Divergence and RemoteError is set when Upstream is set.
	Divergence  *Divergence
	RemoteError *RemoteError
	Dirty       DirtyState
	RemoteURL   string
	Email       string
	Submodules  []SubmoduleRecord
	// Error holds a FilesystemError that made the working-tree state unreadable.
	Error error
}

// Summary enumerates the single-label classification used by renderers.
type Summary string

// Summary labels in precedence order.
const (
	SummaryBare     Summary = Summary("bare")
	SummaryUnclean  Summary = Summary("unclean")
	SummaryUnpushed Summary = Summary("unpushed")
	SummaryBehind   Summary = Summary("behind")
	SummaryClean    Summary = Summary("clean")
	SummaryUnknown  Summary = Summary("unknown")
)

// Summary reduces the record to one label: unknown when the record carries a
// whole-record error, then bare, unclean, unpushed, behind, and clean.
func (record Record) Summary() Summary {
	switch {
	case record.Error != nil:
		return SummaryUnknown
	case record.Dirty.Has(DirtyBare):
		return SummaryBare
	case record.Dirty.IsDirty():
		return SummaryUnclean
	case record.Divergence != nil && record.Divergence.Ahead > 0:
		return SummaryUnpushed
	case record.Divergence != nil && record.Divergence.Behind > 0:
		return SummaryBehind
	default:
		return SummaryClean
	}
}
