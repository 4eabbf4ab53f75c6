package report

import (
	"sort"

	"github.com/temirov/gfold/internal/status"
)

// SubmoduleView is the serialized form of a submodule.
type SubmoduleView struct {
	Name          string   `json:"name" yaml:"name"`
	Path          string   `json:"path" yaml:"path"`
	Initialized   bool     `json:"initialized" yaml:"initialized"`
	CommitMatches bool     `json:"commit_matches" yaml:"commit_matches"`
	Dirty         []string `json:"dirty,omitempty" yaml:"dirty,omitempty"`
}

// RepositoryView is the serialized form of a status.Record.
type RepositoryView struct {
	Name        string          `json:"name" yaml:"name"`
	Path        string          `json:"path" yaml:"path"`
	Parent      string          `json:"parent" yaml:"parent"`
	Branch      string          `json:"branch" yaml:"branch"`
	Detached    bool            `json:"detached" yaml:"detached"`
	Status      string          `json:"status" yaml:"status"`
	Dirty       []string        `json:"dirty,omitempty" yaml:"dirty,omitempty"`
	Upstream    string          `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	Ahead       *uint           `json:"ahead,omitempty" yaml:"ahead,omitempty"`
	Behind      *uint           `json:"behind,omitempty" yaml:"behind,omitempty"`
	RemoteError string          `json:"remote_error,omitempty" yaml:"remote_error,omitempty"`
	URL         string          `json:"url,omitempty" yaml:"url,omitempty"`
	Email       string          `json:"email,omitempty" yaml:"email,omitempty"`
	Submodules  []SubmoduleView `json:"submodules,omitempty" yaml:"submodules,omitempty"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
}

const upstreamSeparatorConstant = "/"

// NewRepositoryView converts a record.
func NewRepositoryView(record status.Record) RepositoryView {
	view := RepositoryView{
		Name:     record.Name,
		Path:     record.Path,
		Parent:   record.Parent,
		Branch:   record.Branch.DisplayName(),
		Detached: record.Branch.Detached,
		Status:   string(record.Summary()),
		Dirty:    record.Dirty.Names(),
		URL:      record.RemoteURL,
		Email:    record.Email,
	}
	if len(view.Dirty) == 0 {
		view.Dirty = nil
	}
	if record.Upstream != nil {
		view.Upstream = record.Upstream.RemoteName + upstreamSeparatorConstant + record.Upstream.BranchName
	}
	if record.Divergence != nil {
		ahead, behind := record.Divergence.Ahead, record.Divergence.Behind
		view.Ahead = &ahead
		view.Behind = &behind
	}
	if record.RemoteError != nil {
		view.RemoteError = string(record.RemoteError.Kind)
	}
	if record.Error != nil {
		view.Error = record.Error.Error()
	}
	for _, submodule := range record.Submodules {
		submoduleView := SubmoduleView{
			Name:          submodule.Name,
			Path:          submodule.Path,
			Initialized:   submodule.Initialized,
			CommitMatches: submodule.CommitMatches,
		}
		if names := submodule.Dirty.Names(); len(names) > 0 {
			submoduleView.Dirty = names
		}
		view.Submodules = append(view.Submodules, submoduleView)
	}
	return view
}

// sortedRecords orders records by parent directory, then name, then path.
func sortedRecords(records []status.Record) []status.Record {
	sorted := append([]status.Record{}, records...)
	sort.SliceStable(sorted, func(first int, second int) bool {
		if sorted[first].Parent != sorted[second].Parent {
			return sorted[first].Parent < sorted[second].Parent
		}
		if sorted[first].Name != sorted[second].Name {
			return sorted[first].Name < sorted[second].Name
		}
		return sorted[first].Path < sorted[second].Path
	})
	return sorted
}
