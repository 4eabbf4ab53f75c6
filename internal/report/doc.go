// Package report renders resolved repository records for people and for tools.
//
// The standard and classic modes print colored text through lipgloss; json and
// yaml emit a stable document built from RepositoryView values.
package report
