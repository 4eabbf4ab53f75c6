// Package cli builds the gfold command: it layers configuration, creates the
// logger, discovers repositories beneath the requested roots, resolves their
// status concurrently, and renders the report.
package cli
