// Package execshell provides structured helpers for invoking external tools.
//
// gfold itself never shells out to read repository state; the only external
// call is the optional git credential helper lookup used for HTTPS remotes.
// ShellExecutor wraps an injectable CommandRunner with zap logging so that call
// stays observable and testable.
package execshell
