// Package status resolves the state of individual Git repositories and fans the
// resolution out across many repositories.
//
// Resolver opens one repository and produces an immutable Record: the current
// branch, its configured upstream, the ahead/behind divergence against that
// upstream, and the dirtiness of the index and working tree. Failures scoped to
// the remote step are carried inside the record as a RemoteError so the branch
// and dirty state are always reported. Dispatcher runs the resolver over a set
// of paths with a bounded worker pool and returns exactly one Outcome per path.
//
// Divergence is computed against the locally cached remote-tracking ref unless
// Options.FetchRemote is set, in which case the single upstream branch is fetched
// first using candidates from the credentials package.
package status
