// Package gitrepo contains helpers for interpreting Git remote configuration.
//
// It exposes ParseRemoteURL, which turns the many textual forms of a remote
// (scheme URLs, scp-like SSH addresses, and local paths) into a RemoteEndpoint
// that the credential resolver and divergence calculator use to pick a transport.
package gitrepo
