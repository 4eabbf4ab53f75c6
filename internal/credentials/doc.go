// Package credentials turns a remote endpoint into an ordered, lazily evaluated
// sequence of authentication candidates.
//
// SSH endpoints try the running SSH agent, then identity files configured for the
// host in the SSH client configuration, then the conventional default key files.
// HTTP endpoints try an explicit or environment token, configured basic
// credentials, the git credential helper, and finally anonymous access. Every
// other transport gets a single anonymous candidate.
package credentials
