package credentials

import (
	"github.com/go-git/go-git/v6/plumbing/transport"
)

// Kind enumerates authentication strategies.
type Kind string

// Supported candidate kinds.
const (
	KindSSHAgent              Kind = Kind("ssh_agent")
	KindSSHKey                Kind = Kind("ssh_key")
	KindHTTPSToken            Kind = Kind("https_token")
	KindHTTPSBasic            Kind = Kind("https_basic")
	KindHTTPSCredentialHelper Kind = Kind("https_credential_helper")
	KindAnonymous             Kind = Kind("anonymous")
)

// Candidate is one authentication attempt together with the material it needs.
type Candidate struct {
	Kind        Kind
	Description string
	method      transport.AuthMethod
}

// AuthMethod returns the go-git authentication method for the attempt. Anonymous
// candidates return nil, which go-git treats as no authentication.
func (candidate Candidate) AuthMethod() transport.AuthMethod {
	return candidate.method
}

// IsAnonymous reports whether the candidate carries no credentials.
func (candidate Candidate) IsAnonymous() bool {
	return candidate.Kind == KindAnonymous
}

func anonymousCandidate() Candidate {
	return Candidate{Kind: KindAnonymous, Description: anonymousDescriptionConstant}
}
