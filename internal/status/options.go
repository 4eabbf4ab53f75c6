package status

import (
	"runtime"
	"time"
)

// DefaultRemoteTimeout bounds one repository's remote contact.
const DefaultRemoteTimeout = 5 * time.Second

// Options configures resolution.
type Options struct {
	// FetchRemote fetches the upstream branch before counting; otherwise the cached remote-tracking ref is used.
	FetchRemote bool
	// RemoteTimeout bounds every credential attempt of one fetch together.
	RemoteTimeout time.Duration
	// Workers bounds concurrent resolutions; zero selects runtime.NumCPU.
	Workers           int
	IncludeEmail      bool
	IncludeSubmodules bool
}

func (options Options) sanitize() Options {
	sanitized := options
	if sanitized.RemoteTimeout <= 0 {
		sanitized.RemoteTimeout = DefaultRemoteTimeout
	}
	if sanitized.Workers <= 0 {
		sanitized.Workers = runtime.NumCPU()
	}
	return sanitized
}
