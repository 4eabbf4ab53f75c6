package pathutils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const tildeSymbolConstant = "~"

// HomeDirectoryProvider resolves the current user's home directory path.
type HomeDirectoryProvider func() (string, error)

// HomeExpander replaces a leading "~" with the user's home directory. The
// directory is looked up once; a failed lookup leaves paths unchanged.
type HomeExpander struct {
	homeDirectoryProvider HomeDirectoryProvider
	homeDirectory         string
	lookupGuard           sync.Once
}

// NewHomeExpander constructs a HomeExpander using the operating system lookup.
func NewHomeExpander() *HomeExpander {
	return NewHomeExpanderWithProvider(os.UserHomeDir)
}

// NewHomeExpanderWithProvider constructs a HomeExpander with a custom provider.
func NewHomeExpanderWithProvider(provider HomeDirectoryProvider) *HomeExpander {
	if provider == nil {
		provider = os.UserHomeDir
	}
	return &HomeExpander{homeDirectoryProvider: provider}
}

// HomeDirectory returns the resolved home directory or an empty string.
func (expander *HomeExpander) HomeDirectory() string {
	if expander == nil {
		return ""
	}
	expander.lookupGuard.Do(func() {
		resolvedDirectory, lookupError := expander.homeDirectoryProvider()
		if lookupError == nil {
			expander.homeDirectory = resolvedDirectory
		}
	})
	return expander.homeDirectory
}

// Expand resolves "~", "~/..." and, on Windows, "~\..." to the home directory.
// "~user" forms are returned unchanged.
func (expander *HomeExpander) Expand(candidatePath string) string {
	if !strings.HasPrefix(candidatePath, tildeSymbolConstant) {
		return candidatePath
	}

	remainder := candidatePath[len(tildeSymbolConstant):]
	if len(remainder) > 0 && remainder[0] != '/' && remainder[0] != os.PathSeparator {
		return candidatePath
	}

	homeDirectory := expander.HomeDirectory()
	if len(homeDirectory) == 0 {
		return candidatePath
	}
	if len(remainder) == 0 {
		return homeDirectory
	}
	return filepath.Join(homeDirectory, remainder[1:])
}
