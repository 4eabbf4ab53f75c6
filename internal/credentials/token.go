package credentials

import (
	"strings"
)

// Environment variable names consulted for an HTTPS token, in preference order.
const (
	EnvGfoldToken     = "GFOLD_TOKEN"
	EnvGitHubCLIToken = "GH_TOKEN"
	EnvGitHubToken    = "GITHUB_TOKEN"
)

var tokenPreference = []string{
	EnvGfoldToken,
	EnvGitHubCLIToken,
	EnvGitHubToken,
}

// EnvironmentLookup mirrors os.LookupEnv.
type EnvironmentLookup func(key string) (string, bool)

// ResolveToken returns the explicit token when set, otherwise the first non-empty
// token observed through the lookup.
func ResolveToken(explicitToken string, lookupEnvironment EnvironmentLookup) (string, bool) {
	if trimmedToken := strings.TrimSpace(explicitToken); len(trimmedToken) > 0 {
		return trimmedToken, true
	}
	if lookupEnvironment == nil {
		return "", false
	}
	for _, environmentKey := range tokenPreference {
		environmentValue, exists := lookupEnvironment(environmentKey)
		if !exists {
			continue
		}
		if trimmedValue := strings.TrimSpace(environmentValue); len(trimmedValue) > 0 {
			return trimmedValue, true
		}
	}
	return "", false
}
