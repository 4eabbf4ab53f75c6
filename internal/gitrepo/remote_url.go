package gitrepo

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	schemeSeparatorConstant             = "://"
	sshUserDelimiterConstant            = "@"
	sshPathDelimiterConstant            = ":"
	pathSeparatorConstant               = "/"
	currentDirectoryPrefixConstant      = "."
	remoteURLParseErrorTemplateConstant = "%s: %s"
	requiredValueMessageConstant        = "remote url is required"
	invalidRemoteURLMessageConstant     = "invalid remote url"
	missingHostMessageConstant          = "remote url has no host"
	invalidPortMessageConstant          = "remote url has an invalid port"
	unknownProtocolMessageConstant      = "unsupported remote protocol"
	endpointStringTemplateConstant      = "%s://%s"
)

// RemoteProtocol enumerates the transports a remote URL can address.
type RemoteProtocol string

// Supported remote protocols.
const (
	RemoteProtocolSSH   RemoteProtocol = RemoteProtocol("ssh")
	RemoteProtocolHTTPS RemoteProtocol = RemoteProtocol("https")
	RemoteProtocolHTTP  RemoteProtocol = RemoteProtocol("http")
	RemoteProtocolGit   RemoteProtocol = RemoteProtocol("git")
	RemoteProtocolFile  RemoteProtocol = RemoteProtocol("file")
)

var schemeProtocolMapping = map[string]RemoteProtocol{
	"ssh":     RemoteProtocolSSH,
	"git+ssh": RemoteProtocolSSH,
	"ssh+git": RemoteProtocolSSH,
	"https":   RemoteProtocolHTTPS,
	"http":    RemoteProtocolHTTP,
	"git":     RemoteProtocolGit,
	"file":    RemoteProtocolFile,
}

// RemoteEndpoint is the structured form of a git remote URL.
type RemoteEndpoint struct {
	Raw      string
	Protocol RemoteProtocol
	User     string
	Host     string
	Port     int
	Path     string
}

// IsSSH reports whether the endpoint is reached over SSH.
func (endpoint RemoteEndpoint) IsSSH() bool {
	return endpoint.Protocol == RemoteProtocolSSH
}

// IsHTTP reports whether the endpoint is reached over HTTP or HTTPS.
func (endpoint RemoteEndpoint) IsHTTP() bool {
	return endpoint.Protocol == RemoteProtocolHTTPS || endpoint.Protocol == RemoteProtocolHTTP
}

// String returns a normalized representation used in log fields.
func (endpoint RemoteEndpoint) String() string {
	if endpoint.Protocol == RemoteProtocolFile {
		return fmt.Sprintf(endpointStringTemplateConstant, endpoint.Protocol, endpoint.Path)
	}
	hostPort := endpoint.Host
	if endpoint.Port > 0 {
		hostPort = hostPort + sshPathDelimiterConstant + strconv.Itoa(endpoint.Port)
	}
	return fmt.Sprintf(endpointStringTemplateConstant, endpoint.Protocol, hostPort+pathSeparatorConstant+strings.TrimPrefix(endpoint.Path, pathSeparatorConstant))
}

// RemoteURLParseError indicates a remote string could not be parsed.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// ParseRemoteURL converts a textual remote URL into an endpoint. It accepts scheme URLs
// (ssh, https, http, git, file), scp-like addresses such as git@host:owner/repo.git,
// and local filesystem paths.
func ParseRemoteURL(remote string) (RemoteEndpoint, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return RemoteEndpoint{}, RemoteURLParseError{Input: remote, Message: requiredValueMessageConstant}
	}

	if strings.Contains(trimmedRemote, schemeSeparatorConstant) {
		return parseSchemeRemote(trimmedRemote)
	}
	if scpEndpoint, isSCPLike := parseSCPLikeRemote(trimmedRemote); isSCPLike {
		return scpEndpoint, nil
	}
	if isLocalPath(trimmedRemote) {
		return RemoteEndpoint{Raw: trimmedRemote, Protocol: RemoteProtocolFile, Path: trimmedRemote}, nil
	}

	return RemoteEndpoint{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
}

func parseSchemeRemote(remote string) (RemoteEndpoint, error) {
	parsedURL, parseError := url.Parse(remote)
	if parseError != nil {
		return RemoteEndpoint{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}

	protocol, supported := schemeProtocolMapping[strings.ToLower(parsedURL.Scheme)]
	if !supported {
		return RemoteEndpoint{}, RemoteURLParseError{Input: remote, Message: unknownProtocolMessageConstant}
	}

	endpoint := RemoteEndpoint{
		Raw:      remote,
		Protocol: protocol,
		Host:     parsedURL.Hostname(),
		Path:     parsedURL.Path,
	}
	if parsedURL.User != nil {
		endpoint.User = parsedURL.User.Username()
	}

	if protocol == RemoteProtocolFile {
		if len(endpoint.Path) == 0 {
			return RemoteEndpoint{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
		}
		return endpoint, nil
	}

	if len(endpoint.Host) == 0 {
		return RemoteEndpoint{}, RemoteURLParseError{Input: remote, Message: missingHostMessageConstant}
	}

	if portValue := parsedURL.Port(); len(portValue) > 0 {
		port, portError := strconv.Atoi(portValue)
		if portError != nil || port <= 0 {
			return RemoteEndpoint{}, RemoteURLParseError{Input: remote, Message: invalidPortMessageConstant}
		}
		endpoint.Port = port
	}

	return endpoint, nil
}

// parseSCPLikeRemote recognizes [user@]host:path. A colon preceded by a slash, or a single
// drive letter on Windows, marks a local path instead.
func parseSCPLikeRemote(remote string) (RemoteEndpoint, bool) {
	colonIndex := strings.Index(remote, sshPathDelimiterConstant)
	if colonIndex <= 0 {
		return RemoteEndpoint{}, false
	}

	hostPart := remote[:colonIndex]
	pathPart := remote[colonIndex+1:]
	if strings.Contains(hostPart, pathSeparatorConstant) || len(pathPart) == 0 {
		return RemoteEndpoint{}, false
	}
	if len(hostPart) == 1 && filepath.VolumeName(remote) != "" {
		return RemoteEndpoint{}, false
	}

	endpoint := RemoteEndpoint{Raw: remote, Protocol: RemoteProtocolSSH, Path: pathPart}
	if userIndex := strings.LastIndex(hostPart, sshUserDelimiterConstant); userIndex != -1 {
		endpoint.User = hostPart[:userIndex]
		hostPart = hostPart[userIndex+1:]
	}
	if len(hostPart) == 0 {
		return RemoteEndpoint{}, false
	}
	endpoint.Host = hostPart
	return endpoint, true
}

func isLocalPath(remote string) bool {
	if filepath.IsAbs(remote) {
		return true
	}
	return strings.HasPrefix(remote, currentDirectoryPrefixConstant) || strings.Contains(remote, pathSeparatorConstant)
}
