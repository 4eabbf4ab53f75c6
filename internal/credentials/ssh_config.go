package credentials

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kevinburke/ssh_config"
	"go.uber.org/zap"

	pathutils "github.com/temirov/gfold/internal/utils/path"
)

const (
	identityFileKeyConstant              = "IdentityFile"
	userKeyConstant                      = "User"
	hostNameKeyConstant                  = "HostName"
	sshDirectoryNameConstant             = ".ssh"
	sshConfigFileNameConstant            = "config"
	noneIdentityValueConstant            = "none"
	homeTokenConstant                    = "%d"
	hostTokenConstant                    = "%h"
	remoteUserTokenConstant              = "%r"
	percentTokenConstant                 = "%%"
	percentLiteralConstant               = "%"
	sshConfigPathFieldConstant           = "ssh_config_path"
	sshConfigUnavailableMessageConstant  = "ssh client configuration unavailable"
	sshConfigLookupFailedMessageConstant = "ssh client configuration lookup failed"
	sshConfigHostFieldConstant           = "ssh_host"
	sshConfigDirectiveFieldConstant      = "ssh_directive"
)

// sshClientConfiguration parses the SSH client configuration once and answers
// per-host lookups from the immutable result.
type sshClientConfiguration struct {
	configurationPath string
	homeExpander      *pathutils.HomeExpander
	logger            *zap.Logger
	loadGuard         sync.Once
	parsed            *ssh_config.Config
}

func newSSHClientConfiguration(configurationPath string, homeDirectory string, logger *zap.Logger) *sshClientConfiguration {
	homeExpander := pathutils.NewHomeExpanderWithProvider(func() (string, error) {
		if len(homeDirectory) == 0 {
			return os.UserHomeDir()
		}
		return homeDirectory, nil
	})
	resolvedPath := homeExpander.Expand(configurationPath)
	if len(resolvedPath) == 0 && len(homeDirectory) > 0 {
		resolvedPath = filepath.Join(homeDirectory, sshDirectoryNameConstant, sshConfigFileNameConstant)
	}
	return &sshClientConfiguration{configurationPath: resolvedPath, homeExpander: homeExpander, logger: logger}
}

func (configuration *sshClientConfiguration) load() *ssh_config.Config {
	configuration.loadGuard.Do(func() {
		if len(configuration.configurationPath) == 0 {
			return
		}
		configurationFile, openError := os.Open(configuration.configurationPath)
		if openError != nil {
			if !errors.Is(openError, fs.ErrNotExist) {
				configuration.logger.Debug(sshConfigUnavailableMessageConstant, zap.String(sshConfigPathFieldConstant, configuration.configurationPath), zap.Error(openError))
			}
			return
		}
		defer configurationFile.Close()

		parsedConfiguration, decodeError := ssh_config.Decode(configurationFile)
		if decodeError != nil {
			configuration.logger.Debug(sshConfigUnavailableMessageConstant, zap.String(sshConfigPathFieldConstant, configuration.configurationPath), zap.Error(decodeError))
			return
		}
		configuration.parsed = parsedConfiguration
	})
	return configuration.parsed
}

// User returns the User directive for the host alias, or an empty string.
func (configuration *sshClientConfiguration) User(host string) string {
	return configuration.lookup(host, userKeyConstant)
}

// HostName returns the HostName directive for the host alias, or the alias itself.
func (configuration *sshClientConfiguration) HostName(host string) string {
	if hostName := configuration.lookup(host, hostNameKeyConstant); len(hostName) > 0 {
		return hostName
	}
	return host
}

// IdentityFiles returns the expanded IdentityFile paths matching the host alias in
// configuration order.
func (configuration *sshClientConfiguration) IdentityFiles(host string, remoteUser string) []string {
	parsedConfiguration := configuration.load()
	if parsedConfiguration == nil {
		return nil
	}
	identityValues, lookupError := parsedConfiguration.GetAll(host, identityFileKeyConstant)
	if lookupError != nil {
		configuration.logger.Debug(sshConfigLookupFailedMessageConstant, zap.String(sshConfigHostFieldConstant, host), zap.String(sshConfigDirectiveFieldConstant, identityFileKeyConstant), zap.Error(lookupError))
		return nil
	}

	hostName := configuration.HostName(host)
	identityFiles := make([]string, 0, len(identityValues))
	for _, identityValue := range identityValues {
		trimmedValue := strings.Trim(strings.TrimSpace(identityValue), `"`)
		if len(trimmedValue) == 0 || strings.EqualFold(trimmedValue, noneIdentityValueConstant) {
			continue
		}
		identityFiles = append(identityFiles, configuration.expandIdentityPath(trimmedValue, hostName, remoteUser))
	}
	return identityFiles
}

func (configuration *sshClientConfiguration) lookup(host string, directive string) string {
	parsedConfiguration := configuration.load()
	if parsedConfiguration == nil {
		return ""
	}
	value, lookupError := parsedConfiguration.Get(host, directive)
	if lookupError != nil {
		configuration.logger.Debug(sshConfigLookupFailedMessageConstant, zap.String(sshConfigHostFieldConstant, host), zap.String(sshConfigDirectiveFieldConstant, directive), zap.Error(lookupError))
		return ""
	}
	return strings.TrimSpace(value)
}

func (configuration *sshClientConfiguration) expandIdentityPath(identityPath string, hostName string, remoteUser string) string {
	homeDirectory := configuration.homeExpander.Expand("~")
	tokenReplacer := strings.NewReplacer(
		percentTokenConstant, percentLiteralConstant,
		homeTokenConstant, homeDirectory,
		hostTokenConstant, hostName,
		remoteUserTokenConstant, remoteUser,
	)
	return configuration.homeExpander.Expand(tokenReplacer.Replace(identityPath))
}
