package cli

import (
	"os"
	"time"

	"github.com/temirov/gfold/internal/credentials"
	"github.com/temirov/gfold/internal/status"
	"github.com/temirov/gfold/internal/utils"
	pathutils "github.com/temirov/gfold/internal/utils/path"
)

const (
	commonConfigurationKeyConstant            = "common"
	displayConfigurationKeyConstant           = "display"
	statusConfigurationKeyConstant            = "status"
	credentialsSSHConfigurationKeyConstant    = "credentials.ssh"
	credentialsHTTPSConfigurationKeyConstant  = "credentials.https"
	commonLogLevelConfigKeyConstant           = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant          = commonConfigurationKeyConstant + ".log_format"
	displayModeConfigKeyConstant              = displayConfigurationKeyConstant + ".mode"
	displayColorConfigKeyConstant             = displayConfigurationKeyConstant + ".color"
	statusRootsConfigKeyConstant              = statusConfigurationKeyConstant + ".roots"
	statusFetchRemoteConfigKeyConstant        = statusConfigurationKeyConstant + ".fetch_remote"
	statusWorkersConfigKeyConstant            = statusConfigurationKeyConstant + ".workers"
	statusRemoteTimeoutConfigKeyConstant      = statusConfigurationKeyConstant + ".remote_timeout"
	statusIncludeEmailConfigKeyConstant       = statusConfigurationKeyConstant + ".include_email"
	statusIncludeSubmodulesConfigKeyConstant  = statusConfigurationKeyConstant + ".include_submodules"
	credentialsSSHConfigPathConfigKeyConstant = credentialsSSHConfigurationKeyConstant + ".config_path"
	credentialsHelperConfigKeyConstant        = credentialsHTTPSConfigurationKeyConstant + ".use_credential_helper"
	defaultRootConstant                       = "."
	defaultDisplayModeConstant                = "standard"
	defaultColorModeConstant                  = "auto"
	redactedValueConstant                     = "<redacted>"
)

// ApplicationConfiguration describes the persisted configuration for the CLI.
type ApplicationConfiguration struct {
	Common      CommonConfiguration      `mapstructure:"common" yaml:"common"`
	Display     DisplayConfiguration     `mapstructure:"display" yaml:"display"`
	Status      StatusConfiguration      `mapstructure:"status" yaml:"status"`
	Credentials CredentialsConfiguration `mapstructure:"credentials" yaml:"credentials"`
}

// CommonConfiguration stores logging configuration.
type CommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// DisplayConfiguration selects the report layout and coloring.
type DisplayConfiguration struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Color string `mapstructure:"color" yaml:"color"`
}

// StatusConfiguration controls discovery and resolution.
type StatusConfiguration struct {
	Roots             []string      `mapstructure:"roots" yaml:"roots"`
	FetchRemote       bool          `mapstructure:"fetch_remote" yaml:"fetch_remote"`
	Workers           int           `mapstructure:"workers" yaml:"workers"`
	RemoteTimeout     time.Duration `mapstructure:"remote_timeout" yaml:"remote_timeout"`
	IncludeEmail      bool          `mapstructure:"include_email" yaml:"include_email"`
	IncludeSubmodules bool          `mapstructure:"include_submodules" yaml:"include_submodules"`
}

// CredentialsConfiguration groups remote authentication settings.
type CredentialsConfiguration struct {
	SSH   SSHCredentialsConfiguration   `mapstructure:"ssh" yaml:"ssh"`
	HTTPS HTTPSCredentialsConfiguration `mapstructure:"https" yaml:"https"`
}

// SSHCredentialsConfiguration configures SSH key discovery.
type SSHCredentialsConfiguration struct {
	ConfigPath    string   `mapstructure:"config_path" yaml:"config_path"`
	KeyPassphrase string   `mapstructure:"key_passphrase" yaml:"key_passphrase"`
	IdentityFiles []string `mapstructure:"identity_files" yaml:"identity_files"`
}

// HTTPSCredentialsConfiguration configures HTTPS authentication.
type HTTPSCredentialsConfiguration struct {
	Token               string `mapstructure:"token" yaml:"token"`
	Username            string `mapstructure:"username" yaml:"username"`
	Password            string `mapstructure:"password" yaml:"password"`
	UseCredentialHelper bool   `mapstructure:"use_credential_helper" yaml:"use_credential_helper"`
}

func defaultConfigurationValues() map[string]any {
	return map[string]any{
		commonLogLevelConfigKeyConstant:           string(utils.LogLevelWarn),
		commonLogFormatConfigKeyConstant:          string(utils.LogFormatConsole),
		displayModeConfigKeyConstant:              defaultDisplayModeConstant,
		displayColorConfigKeyConstant:             defaultColorModeConstant,
		statusRootsConfigKeyConstant:              []string{defaultRootConstant},
		statusFetchRemoteConfigKeyConstant:        false,
		statusWorkersConfigKeyConstant:            0,
		statusRemoteTimeoutConfigKeyConstant:      status.DefaultRemoteTimeout,
		statusIncludeEmailConfigKeyConstant:       false,
		statusIncludeSubmodulesConfigKeyConstant:  false,
		credentialsSSHConfigPathConfigKeyConstant: "",
		credentialsHelperConfigKeyConstant:        true,
	}
}

func (configuration ApplicationConfiguration) statusOptions() status.Options {
	return status.Options{
		FetchRemote:       configuration.Status.FetchRemote,
		RemoteTimeout:     configuration.Status.RemoteTimeout,
		Workers:           configuration.Status.Workers,
		IncludeEmail:      configuration.Status.IncludeEmail,
		IncludeSubmodules: configuration.Status.IncludeSubmodules,
	}
}

func (configuration ApplicationConfiguration) credentialOptions(homeExpander *pathutils.HomeExpander) credentials.Options {
	identityFiles := make([]string, 0, len(configuration.Credentials.SSH.IdentityFiles))
	for _, identityFile := range configuration.Credentials.SSH.IdentityFiles {
		identityFiles = append(identityFiles, homeExpander.Expand(identityFile))
	}

	return credentials.Options{
		SSHConfigPath:       homeExpander.Expand(configuration.Credentials.SSH.ConfigPath),
		KeyPassphrase:       configuration.Credentials.SSH.KeyPassphrase,
		IdentityFiles:       identityFiles,
		HomeDirectory:       homeExpander.HomeDirectory(),
		Token:               configuration.Credentials.HTTPS.Token,
		Username:            configuration.Credentials.HTTPS.Username,
		Password:            configuration.Credentials.HTTPS.Password,
		UseCredentialHelper: configuration.Credentials.HTTPS.UseCredentialHelper,
		ContactTimeout:      configuration.Status.RemoteTimeout,
		LookupEnvironment:   os.LookupEnv,
	}
}

// redacted returns a copy safe to print.
func (configuration ApplicationConfiguration) redacted() ApplicationConfiguration {
	printable := configuration
	printable.Credentials.SSH.KeyPassphrase = redactSecret(printable.Credentials.SSH.KeyPassphrase)
	printable.Credentials.HTTPS.Token = redactSecret(printable.Credentials.HTTPS.Token)
	printable.Credentials.HTTPS.Password = redactSecret(printable.Credentials.HTTPS.Password)
	return printable
}

func redactSecret(value string) string {
	if len(value) == 0 {
		return value
	}
	return redactedValueConstant
}
