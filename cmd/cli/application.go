package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/temirov/gfold/internal/credentials"
	"github.com/temirov/gfold/internal/report"
	"github.com/temirov/gfold/internal/repos/dependencies"
	"github.com/temirov/gfold/internal/status"
	"github.com/temirov/gfold/internal/utils"
	pathutils "github.com/temirov/gfold/internal/utils/path"
)

const (
	applicationNameConstant                 = "gfold"
	applicationUseConstant                  = applicationNameConstant + " [paths...]"
	applicationShortDescriptionConstant     = "Report the status of every Git repository beneath the given directories"
	applicationLongDescriptionConstant      = "gfold discovers Git repositories beneath one or more directories and reports each repository's branch, divergence from its upstream, and working-tree state."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	ignoreConfigFileFlagNameConstant        = "ignore-config-file"
	ignoreConfigFileFlagUsageConstant       = "Skip configuration files and use only embedded defaults, environment, and flags."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level (debug, info, warn, error)."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	displayModeFlagNameConstant             = "display-mode"
	displayModeFlagShorthandConstant        = "d"
	displayModeFlagUsageConstant            = "Report layout: standard, classic, json, or yaml."
	colorModeFlagNameConstant               = "color-mode"
	colorModeFlagShorthandConstant          = "c"
	colorModeFlagUsageConstant              = "Colorize text reports: always, auto, or never."
	fetchFlagNameConstant                   = "fetch"
	fetchFlagUsageConstant                  = "Fetch each upstream branch before computing divergence (offline counts reflect the last fetch)."
	workersFlagNameConstant                 = "workers"
	workersFlagUsageConstant                = "Maximum repositories resolved concurrently (0 selects the CPU count)."
	timeoutFlagNameConstant                 = "timeout"
	timeoutFlagUsageConstant                = "Time allowed for contacting one repository's remote."
	includeEmailFlagNameConstant            = "include-email"
	includeEmailFlagUsageConstant           = "Report the user.email configured for each repository."
	includeSubmodulesFlagNameConstant       = "include-submodules"
	includeSubmodulesFlagUsageConstant      = "Report submodule state for each repository."
	dryRunFlagNameConstant                  = "dry-run"
	dryRunFlagUsageConstant                 = "Print the merged configuration as YAML and exit."
	environmentPrefixConstant               = "GFOLD"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	xdgConfigHomeEnvironmentConstant        = "XDG_CONFIG_HOME"
	userConfigurationDirectoryConstant      = ".config"
	currentDirectorySearchPathConstant      = "."
	configurationInitializedMessageConstant = "configuration initialized"
	repositoriesDiscoveredMessageConstant   = "repositories discovered"
	notARepositoryWarningMessageConstant    = "skipping directory that is not a repository"
	resolutionFailedWarningMessageConstant  = "repository status unavailable"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	rootsFieldConstant                      = "roots"
	repositoryCountFieldConstant            = "repository_count"
	repositoryPathFieldConstant             = "repository_path"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	discoveryErrorTemplateConstant          = "unable to discover repositories: %w"
	dryRunErrorTemplateConstant             = "unable to print configuration: %w"
	abandonedErrorTemplateConstant          = "%d repositories not resolved: %w"
	dryRunIndentationConstant               = 2
)

// ApplicationDependencies replaces collaborators of the root command. Zero values select the defaults.
type ApplicationDependencies struct {
	Discoverer       dependencies.RepositoryDiscoverer
	GitExecutor      credentials.GitExecutor
	CredentialSource status.CredentialSource
	Resolver         status.RepositoryResolver
	StandardOutput   io.Writer
	StandardError    io.Writer
	// Arguments replaces os.Args[1:] when non-nil.
	Arguments []string
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand           *cobra.Command
	dependencies          ApplicationDependencies
	configurationLoader   *utils.ConfigurationLoader
	homeExpander          *pathutils.HomeExpander
	logger                *zap.Logger
	configuration         ApplicationConfiguration
	configurationMetadata utils.LoadedConfiguration
	flagValues            applicationFlagValues
}

type applicationFlagValues struct {
	configurationFilePath    string
	ignoreConfigurationFiles bool
	logLevel                 string
	logFormat                string
	displayMode              string
	colorMode                string
	fetchRemote              bool
	workers                  int
	remoteTimeout            time.Duration
	includeEmail             bool
	includeSubmodules        bool
	dryRun                   bool
}

// NewApplication assembles the CLI with default collaborators.
func NewApplication() *Application {
	return NewApplicationWithDependencies(ApplicationDependencies{})
}

// NewApplicationWithDependencies assembles the CLI around the provided collaborators.
func NewApplicationWithDependencies(applicationDependencies ApplicationDependencies) *Application {
	if applicationDependencies.StandardOutput == nil {
		applicationDependencies.StandardOutput = os.Stdout
	}
	if applicationDependencies.StandardError == nil {
		applicationDependencies.StandardError = os.Stderr
	}

	homeExpander := pathutils.NewHomeExpander()
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		configurationSearchPaths(homeExpander),
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	application := &Application{
		dependencies:        applicationDependencies,
		configurationLoader: configurationLoader,
		homeExpander:        homeExpander,
		logger:              zap.NewNop(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationUseConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}
	cobraCommand.SetOut(applicationDependencies.StandardOutput)
	cobraCommand.SetErr(applicationDependencies.StandardError)
	if applicationDependencies.Arguments != nil {
		cobraCommand.SetArgs(applicationDependencies.Arguments)
	}

	flagValues := &application.flagValues
	persistentFlags := cobraCommand.PersistentFlags()
	persistentFlags.StringVar(&flagValues.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	persistentFlags.BoolVar(&flagValues.ignoreConfigurationFiles, ignoreConfigFileFlagNameConstant, false, ignoreConfigFileFlagUsageConstant)
	persistentFlags.StringVar(&flagValues.logLevel, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	persistentFlags.StringVar(&flagValues.logFormat, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	commandFlags := cobraCommand.Flags()
	commandFlags.StringVarP(&flagValues.displayMode, displayModeFlagNameConstant, displayModeFlagShorthandConstant, defaultDisplayModeConstant, displayModeFlagUsageConstant)
	commandFlags.StringVarP(&flagValues.colorMode, colorModeFlagNameConstant, colorModeFlagShorthandConstant, defaultColorModeConstant, colorModeFlagUsageConstant)
	commandFlags.BoolVar(&flagValues.fetchRemote, fetchFlagNameConstant, false, fetchFlagUsageConstant)
	commandFlags.IntVar(&flagValues.workers, workersFlagNameConstant, 0, workersFlagUsageConstant)
	commandFlags.DurationVar(&flagValues.remoteTimeout, timeoutFlagNameConstant, status.DefaultRemoteTimeout, timeoutFlagUsageConstant)
	commandFlags.BoolVar(&flagValues.includeEmail, includeEmailFlagNameConstant, false, includeEmailFlagUsageConstant)
	commandFlags.BoolVar(&flagValues.includeSubmodules, includeSubmodulesFlagNameConstant, false, includeSubmodulesFlagUsageConstant)
	commandFlags.BoolVar(&flagValues.dryRun, dryRunFlagNameConstant, false, dryRunFlagUsageConstant)

	application.rootCommand = cobraCommand
	return application
}

// Execute runs the root command until completion or an interrupt signal.
func (application *Application) Execute() error {
	signalContext, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	return application.ExecuteContext(signalContext)
}

// ExecuteContext runs the root command with the provided context and flushes the logger afterwards.
func (application *Application) ExecuteContext(executionContext context.Context) error {
	executionError := application.rootCommand.ExecuteContext(executionContext)
	if syncError := application.flushLogger(); syncError != nil && executionError == nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command.
func Execute() error {
	return NewApplication().Execute()
}

func configurationSearchPaths(homeExpander *pathutils.HomeExpander) []string {
	searchPaths := make([]string, 0, 3)
	if xdgConfigHome := os.Getenv(xdgConfigHomeEnvironmentConstant); len(xdgConfigHome) > 0 {
		searchPaths = append(searchPaths, filepath.Join(xdgConfigHome, applicationNameConstant))
	}
	if homeDirectory := homeExpander.HomeDirectory(); len(homeDirectory) > 0 {
		searchPaths = append(searchPaths, filepath.Join(homeDirectory, userConfigurationDirectoryConstant, applicationNameConstant))
	}
	return append(searchPaths, currentDirectorySearchPathConstant)
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	loadRequest := utils.LoadRequest{
		ConfigurationFilePath:    application.homeExpander.Expand(application.flagValues.configurationFilePath),
		IgnoreConfigurationFiles: application.flagValues.ignoreConfigurationFiles,
		DefaultValues:            defaultConfigurationValues(),
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(loadRequest, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}
	application.configurationMetadata = loadedConfiguration
	application.applyChangedFlags(command.Flags())

	logLevel, logLevelError := utils.ParseLogLevel(application.configuration.Common.LogLevel)
	if logLevelError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, logLevelError)
	}
	logFormat, logFormatError := utils.ParseLogFormat(application.configuration.Common.LogFormat)
	if logFormatError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, logFormatError)
	}

	logger, loggerCreationError := utils.NewLoggerFactoryWithSink(application.dependencies.StandardError).CreateLogger(logLevel, logFormat)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}
	application.logger = logger

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)
	return nil
}

// applyChangedFlags lets explicitly set flags override file and environment values.
func (application *Application) applyChangedFlags(flagSet *pflag.FlagSet) {
	flagValues := application.flagValues
	configuration := &application.configuration

	if flagSet.Changed(logLevelFlagNameConstant) {
		configuration.Common.LogLevel = flagValues.logLevel
	}
	if flagSet.Changed(logFormatFlagNameConstant) {
		configuration.Common.LogFormat = flagValues.logFormat
	}
	if flagSet.Changed(displayModeFlagNameConstant) {
		configuration.Display.Mode = flagValues.displayMode
	}
	if flagSet.Changed(colorModeFlagNameConstant) {
		configuration.Display.Color = flagValues.colorMode
	}
	if flagSet.Changed(fetchFlagNameConstant) {
		configuration.Status.FetchRemote = flagValues.fetchRemote
	}
	if flagSet.Changed(workersFlagNameConstant) {
		configuration.Status.Workers = flagValues.workers
	}
	if flagSet.Changed(timeoutFlagNameConstant) {
		configuration.Status.RemoteTimeout = flagValues.remoteTimeout
	}
	if flagSet.Changed(includeEmailFlagNameConstant) {
		configuration.Status.IncludeEmail = flagValues.includeEmail
	}
	if flagSet.Changed(includeSubmodulesFlagNameConstant) {
		configuration.Status.IncludeSubmodules = flagValues.includeSubmodules
	}
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.flagValues.dryRun {
		return application.printConfiguration(command.OutOrStdout())
	}

	displayMode, displayModeError := report.ParseDisplayMode(application.configuration.Display.Mode)
	if displayModeError != nil {
		return displayModeError
	}
	colorMode, colorModeError := report.ParseColorMode(application.configuration.Display.Color)
	if colorModeError != nil {
		return colorModeError
	}
	renderer, rendererError := report.NewRenderer(command.OutOrStdout(), displayMode, colorMode)
	if rendererError != nil {
		return rendererError
	}

	requestedRoots := arguments
	if len(requestedRoots) == 0 {
		requestedRoots = application.configuration.Status.Roots
	}
	roots := pathutils.NewRootSanitizer(application.homeExpander).Sanitize(requestedRoots)
	if len(roots) == 0 {
		roots = pathutils.NewRootSanitizer(application.homeExpander).Sanitize([]string{defaultRootConstant})
	}

	executionContext := command.Context()
	discoverer := dependencies.ResolveRepositoryDiscoverer(application.dependencies.Discoverer, application.logger)
	repositoryPaths, discoveryError := discoverer.DiscoverRepositories(executionContext, roots)
	if discoveryError != nil {
		return fmt.Errorf(discoveryErrorTemplateConstant, discoveryError)
	}
	application.logger.Debug(repositoriesDiscoveredMessageConstant, zap.Strings(rootsFieldConstant, roots), zap.Int(repositoryCountFieldConstant, len(repositoryPaths)))

	resolver, resolverError := application.repositoryResolver()
	if resolverError != nil {
		return resolverError
	}

	dispatcher := status.NewDispatcher(resolver, application.configuration.Status.Workers, application.logger)
	outcomes := dispatcher.Dispatch(executionContext, repositoryPaths)

	records := make([]status.Record, 0, len(outcomes))
	abandonedCount := 0
	for _, outcome := range outcomes {
		switch {
		case outcome.Err == nil:
			records = append(records, outcome.Record)
		case outcome.Abandoned():
			abandonedCount++
		case outcome.NotARepository():
			application.logger.Warn(notARepositoryWarningMessageConstant, zap.String(repositoryPathFieldConstant, outcome.Path), zap.Error(outcome.Err))
		default:
			application.logger.Warn(resolutionFailedWarningMessageConstant, zap.String(repositoryPathFieldConstant, outcome.Path), zap.Error(outcome.Err))
		}
	}

	if renderError := renderer.Render(records); renderError != nil {
		return renderError
	}
	if abandonedCount > 0 {
		return fmt.Errorf(abandonedErrorTemplateConstant, abandonedCount, status.ErrAbandoned)
	}
	return nil
}

func (application *Application) repositoryResolver() (status.RepositoryResolver, error) {
	if application.dependencies.Resolver != nil {
		return application.dependencies.Resolver, nil
	}

	gitExecutor, executorError := dependencies.ResolveGitExecutor(application.dependencies.GitExecutor, application.logger)
	if executorError != nil {
		return nil, executorError
	}
	credentialSource := dependencies.ResolveCredentialSource(
		application.dependencies.CredentialSource,
		application.configuration.credentialOptions(application.homeExpander),
		gitExecutor,
		application.logger,
	)
	return dependencies.ResolveRepositoryResolver(nil, application.configuration.statusOptions(), credentialSource, application.logger), nil
}

func (application *Application) printConfiguration(output io.Writer) error {
	encoder := yaml.NewEncoder(output)
	encoder.SetIndent(dryRunIndentationConstant)
	if encodeError := encoder.Encode(application.configuration.redacted()); encodeError != nil {
		return fmt.Errorf(dryRunErrorTemplateConstant, encodeError)
	}
	if closeError := encoder.Close(); closeError != nil {
		return fmt.Errorf(dryRunErrorTemplateConstant, closeError)
	}
	return nil
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}
