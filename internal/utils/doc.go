// Package utils exposes the ambient helpers shared by the CLI.
//
// ConfigurationLoader layers embedded defaults, configuration files, and
// GFOLD_-prefixed environment variables through Viper. LoggerFactory builds
// zap loggers that keep diagnostics on stderr away from the report.
package utils
