package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logLevelDebugStringConstant          = "debug"
	logLevelInfoStringConstant           = "info"
	logLevelWarnStringConstant           = "warn"
	logLevelErrorStringConstant          = "error"
	logFormatStructuredStringConstant    = "structured"
	logFormatConsoleStringConstant       = "console"
	unsupportedLogLevelTemplateConstant  = "%w: %s"
	unsupportedLogFormatTemplateConstant = "%w: %s"
	loggerTimeFieldConstant              = "time"
)

// ErrUnsupportedLogLevel indicates a log level outside LogLevel's values.
var ErrUnsupportedLogLevel = errors.New("unsupported log level")

// ErrUnsupportedLogFormat indicates a log format outside LogFormat's values.
var ErrUnsupportedLogFormat = errors.New("unsupported log format")

// LogLevel enumerates supported logging granularities.
type LogLevel string

// Exported log level constants for reuse across packages.
const (
	LogLevelDebug LogLevel = LogLevel(logLevelDebugStringConstant)
	LogLevelInfo  LogLevel = LogLevel(logLevelInfoStringConstant)
	LogLevelWarn  LogLevel = LogLevel(logLevelWarnStringConstant)
	LogLevelError LogLevel = LogLevel(logLevelErrorStringConstant)
)

// LogFormat enumerates supported logger output encodings.
type LogFormat string

// Exported log format constants for reuse across packages.
const (
	LogFormatStructured LogFormat = LogFormat(logFormatStructuredStringConstant)
	LogFormatConsole    LogFormat = LogFormat(logFormatConsoleStringConstant)
)

var logLevelMapping = map[LogLevel]zapcore.Level{
	LogLevelDebug: zapcore.DebugLevel,
	LogLevelInfo:  zapcore.InfoLevel,
	LogLevelWarn:  zapcore.WarnLevel,
	LogLevelError: zapcore.ErrorLevel,
}

// LoggerFactory builds zap.Logger instances writing diagnostics to a single sink.
// The report itself goes to stdout, so logs default to stderr.
type LoggerFactory struct {
	sink io.Writer
}

// NewLoggerFactory constructs a factory that writes to stderr.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{sink: os.Stderr}
}

// NewLoggerFactoryWithSink constructs a factory that writes to the provided writer.
func NewLoggerFactoryWithSink(sink io.Writer) *LoggerFactory {
	if sink == nil {
		sink = os.Stderr
	}
	return &LoggerFactory{sink: sink}
}

// ParseLogLevel normalizes a textual log level.
func ParseLogLevel(value string) (LogLevel, error) {
	candidate := LogLevel(strings.ToLower(strings.TrimSpace(value)))
	if _, supported := logLevelMapping[candidate]; !supported {
		return "", fmt.Errorf(unsupportedLogLevelTemplateConstant, ErrUnsupportedLogLevel, value)
	}
	return candidate, nil
}

// ParseLogFormat normalizes a textual log format.
func ParseLogFormat(value string) (LogFormat, error) {
	candidate := LogFormat(strings.ToLower(strings.TrimSpace(value)))
	switch candidate {
	case LogFormatStructured, LogFormatConsole:
		return candidate, nil
	default:
		return "", fmt.Errorf(unsupportedLogFormatTemplateConstant, ErrUnsupportedLogFormat, value)
	}
}

// CreateLogger produces a zap.Logger honoring the requested log level and format.
func (factory *LoggerFactory) CreateLogger(requestedLogLevel LogLevel, requestedLogFormat LogFormat) (*zap.Logger, error) {
	zapLogLevel, levelExists := logLevelMapping[requestedLogLevel]
	if !levelExists {
		return nil, fmt.Errorf(unsupportedLogLevelTemplateConstant, ErrUnsupportedLogLevel, requestedLogLevel)
	}

	encoderConfiguration := zap.NewProductionEncoderConfig()
	encoderConfiguration.TimeKey = loggerTimeFieldConstant
	encoderConfiguration.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch requestedLogFormat {
	case LogFormatStructured:
		encoder = zapcore.NewJSONEncoder(encoderConfiguration)
	case LogFormatConsole:
		encoderConfiguration.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfiguration)
	default:
		return nil, fmt.Errorf(unsupportedLogFormatTemplateConstant, ErrUnsupportedLogFormat, requestedLogFormat)
	}

	sink := factory.sink
	if sink == nil {
		sink = os.Stderr
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(sink)), zap.NewAtomicLevelAt(zapLogLevel))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
