package utils

import (
	"io"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CustomLogger is a logger type that embeds zap.Logger to provide logging functionalities with additional features.
type CustomLogger struct {
	zap.Logger // Embedding Logger (composition)
}

// defaultLogger is a pre-configured development logger using the zap library for structured logging.
var defaultLogger, _ = zap.NewDevelopment()

// Logger shared logger for the whole program.
// It is a pointer that is updated in place, so package-level shorthands like `var log = utils.Logger`
// observe the configuration applied later by InitLogger.
var Logger = &CustomLogger{*defaultLogger}

const (
	// LogTrace we need a more detailed log level to make DEBUG logs not so verbose.
	// DEBUG logs work on the level of whole files, and TRACE logs work on the batch and row level.
	LogTrace zapcore.Level = -3
)

// LogOptions selects the logger flavour, mirroring the command line switches.
type LogOptions struct {
	// JSON production JSON-formatted logs
	JSON bool
	// Dev development formatting with time stamps and callers
	Dev bool
	// Debug enables DEBUG level
	Debug bool
	// Trace enables the custom TRACE level (implies Debug)
	Trace bool
}

// Trace logs a message at trace level with optional structured fields.
func (l *CustomLogger) Trace(msg string, fields ...zap.Field) {
	l.Log(LogTrace, msg, fields...)
}

// Sync flushes the logger buffer; errors from syncing stdout/stderr on some platforms are not interesting.
func (l *CustomLogger) Sync() {
	if err := l.Logger.Sync(); err != nil {
		// instead of fatal, we just log the error and continue
		log.Println("Expected error while syncing the logger: ", err)
	}
}

// SetLogger replaces the shared logger, mostly used by tests with zaptest/observer cores.
func SetLogger(z *zap.Logger) {
	*Logger = CustomLogger{*z}
}

// InitLogger initializes the global logger with given options for JSON formatting, development mode, and verbosity.
func InitLogger(opts LogOptions) {
	InitLoggerTo(os.Stdout, opts)
}

// InitLoggerTo is InitLogger with an explicit destination for the console flavour.
func InitLoggerTo(out io.Writer, opts LogOptions) {
	var z *zap.Logger
	switch {
	case opts.JSON:
		if opts.Trace {
			config := zap.Config{
				Level:       zap.NewAtomicLevelAt(LogTrace),
				Development: false,
				Sampling: &zap.SamplingConfig{
					Initial:    100,
					Thereafter: 100,
				},
				Encoding: "json",
				EncoderConfig: zapcore.EncoderConfig{
					TimeKey:        "ts",
					LevelKey:       "level",
					NameKey:        "logger",
					CallerKey:      "caller",
					FunctionKey:    zapcore.OmitKey,
					MessageKey:     "msg",
					StacktraceKey:  "stacktrace",
					LineEnding:     zapcore.DefaultLineEnding,
					EncodeLevel:    TraceLevelEncoder,
					EncodeTime:     zapcore.EpochTimeEncoder,
					EncodeDuration: zapcore.SecondsDurationEncoder,
					EncodeCaller:   zapcore.ShortCallerEncoder,
				},
				OutputPaths:      []string{"stderr"},
				ErrorOutputPaths: []string{"stderr"},
			}
			z, _ = config.Build()
		} else if opts.Debug {
			z, _ = zap.NewProduction(zap.IncreaseLevel(zap.DebugLevel))
		} else {
			z, _ = zap.NewProduction()
		}
	case opts.Dev:
		if opts.Trace {
			config := zap.Config{
				Level:       zap.NewAtomicLevelAt(LogTrace),
				Development: true,
				Encoding:    "console",
				EncoderConfig: zapcore.EncoderConfig{
					// Keys can be anything except the empty string.
					TimeKey:        "T",
					LevelKey:       "L",
					NameKey:        "N",
					CallerKey:      "C",
					FunctionKey:    zapcore.OmitKey,
					MessageKey:     "M",
					StacktraceKey:  "S",
					LineEnding:     zapcore.DefaultLineEnding,
					EncodeLevel:    TraceLevelEncoder,
					EncodeTime:     zapcore.ISO8601TimeEncoder,
					EncodeDuration: zapcore.StringDurationEncoder,
					EncodeCaller:   zapcore.ShortCallerEncoder,
				},
				OutputPaths:      []string{"stderr"},
				ErrorOutputPaths: []string{"stderr"},
			}
			z, _ = config.Build()
		} else if opts.Debug {
			z, _ = zap.NewDevelopment()
		} else {
			z, _ = zap.NewDevelopment(zap.IncreaseLevel(zap.InfoLevel))
		}
	default:
		// Disable timestamps by setting log flags to 0.
		// We use this logger for console error output.
		log.SetFlags(0)
		z = NewConsoleLogger(out, consoleLevel(opts))
	}
	if z == nil {
		// config.Build() only fails on broken output paths
		z = zap.NewNop()
	}
	SetLogger(z)
}

// NewConsoleLogger constructs console-friendly output, not meant for development:
// no timestamps, an icon instead of the level name, no caller.
func NewConsoleLogger(out io.Writer, level zapcore.Level) *zap.Logger {
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:     "message",                     // Set the key for the log message
		LevelKey:       "level",                       // Leave blank to omit the log level
		TimeKey:        "",                            // Leave blank to omit the timestamp
		EncodeLevel:    IconLevelEncoder,              // instead of zapcore.CapitalLevelEncoder
		EncodeDuration: zapcore.StringDurationEncoder, // Format for durations
	})

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.WithCaller(false), zap.AddStacktrace(zapcore.FatalLevel))
}

func consoleLevel(opts LogOptions) zapcore.Level {
	if opts.Trace {
		return LogTrace
	} else if opts.Debug {
		return zap.DebugLevel
	}
	return zap.InfoLevel
}

// IconLevelEncoder serializes a Level to an icon - only for more important levels.
func IconLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == zapcore.ErrorLevel || l == zapcore.FatalLevel { // Check if it's an error message
		enc.AppendString("❌") // Prepend the symbol to the message
	} else if l == zapcore.WarnLevel {
		enc.AppendString("⚠️") // Prepend the symbol to the message
	} else if l == zapcore.InfoLevel {
		enc.AppendString("ℹ️") // Prepend the symbol to the message
	} else if l == LogTrace {
		enc.AppendString("TRACE")
	}
}

// TraceLevelEncoder adds TRACE level serialization, otherwise it prints LEVEL(-3)
func TraceLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == LogTrace {
		enc.AppendString("TRACE")
	} else {
		enc.AppendString(l.CapitalString())
	}
}
