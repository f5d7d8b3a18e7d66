// Package logger provides a configurable logger that can write to multiple outputs.
// Init must be called early in the application lifecycle before using other logger functions.
// Functions like AddOutput and SetDebug will return errors if called before Init.
//
// Lines are encoded by zap's console encoder as
//
//	2006-01-02 15:04:05 LEVEL [name] message
//
// and fanned out to every registered output.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TimeLayout is the timestamp format of every log line.
const TimeLayout = "2006-01-02 15:04:05"

var errNotInitialized = errors.New("logger not initialized: call logger.Init() first")

// Logger is a configurable logger that can write to multiple outputs
type Logger struct {
	mu      sync.Mutex
	outputs []io.Writer

	level zap.AtomicLevel
	base  *zap.Logger
}

var (
	globalLogger *Logger
	once         sync.Once
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
)

// GetGlobalLogBuffer returns the global log buffer
func GetGlobalLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(1000) // Keep last 1000 log entries
	})
	return globalBuffer
}

// New builds a standalone logger at info level. prefix becomes the logger
// name shown in brackets; it may be empty.
func New(prefix string, outputs ...io.Writer) *Logger {
	l := &Logger{
		outputs: outputs,
		level:   zap.NewAtomicLevelAt(zapcore.InfoLevel),
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(l), l.level)
	l.base = zap.New(core)
	if prefix != "" {
		l.base = l.base.Named(prefix)
	}
	return l
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "name",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       func(name string, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString("[" + name + "]") },
		ConsoleSeparator: " ",
	}
}

// Write fans one encoded line out to every output. It is the sink of the
// zap core, so it must not log.
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, output := range l.outputs {
		output.Write(p)
	}
	return len(p), nil
}

// AddOutput registers another writer.
func (l *Logger) AddOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs = append(l.outputs, w)
}

// SetDebug switches between debug and info level.
func (l *Logger) SetDebug(debug bool) {
	if debug {
		l.level.SetLevel(zapcore.DebugLevel)
		return
	}
	l.level.SetLevel(zapcore.InfoLevel)
}

// Sugar returns the printf-style logger.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.base.Sugar()
}

// Named returns a child logger whose lines carry name in brackets.
func (l *Logger) Named(name string) *zap.SugaredLogger {
	return l.Sugar().Named(name)
}

// Init initializes the global logger
func Init(prefix string, writeToStderr bool) {
	once.Do(func() {
		outputs := []io.Writer{}
		if writeToStderr {
			outputs = append(outputs, os.Stderr)
		}
		globalLogger = New(prefix, outputs...)
	})
}

// AddOutput adds an additional output writer (e.g., for TUI log buffer).
// Returns an error if called before Init.
func AddOutput(w io.Writer) error {
	if globalLogger == nil {
		return errNotInitialized
	}
	globalLogger.AddOutput(w)
	return nil
}

// SetDebug turns debug lines on or off.
// Returns an error if called before Init.
func SetDebug(debug bool) error {
	if globalLogger == nil {
		return errNotInitialized
	}
	globalLogger.SetDebug(debug)
	return nil
}

// Named returns a child of the global logger, or a no-op logger before Init.
func Named(name string) *zap.SugaredLogger {
	if globalLogger == nil {
		return zap.NewNop().Sugar()
	}
	return globalLogger.Named(name)
}

// Sync flushes the global logger.
func Sync() error {
	if globalLogger == nil {
		return nil
	}
	return globalLogger.base.Sync()
}

func logf(level zapcore.Level, format string, v ...interface{}) {
	if globalLogger == nil {
		// Fallback to standard log if not initialized
		log.Printf(format, v...)
		return
	}
	msg := strings.TrimSuffix(fmt.Sprintf(format, v...), "\n")
	if ce := globalLogger.base.Check(level, msg); ce != nil {
		ce.Write()
	}
}

// Printf logs a formatted message at info level
func Printf(format string, v ...interface{}) {
	logf(zapcore.InfoLevel, format, v...)
}

// Debugf logs a debug-level formatted message
func Debugf(format string, v ...interface{}) {
	logf(zapcore.DebugLevel, format, v...)
}

// Infof logs an info-level formatted message
func Infof(format string, v ...interface{}) {
	logf(zapcore.InfoLevel, format, v...)
}

// Warnf logs a warn-level formatted message
func Warnf(format string, v ...interface{}) {
	logf(zapcore.WarnLevel, format, v...)
}

// Errorf logs an error-level formatted message
func Errorf(format string, v ...interface{}) {
	logf(zapcore.ErrorLevel, format, v...)
}
