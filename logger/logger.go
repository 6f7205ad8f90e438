package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jgrocha/BluetoothChat/config"
)

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	sugar   = base.Sugar()
	logFile *os.File
	logPath string
)

// LogLevel constants
const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
)

// ParseLevel maps a configured level name to a zap level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes the logging system using configuration
func Init(cfg *config.Config) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %w", err)
	}

	path := cfg.Logging.LogFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Logging.LogLevel))
	encoder := newEncoder(cfg.Logging.Format)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(f), level),
	}
	if cfg.Logging.LogToConsole {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		l = l.With(zap.String("hostname", hostname))
	}

	mu.Lock()
	if logFile != nil {
		_ = logFile.Close()
	}
	base, sugar, logFile, logPath = l, l.Sugar(), f, path
	mu.Unlock()

	Printf("=== Session started at %s ===", time.Now().Format("2006-01-02 15:04:05"))
	Printf("Log file: %s", path)
	Printf("Log level: %s", cfg.Logging.LogLevel)
	Printf("Log to console: %t", cfg.Logging.LogToConsole)
	LogDivider()

	return nil
}

// Use installs an existing zap logger, e.g. zap.NewNop or an observer in tests
func Use(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base, sugar = l, l.Sugar()
}

func newEncoder(format string) zapcore.Encoder {
	if format == "json" {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(encCfg)
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	return zapcore.NewConsoleEncoder(encCfg)
}

// Close flushes the logger and closes the log file
func Close() error {
	mu.RLock()
	f := logFile
	mu.RUnlock()
	if f == nil {
		return nil
	}

	LogDivider()
	Printf("=== Session ended at %s ===", time.Now().Format("2006-01-02 15:04:05"))

	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	base = zap.NewNop()
	sugar = base.Sugar()
	logFile = nil
	return f.Close()
}

// L returns the current sugared logger
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Z returns the current structured logger
func Z() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Printf logs formatted text at info level
func Printf(format string, v ...interface{}) {
	L().Infof(strings.TrimSuffix(format, "\n"), v...)
}

// Println logs its operands at info level
func Println(v ...interface{}) {
	L().Info(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Debugf logs formatted debug text
func Debugf(format string, v ...interface{}) {
	L().Debugf(strings.TrimSuffix(format, "\n"), v...)
}

// Warnf logs formatted warning text
func Warnf(format string, v ...interface{}) {
	L().Warnf(strings.TrimSuffix(format, "\n"), v...)
}

// Errorf logs formatted error text
func Errorf(format string, v ...interface{}) {
	L().Errorf(strings.TrimSuffix(format, "\n"), v...)
}

// LogCommand logs the command being executed
func LogCommand(command string, args []string) {
	if len(args) > 1 {
		Printf("Command executed: %s %v", command, args[1:])
		return
	}
	Printf("Command executed: %s", command)
}

// LogDivider prints a divider line for better log organization
func LogDivider() {
	Println("------------------------------------------------------------")
}

// LogResult logs a result with status
func LogResult(operation string, success bool, details string) {
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	if details != "" {
		Printf("%s: %s - %s", operation, status, details)
		return
	}
	Printf("%s: %s", operation, status)
}

// GetLogFileName returns the current log file name
func GetLogFileName() string {
	mu.RLock()
	defer mu.RUnlock()
	if logPath != "" {
		return logPath
	}
	return "result.log"
}
