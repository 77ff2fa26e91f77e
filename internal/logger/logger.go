// internal/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level orders log severities; messages below the configured level are dropped.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps LOG_LEVEL values to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config describes where log files go and how timestamps are rendered.
type Config struct {
	LogsDirectory string
	LogFileFormat string
	TimeZone      string
	Level         Level
	// Console disables the file sink and writes to stdout only.
	Console bool
}

var (
	initialized int32
	minLevel    int32 = int32(LevelInfo)
	std         *log.Logger
	logFile     *os.File
	timeZone    = time.Local
	logFilePath string
	mu          sync.Mutex
)

// SetupLogger initializes the process logger with stdout and a dated log file.
func SetupLogger(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if atomic.LoadInt32(&initialized) == 1 {
		return fmt.Errorf("logger already initialized")
	}

	if config.TimeZone != "" && config.TimeZone != "Local" {
		loc, err := time.LoadLocation(config.TimeZone)
		if err != nil {
			return fmt.Errorf("failed to load time zone %q: %w", config.TimeZone, err)
		}
		timeZone = loc
	}
	atomic.StoreInt32(&minLevel, int32(config.Level))

	var out io.Writer = os.Stdout
	if !config.Console {
		if err := os.MkdirAll(config.LogsDirectory, 0775); err != nil {
			return fmt.Errorf("failed to create logs directory %q: %w", config.LogsDirectory, err)
		}

		name := fmt.Sprintf(config.LogFileFormat, time.Now().In(timeZone).Format("2006-01-02"))
		if filepath.IsAbs(name) {
			logFilePath = name
		} else {
			logFilePath = filepath.Join(config.LogsDirectory, name)
		}

		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0664)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", logFilePath, err)
		}
		logFile = f
		out = io.MultiWriter(os.Stdout, f)
	}

	std = log.New(out, "", 0)
	atomic.StoreInt32(&initialized, 1)

	if logFilePath != "" {
		LogInfo("Logger initialized, writing to %s", logFilePath)
	}
	return nil
}

// SetOutput points the logger at w without touching the file system. Tests use
// it with io.Discard to keep output quiet.
func SetOutput(w io.Writer, level Level) {
	mu.Lock()
	defer mu.Unlock()
	std = log.New(w, "", 0)
	atomic.StoreInt32(&minLevel, int32(level))
	atomic.StoreInt32(&initialized, 1)
}

// Close flushes and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	atomic.StoreInt32(&initialized, 0)
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func GetLogFilePath() string {
	return logFilePath
}

func IsInitialized() bool {
	return atomic.LoadInt32(&initialized) == 1
}

func enabled(level Level) bool {
	return int32(level) >= atomic.LoadInt32(&minLevel)
}

func logMessage(level Level, message string, v ...interface{}) {
	if !enabled(level) {
		return
	}
	msg := fmt.Sprintf(message, v...)
	if !IsInitialized() {
		log.Printf("[%s] %s", level, msg)
		return
	}

	_, file, line, _ := runtime.Caller(2)
	timestamp := time.Now().In(timeZone).Format("2006-01-02 15:04:05 MST")
	std.Printf("[%s] %s %s:%d - %s", level, timestamp, filepath.Base(file), line, msg)
}

func LogDebug(message string, v ...interface{}) { logMessage(LevelDebug, message, v...) }
func LogInfo(message string, v ...interface{})  { logMessage(LevelInfo, message, v...) }
func LogWarn(message string, v ...interface{})  { logMessage(LevelWarn, message, v...) }
func LogError(message string, v ...interface{}) { logMessage(LevelError, message, v...) }
func LogFatal(message string, v ...interface{}) {
	logMessage(LevelError, "FATAL: "+message, v...)
	os.Exit(1)
}

func LogHTTPRequest(r *http.Request) {
	LogDebug("HTTP %s %s from %s", r.Method, r.URL.Path, GetClientIP(r))
}

func LogHTTPError(r *http.Request, status int, err error) {
	LogError("HTTP %d error for %s %s from %s: %v", status, r.Method, r.URL.Path, GetClientIP(r), err)
}

func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
