// Package log provides structured logging for arbiter.
// Entries carry a level, a category and key=value fields. Logging stays off
// until Init or InitWriter is called, so library code can log freely.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/arbiter/internal/pubsub"
)

// Level represents log severity.
type Level int

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
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config value ("debug", "info", "warn", "error") to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Category groups related log messages.
type Category string

const (
	CatRegistry Category = "registry" // Registration, conflicts, teardown
	CatManifest Category = "manifest" // Manifest parsing and loading
	CatConfig   Category = "config"   // Configuration loading and policy reloads
	CatJournal  Category = "journal"  // SQLite conflict journal
	CatWatcher  Category = "watcher"  // Config file watcher events
	CatServer   Category = "server"   // Diagnostics HTTP server
	CatCache    Category = "cache"    // Cache operations
	CatTrace    Category = "trace"    // Tracing provider lifecycle
)

const eventLine pubsub.EventType = "line"

// Logger provides structured logging.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	writer   io.Writer
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[string]
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// Init opens path for appending and routes log output there.
// Returns a cleanup function that closes the file.
func Init(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) //nolint:gosec // G304: path comes from the operator's config
	if err != nil {
		return nil, err
	}

	install(&Logger{
		file:     f,
		writer:   f,
		enabled:  true,
		minLevel: LevelInfo,
		broker:   pubsub.NewBroker[string](),
	})

	return func() { _ = f.Close() }, nil
}

// InitWriter routes log output to w, e.g. os.Stderr or a test buffer.
func InitWriter(w io.Writer) {
	install(&Logger{
		writer:   w,
		enabled:  true,
		minLevel: LevelInfo,
		broker:   pubsub.NewBroker[string](),
	})
}

func install(l *Logger) {
	defaultMu.Lock()
	prev := defaultLogger
	defaultLogger = l
	defaultMu.Unlock()

	if prev != nil && prev.broker != nil {
		prev.broker.Close()
	}
}

func current() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	log(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	log(LevelError, cat, msg, fields...)
}

func log(level Level, cat Category, msg string, fields ...any) {
	l := current()
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || level < l.minLevel {
		return
	}

	// Format: 2026-10-17T10:45:00 [WARN] [registry] message key=value key2=value2
	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, " [%s] [%s] %s", level, cat, msg)

	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", fields[len(fields)-1])
	}
	b.WriteByte('\n')
	entry := b.String()

	if l.writer != nil {
		_, _ = io.WriteString(l.writer, entry)
	}
	if l.broker != nil {
		l.broker.Publish(eventLine, entry)
	}
}

// Subscribe streams formatted log lines until ctx is cancelled. Returns nil
// when logging has not been initialized.
func Subscribe(ctx context.Context) <-chan pubsub.Event[string] {
	l := current()
	if l == nil || l.broker == nil {
		return nil
	}
	return l.broker.Subscribe(ctx)
}
