package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/kuhlman-labs/team-migrator/internal/config"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevelManager provides runtime log level control
type LogLevelManager struct {
	levelVar     *slog.LevelVar
	defaultLevel slog.Level
	mu           sync.RWMutex
}

var (
	globalManager *LogLevelManager
	managerOnce   sync.Once
)

// GetLogLevelManager returns the global LogLevelManager instance, or nil
// before the first logger is built.
func GetLogLevelManager() *LogLevelManager {
	return globalManager
}

// GetLevel returns the current log level as a string
func (m *LogLevelManager) GetLevel() string {
	if m == nil || m.levelVar == nil {
		return "info"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return levelToString(m.levelVar.Level())
}

// SetLevel changes the log level at runtime
func (m *LogLevelManager) SetLevel(level string) {
	if m == nil || m.levelVar == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levelVar.Set(parseLevel(level))
}

// ResetToDefault resets the log level to the configured default
func (m *LogLevelManager) ResetToDefault() {
	if m == nil || m.levelVar == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levelVar.Set(m.defaultLevel)
}

// NewLogger builds the server logger: console output on stdout plus a
// rotating log file.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerWithConsole(cfg, os.Stdout)
}

// NewLoggerWithConsole is NewLogger with a caller-chosen console stream. The
// CLI passes stderr so command output on stdout stays machine readable.
func NewLoggerWithConsole(cfg config.LoggingConfig, console *os.File) *slog.Logger {
	defaultLevel := parseLevel(cfg.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(defaultLevel)

	managerOnce.Do(func() {
		globalManager = &LogLevelManager{
			levelVar:     levelVar,
			defaultLevel: defaultLevel,
		}
	})

	var fileWriter io.Writer = io.Discard
	if cfg.OutputFile != "" {
		fileWriter = &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}
	}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(io.MultiWriter(console, fileWriter), &slog.HandlerOptions{
			Level: levelVar,
		}))
	}

	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:   levelVar,
		NoColor: !shouldUseColors(console),
	})
	fileHandler := slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: levelVar})

	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func levelToString(level slog.Level) string {
	switch {
	case level <= slog.LevelDebug:
		return "debug"
	case level <= slog.LevelInfo:
		return "info"
	case level <= slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// shouldUseColors honors NO_COLOR (https://no-color.org/) and dumb terminals.
func shouldUseColors(f *os.File) bool {
	if !isTerminal(f) {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb" && term != ""
}
