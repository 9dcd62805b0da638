// Package logging builds the zap logger shared by the desktop app and CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options describes logger construction parameters.
type Options struct {
	Level   string
	File    string
	Console io.Writer
	Color   *bool
}

// New constructs a logger with a console core and, when File is set, a JSON
// file core that always records debug output.
func New(opts Options) (*zap.Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	color := isTerminal(console)
	if opts.Color != nil {
		color = *opts.Color
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	if color {
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(console), ParseLevel(opts.Level)),
	}

	if path := strings.TrimSpace(opts.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(file), zapcore.DebugLevel))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
