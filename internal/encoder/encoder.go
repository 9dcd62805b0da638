package encoder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"oh-opus/internal/domain"
)

// DefaultGrace is how long a terminated encoder may take to exit before it is killed.
const DefaultGrace = 5 * time.Second

// Request describes one source to destination encode.
type Request struct {
	Source      string
	Dest        string
	Bitrate     int
	VBR         bool
	Application domain.ApplicationMode
	Complexity  int
	FrameSize   float64
}

// String renders a request for log lines.
func (r Request) String() string {
	return fmt.Sprintf("%s -> %s @ %dk", r.Source, r.Dest, r.Bitrate)
}

// Encoder produces an Opus file from a source and reports fractional progress.
type Encoder interface {
	Name() domain.Engine
	Encode(ctx context.Context, req Request, onProgress func(float64)) error
	// Duration returns the source length in seconds, or 0 when unknown.
	Duration(ctx context.Context, path string) float64
	Available(ctx context.Context) bool
	// Cancel terminates every in-flight encoder process.
	Cancel()
}

// Options configures encoder construction.
type Options struct {
	Binaries domain.BinaryPaths
	Grace    time.Duration
	Logger   *zap.Logger
}

// New returns the encoder implementation for engine.
func New(engine domain.Engine, opts Options) (Encoder, error) {
	switch engine {
	case domain.EngineFFmpeg:
		return NewFFmpeg(opts), nil
	case domain.EngineOpusenc:
		return NewOpusenc(opts), nil
	default:
		return nil, fmt.Errorf("unknown encoder engine %q", engine)
	}
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stderr   string   `json:"stderr"`
}

// EncodeError is an engine-aware error with optional command context.
type EncodeError struct {
	Engine     domain.Engine `json:"engine"`
	Source     string        `json:"source"`
	Message    string        `json:"message"`
	CommandLog CommandLog    `json:"commandLog"`
	Err        error         `json:"-"`
}

// Error formats encode failures for logs and UI.
func (e *EncodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Engine, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Engine,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *EncodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// binaryOr returns the configured path or the bare tool name.
func binaryOr(path, name string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	return name
}

// formatFrameSize renders 2.5 as "2.5" and 20 as "20".
func formatFrameSize(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64)
}

// emitProgress forwards clamped progress when a callback is configured.
func emitProgress(cb func(float64), value float64) {
	if cb == nil {
		return
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	cb(value)
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func graceOrDefault(grace time.Duration) time.Duration {
	if grace <= 0 {
		return DefaultGrace
	}
	return grace
}
