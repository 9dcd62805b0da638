package encoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// probeFormat captures the container-level fields read from ffprobe.
type probeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

type probeResult struct {
	Format probeFormat `json:"format"`
}

// prober reads media duration through ffprobe.
type prober struct {
	binary string
	runner commandRunner
}

// Inspect executes ffprobe against path and decodes its JSON response.
func (p *prober) Inspect(ctx context.Context, path string) (probeResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return probeResult{}, errors.New("ffprobe inspect: empty path")
	}

	res, err := p.runner.Run(ctx, commandSpec{
		Name:          binaryOr(p.binary, "ffprobe"),
		Args:          []string{"-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path},
		CaptureStdout: true,
	})
	if err != nil {
		return probeResult{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(res.Stderr))
	}

	var result probeResult
	if err := json.Unmarshal([]byte(res.Stdout), &result); err != nil {
		return probeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Duration returns the container duration in seconds, or 0 when unavailable.
func (p *prober) Duration(ctx context.Context, path string) float64 {
	result, err := p.Inspect(ctx, path)
	if err != nil {
		return 0
	}
	return parseSeconds(result.Format.Duration)
}

func parseSeconds(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
