package encoder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"oh-opus/internal/domain"
)

// ErrNoGainTool is returned when neither opusgain nor loudgain is configured.
var ErrNoGainTool = errors.New("no replaygain tool available")

// Gainer writes ReplayGain tags into finished Opus files.
type Gainer struct {
	opusgain string
	loudgain string
	runner   commandRunner
	logger   *zap.Logger
}

// NewGainer constructs a gainer from discovered binary paths. Empty paths
// disable the corresponding tool.
func NewGainer(bins domain.BinaryPaths, logger *zap.Logger) *Gainer {
	return &Gainer{
		opusgain: strings.TrimSpace(bins.Opusgain),
		loudgain: strings.TrimSpace(bins.Loudgain),
		runner:   newExecRunner(DefaultGrace),
		logger:   loggerOrNop(logger),
	}
}

// Available reports whether any gain tool is configured.
func (g *Gainer) Available() bool {
	return g != nil && (g.opusgain != "" || g.loudgain != "")
}

// Apply runs the gain tool for path. Mode off is a no-op.
func (g *Gainer) Apply(ctx context.Context, path string, mode domain.ReplayGainMode) error {
	if mode == domain.ReplayGainOff || mode == "" {
		return nil
	}
	if !g.Available() {
		return ErrNoGainTool
	}

	name, args := g.command(path, mode)
	g.logger.Debug("applying replaygain", zap.String("tool", name), zap.Strings("args", args))

	res, err := g.runner.Run(ctx, commandSpec{Name: name, Args: args})
	if err != nil {
		return fmt.Errorf("replaygain %s: %w: %s", name, err, res.Stderr)
	}
	return nil
}

// command prefers opusgain and falls back to loudgain.
func (g *Gainer) command(path string, mode domain.ReplayGainMode) (string, []string) {
	if g.opusgain != "" {
		flag := "--track"
		if mode == domain.ReplayGainAlbum {
			flag = "--album"
		}
		return g.opusgain, []string{flag, path}
	}

	args := []string{"-s", "e"}
	if mode == domain.ReplayGainAlbum {
		args = append(args, "-a")
	}
	return g.loudgain, append(args, path)
}
