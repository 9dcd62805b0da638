package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"oh-opus/internal/domain"
)

// verifyTimeout bounds each `--version` probe.
const verifyTimeout = 5 * time.Second

// tool describes one external binary the converter may use.
type tool struct {
	id          string
	name        string
	versionFlag string
	// marker must appear in the version output for the binary to be accepted.
	marker string
}

var (
	toolFFmpeg   = tool{id: "tool_ffmpeg", name: "ffmpeg", versionFlag: "-version", marker: "ffmpeg"}
	toolFFprobe  = tool{id: "tool_ffprobe", name: "ffprobe", versionFlag: "-version", marker: "ffprobe"}
	toolOpusenc  = tool{id: "tool_opusenc", name: "opusenc", versionFlag: "--version", marker: "opusenc"}
	toolOpusgain = tool{id: "tool_opusgain", name: "opusgain", versionFlag: "--version", marker: "opusgain"}
	toolLoudgain = tool{id: "tool_loudgain", name: "loudgain", versionFlag: "--version", marker: "loudgain"}
)

// fallbackDirs lists install locations checked when a tool is not on PATH.
func fallbackDirs(goos string) []string {
	switch goos {
	case "windows":
		return []string{`C:\Program Files\ffmpeg\bin`, `C:\ffmpeg\bin`, `C:\opus-tools`}
	case "darwin":
		return []string{"/usr/local/bin", "/opt/homebrew/bin"}
	default:
		return []string{"/usr/local/bin", "/usr/bin", "/snap/bin"}
	}
}

// Checker locates external tools and validates conversion folders.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	version    func(ctx context.Context, path, flag string) (string, error)
	goos       string
	logger     *zap.Logger
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		version:    runVersion,
		goos:       runtime.GOOS,
		logger:     logger,
	}
}

// runVersion executes path with the version flag and returns combined output.
func runVersion(ctx context.Context, path, flag string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, flag).CombinedOutput()
	return string(out), err
}

// Discover resolves every tool, preferring configured paths, then PATH, then
// platform install locations. Tools that cannot be verified are left empty.
func (c *Checker) Discover(ctx context.Context, configured domain.BinaryPaths) domain.BinaryPaths {
	return domain.BinaryPaths{
		FFmpeg:   c.locate(ctx, toolFFmpeg, configured.FFmpeg),
		FFprobe:  c.locate(ctx, toolFFprobe, configured.FFprobe),
		Opusenc:  c.locate(ctx, toolOpusenc, configured.Opusenc),
		Opusgain: c.locate(ctx, toolOpusgain, configured.Opusgain),
		Loudgain: c.locate(ctx, toolLoudgain, configured.Loudgain),
	}
}

func (c *Checker) locate(ctx context.Context, t tool, configured string) string {
	for _, candidate := range c.candidates(t, configured) {
		if c.verify(ctx, t, candidate) {
			return candidate
		}
	}
	return ""
}

func (c *Checker) candidates(t tool, configured string) []string {
	var out []string
	if p := strings.TrimSpace(configured); p != "" {
		if info, err := c.stat(p); err == nil && !info.IsDir() {
			out = append(out, p)
		}
	}
	if p, err := c.lookPath(t.name); err == nil {
		out = append(out, p)
	}

	exe := t.name
	if c.goos == "windows" {
		exe += ".exe"
	}
	for _, dir := range fallbackDirs(c.goos) {
		p := filepath.Join(dir, exe)
		if info, err := c.stat(p); err == nil && !info.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

func (c *Checker) verify(ctx context.Context, t tool, path string) bool {
	out, err := c.version(ctx, path, t.versionFlag)
	if err != nil {
		c.logger.Debug("tool verification failed", zap.String("tool", t.name), zap.String("path", path), zap.Error(err))
		return false
	}
	return strings.Contains(strings.ToLower(out), t.marker)
}

// Run discovers tools and checks folders, returning a combined report.
func (c *Checker) Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport {
	bins := c.Discover(ctx, settings.Binaries)
	opusencEngine := settings.Engine == domain.EngineOpusenc
	gainNeeded := settings.ReplayGainMode != "" && settings.ReplayGainMode != domain.ReplayGainOff

	items := []domain.DiagnosticItem{
		toolItem(toolFFmpeg, bins.FFmpeg, true, "Required to encode (ffmpeg engine) or decode MP3 input (opusenc engine)."),
		toolItem(toolFFprobe, bins.FFprobe, false, "Without ffprobe per-file progress is not reported."),
		toolItem(toolOpusenc, bins.Opusenc, opusencEngine, "Needed only for the opusenc engine."),
		gainItem(bins, gainNeeded),
		c.checkSourceFolder(settings.SourceFolder),
		c.checkDestFolder(settings.DestFolder),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Binaries:    bins,
		Items:       items,
	}
}

// toolItem reports one located tool; missing tools fail only when required.
func toolItem(t tool, path string, required bool, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: t.id, Name: t.name}
	if path != "" {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", path)
		return item
	}

	item.Status = domain.DiagnosticStatusWarn
	if required {
		item.Status = domain.DiagnosticStatusFail
	}
	item.Message = fmt.Sprintf("Tool not found: %s", t.name)
	item.Hint = hint + " Install it or set its path in settings."
	return item
}

// gainItem reports ReplayGain tooling: opusgain preferred, loudgain accepted.
func gainItem(bins domain.BinaryPaths, required bool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: toolOpusgain.id, Name: "ReplayGain"}
	switch {
	case bins.Opusgain != "":
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("opusgain found at %s", bins.Opusgain)
	case bins.Loudgain != "":
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("loudgain found at %s", bins.Loudgain)
	case required:
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No ReplayGain tool found (opusgain or loudgain)."
		item.Hint = "Install opusgain or loudgain, or set replaygain_mode to off."
	default:
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "No ReplayGain tool found; ReplayGain modes are unavailable."
	}
	return item
}

// checkSourceFolder validates the source tree is a readable directory.
func (c *Checker) checkSourceFolder(folder string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "source_folder",
		Name: "Source folder",
	}

	if strings.TrimSpace(folder) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Source folder is empty."
		item.Hint = "Choose the folder containing your MP3 library."
		return item
	}

	info, err := c.stat(folder)
	if err != nil || !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		if IsNotExist(err) {
			item.Message = fmt.Sprintf("Source folder does not exist: %s", folder)
		} else {
			item.Message = fmt.Sprintf("Source folder is not a readable directory: %s", folder)
		}
		item.Hint = "Choose an existing folder containing MP3 files."
		return item
	}

	if _, err := c.readDir(folder); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read source folder: %s", folder)
		item.Hint = "Check permissions for the source folder."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Readable folder: %s", folder)
	return item
}

// checkDestFolder validates destination write access. A missing folder is a
// warning since runs create it.
func (c *Checker) checkDestFolder(folder string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "dest_folder",
		Name: "Destination folder",
	}

	if strings.TrimSpace(folder) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Destination folder is empty."
		item.Hint = "Choose where converted Opus files should be written."
		return item
	}

	if _, err := c.stat(folder); err != nil {
		if IsNotExist(err) {
			item.Status = domain.DiagnosticStatusWarn
			item.Message = fmt.Sprintf("Destination folder will be created: %s", folder)
			return item
		}
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot access destination folder: %s", folder)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(folder, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Destination folder is not writable: %s", folder)
		item.Hint = "Choose a writable directory for converted files."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable folder: %s", folder)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	version func(ctx context.Context, path, flag string) (string, error),
	goos string,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		readDir:    os.ReadDir,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		version:    version,
		goos:       goos,
		logger:     zap.NewNop(),
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
