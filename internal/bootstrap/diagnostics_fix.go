package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"oh-opus/internal/config"
	"oh-opus/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case "tool_ffmpeg", "tool_ffprobe":
		fixErr = installPackage(goruntime.GOOS, "ffmpeg", "ffmpeg", "ffprobe")
	case "tool_opusenc", "tool_opusgain":
		fixErr = installPackage(goruntime.GOOS, "opus-tools", "opusenc")
	case "dest_folder":
		settings, settingsChanged, fixErr = installOrFixDestFolder(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr == nil && strings.HasPrefix(id, "tool_") {
		settings.Binaries = config.WithDiscovered(settings.Binaries, report.Binaries)
		settingsChanged = true
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
		a.mu.Lock()
		a.Settings = settings
		a.mu.Unlock()
	}

	return report, fixErr
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	var report domain.DiagnosticReport
	if a.checker != nil {
		report = a.checker.Run(context.Background(), settings)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = report
	}
	return a.Diagnostics
}

func ensureLocalBinOnPATH(configDir string) error {
	binDir := localBinDir(configDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	entries := filepath.SplitList(current)
	for _, entry := range entries {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(configDir string) string {
	return filepath.Join(configDir, "bin")
}

// installPackage installs pkg with the first available package manager and
// checks that every named tool is then on PATH.
func installPackage(goos, pkg string, tools ...string) error {
	if err := runFirstSuccessfulInstall(installOptions(goos, pkg)); err != nil {
		return fmt.Errorf("install %s: %w", pkg, err)
	}
	if err := requireToolsOnPath(tools...); err != nil {
		return fmt.Errorf("verify %s on PATH: %w", pkg, err)
	}
	return nil
}

// installOptions lists package manager commands for pkg, in preference order.
func installOptions(goos, pkg string) []installOption {
	switch goos {
	case "windows":
		options := []installOption{}
		if id, ok := wingetIDs[pkg]; ok {
			options = append(options, installOption{
				manager: "winget",
				commands: [][]string{
					{"winget", "install", "--id", id, "--exact", "--accept-source-agreements", "--accept-package-agreements"},
				},
			})
		}
		return append(options,
			installOption{manager: "choco", commands: [][]string{{"choco", "install", pkg, "-y"}}},
			installOption{manager: "scoop", commands: [][]string{{"scoop", "install", pkg}}},
		)
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", pkg}}},
		}
	default:
		return []installOption{
			{
				manager: "apt-get",
				commands: [][]string{
					{"apt-get", "update"},
					{"apt-get", "install", "-y", pkg},
				},
			},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", pkg}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", pkg}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", pkg}}},
			{manager: "brew", commands: [][]string{{"brew", "install", pkg}}},
		}
	}
}

// wingetIDs maps package names to winget identifiers where one exists.
var wingetIDs = map[string]string{
	"ffmpeg": "Gyan.FFmpeg",
}

func runFirstSuccessfulInstall(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goruntime.GOOS)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		err := runInstallCommands(option.commands)
		if err == nil {
			return nil
		}
		errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func runInstallCommands(commands [][]string) error {
	for _, command := range commands {
		if err := runCommandWithPossibleElevation(command); err != nil {
			return err
		}
	}
	return nil
}

func runCommandWithPossibleElevation(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if goruntime.GOOS == "linux" && requiresElevation(command[0]) {
		if commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		err := runCommand(candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		attemptErrors = append(attemptErrors, err.Error())
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

func runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func requireToolsOnPath(names ...string) error {
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

// installOrFixDestFolder creates the destination folder, deriving one next
// to the source folder when none is configured.
func installOrFixDestFolder(settings domain.Settings) (domain.Settings, bool, error) {
	destFolder := strings.TrimSpace(settings.DestFolder)
	changed := false
	if destFolder == "" {
		source := strings.TrimSpace(settings.SourceFolder)
		if source == "" {
			return settings, false, fmt.Errorf("choose a source folder before creating a destination")
		}
		destFolder = defaultDestFolder(source)
		settings.DestFolder = destFolder
		changed = true
	}

	if err := os.MkdirAll(destFolder, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create destination folder %s: %w", destFolder, err)
	}

	return settings, changed, nil
}

// defaultDestFolder is a sibling of source named "<source> (Opus)".
func defaultDestFolder(source string) string {
	clean := filepath.Clean(source)
	return filepath.Join(filepath.Dir(clean), filepath.Base(clean)+" (Opus)")
}
