package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"

	"oh-opus/internal/config"
	"oh-opus/internal/convert"
	"oh-opus/internal/diagnostics"
	"oh-opus/internal/domain"
	"oh-opus/internal/jobs"
	"oh-opus/internal/logging"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// runEventName is the Wails push channel carrying run events.
const runEventName = "run:event"

// App wires configuration, the conversion orchestrator, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Converter   *convert.Orchestrator
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	logger      *zap.Logger

	mu         sync.Mutex
	events     *jobs.EventBus
	runtimeCtx context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	configDir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	if err := ensureLocalBinOnPATH(configDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	logPath, err := config.LogPath()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: "info", File: logPath})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	settingsPath, err := config.SettingsPath()
	if err != nil {
		return nil, err
	}
	store := config.NewFileStore(settingsPath)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker(logger)
	report := checker.Run(context.Background(), settings)
	logger.Info("startup diagnostics",
		zap.Bool("has_failures", report.HasFailures),
		zap.String("ffmpeg", report.Binaries.FFmpeg),
		zap.String("opusenc", report.Binaries.Opusenc),
	)

	return &App{
		Settings:    settings,
		Store:       store,
		Converter:   convert.New(convert.DefaultDeps(logger), jobs.NewManager(), logger),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		logger:      logger,
		events:      jobs.NewEventBus(2000),
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	defer func() { _ = a.logger.Sync() }()

	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Oh Opus",
		Width:       1100,
		Height:      760,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			_ = a.CancelConversion()
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// PickSourceFolder opens a native directory picker for the MP3 library.
func (a *App) PickSourceFolder() (string, error) {
	return a.pickDirectory("Select MP3 source folder")
}

// PickDestFolder opens a native directory picker for Opus output.
func (a *App) PickDestFolder() (string, error) {
	return a.pickDirectory("Select Opus destination folder")
}

func (a *App) pickDirectory(title string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: title,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured destination) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.DestFolder
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

// StartConversion snapshots the persisted settings and starts a batch run.
func (a *App) StartConversion() (convert.Snapshot, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return convert.Snapshot{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	settings.Binaries = config.WithDiscovered(settings.Binaries, a.Diagnostics.Binaries)
	a.mu.Unlock()

	run, err := a.Converter.Start(context.Background(), settings)
	if err != nil {
		return convert.Snapshot{}, err
	}

	go a.pump(run)
	return run.Snapshot(), nil
}

// PauseConversion stops new files from starting.
func (a *App) PauseConversion() error {
	return a.Converter.Pause()
}

// ResumeConversion lets dispatch continue after a pause.
func (a *App) ResumeConversion() error {
	return a.Converter.Resume()
}

// CancelConversion stops the active run and its encoder processes.
func (a *App) CancelConversion() error {
	return a.Converter.Cancel()
}

// CurrentRun returns the run state machine view and, when a run exists, its snapshot.
func (a *App) CurrentRun() RunView {
	view := RunView{State: a.Converter.Manager().Current()}
	if run := a.Converter.Current(); run != nil {
		snapshot := run.Snapshot()
		view.Snapshot = &snapshot
	}
	return view
}

// RunView is the UI-facing summary of the orchestrator state.
type RunView struct {
	State    domain.Run        `json:"state"`
	Snapshot *convert.Snapshot `json:"snapshot,omitempty"`
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// pump drains one run's stream into the event history and UI push channel.
func (a *App) pump(run *convert.Run) {
	for event := range run.Events() {
		a.publishEvent(event)
	}
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, runEventName, published)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
