package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"oh-opus/internal/domain"
)

// fakeVersion answers version probes with the tool's basename.
func fakeVersion(ctx context.Context, path, flag string) (string, error) {
	return filepath.Base(path) + " version 1.0", nil
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "music")
	dest := filepath.Join(root, "opus")
	for _, dir := range []string{source, dest} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.Stat,
		fakeVersion,
		"linux",
	)

	report := checker.Run(context.Background(), domain.Settings{
		SourceFolder:   source,
		DestFolder:     dest,
		Engine:         domain.EngineOpusenc,
		ReplayGainMode: domain.ReplayGainTrack,
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if report.Binaries.Opusenc != "/usr/local/bin/opusenc" {
		t.Fatalf("opusenc = %q", report.Binaries.Opusenc)
	}
	for _, item := range report.Items {
		if item.Status != domain.DiagnosticStatusPass {
			t.Fatalf("item %s = %s (%s)", item.ID, item.Status, item.Message)
		}
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		func(string) (os.FileInfo, error) { return nil, os.ErrNotExist },
		fakeVersion,
		"linux",
	)

	report := checker.Run(context.Background(), domain.Settings{
		SourceFolder: "/path/that/does/not/exist",
		DestFolder:   "",
		Engine:       domain.EngineFFmpeg,
	})
	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	want := map[string]domain.DiagnosticStatus{
		"tool_ffmpeg":   domain.DiagnosticStatusFail,
		"tool_ffprobe":  domain.DiagnosticStatusWarn,
		"tool_opusenc":  domain.DiagnosticStatusWarn,
		"tool_opusgain": domain.DiagnosticStatusWarn,
		"source_folder": domain.DiagnosticStatusFail,
		"dest_folder":   domain.DiagnosticStatusFail,
	}
	for _, item := range report.Items {
		if want[item.ID] != item.Status {
			t.Fatalf("item %s = %s, want %s", item.ID, item.Status, want[item.ID])
		}
	}
	if len(report.Items) != len(want) {
		t.Fatalf("items = %d, want %d", len(report.Items), len(want))
	}
}

// TestDiscoverPrefersConfiguredThenPathThenFallback checks resolution order.
func TestDiscoverPrefersConfiguredThenPathThenFallback(t *testing.T) {
	root := t.TempDir()
	configured := filepath.Join(root, "custom-ffmpeg")
	if err := os.WriteFile(configured, []byte("bin"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	fallback := filepath.Join("/opt/homebrew/bin", "opusenc")
	stat := func(name string) (os.FileInfo, error) {
		if name == fallback {
			return os.Stat(configured)
		}
		return os.Stat(name)
	}
	lookPath := func(name string) (string, error) {
		if name == "ffprobe" {
			return "/usr/bin/ffprobe", nil
		}
		return "", errors.New("not found")
	}
	version := func(ctx context.Context, path, flag string) (string, error) {
		if path == configured {
			return "ffmpeg version 7.0", nil
		}
		return fakeVersion(ctx, path, flag)
	}

	checker := NewCheckerForTests(lookPath, stat, version, "darwin")
	bins := checker.Discover(context.Background(), domain.BinaryPaths{FFmpeg: configured})

	if bins.FFmpeg != configured {
		t.Fatalf("ffmpeg = %q, want configured path", bins.FFmpeg)
	}
	if bins.FFprobe != "/usr/bin/ffprobe" {
		t.Fatalf("ffprobe = %q, want PATH result", bins.FFprobe)
	}
	if bins.Opusenc != fallback {
		t.Fatalf("opusenc = %q, want fallback %q", bins.Opusenc, fallback)
	}
	if bins.Opusgain != "" || bins.Loudgain != "" {
		t.Fatalf("gain tools = %q/%q, want empty", bins.Opusgain, bins.Loudgain)
	}
}

// TestDiscoverRejectsUnverifiedBinary checks version output is required.
func TestDiscoverRejectsUnverifiedBinary(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.Stat,
		func(ctx context.Context, path, flag string) (string, error) {
			if strings.HasSuffix(path, "ffmpeg") {
				return "something else entirely", nil
			}
			return "", errors.New("exit status 127")
		},
		"linux",
	)

	bins := checker.Discover(context.Background(), domain.BinaryPaths{})
	if bins != (domain.BinaryPaths{}) {
		t.Fatalf("expected no verified tools, got %+v", bins)
	}
}

// TestCheckDestFolderMissingIsWarning checks that runs may create the folder.
func TestCheckDestFolderMissingIsWarning(t *testing.T) {
	checker := NewCheckerForTests(nil, os.Stat, fakeVersion, "linux")
	item := checker.checkDestFolder(filepath.Join(t.TempDir(), "later"))
	if item.Status != domain.DiagnosticStatusWarn {
		t.Fatalf("status = %s, want warn", item.Status)
	}
}
