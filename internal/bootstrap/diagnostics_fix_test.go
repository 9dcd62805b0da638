package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"oh-opus/internal/domain"
)

// TestInstallOrFixDestFolderCreatesDirectory ensures the destination fix creates missing directories.
func TestInstallOrFixDestFolderCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	destFolder := filepath.Join(root, "nested", "opus")

	settings := domain.Settings{
		SourceFolder: filepath.Join(root, "mp3"),
		DestFolder:   destFolder,
	}
	fixed, changed, err := installOrFixDestFolder(settings)
	if err != nil {
		t.Fatalf("fix dest folder: %v", err)
	}
	if changed {
		t.Fatal("expected settings to remain unchanged")
	}
	if fixed.DestFolder != destFolder {
		t.Fatalf("DestFolder = %s, want %s", fixed.DestFolder, destFolder)
	}
	if _, err := os.Stat(destFolder); err != nil {
		t.Fatalf("stat dest folder: %v", err)
	}
}

// TestInstallOrFixDestFolderDerivesFromSource checks the default sibling folder.
func TestInstallOrFixDestFolderDerivesFromSource(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "Music")

	fixed, changed, err := installOrFixDestFolder(domain.Settings{SourceFolder: source})
	if err != nil {
		t.Fatalf("fix dest folder: %v", err)
	}
	want := filepath.Join(root, "Music (Opus)")
	if !changed || fixed.DestFolder != want {
		t.Fatalf("DestFolder = %q (changed %v), want %q", fixed.DestFolder, changed, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("stat dest folder: %v", err)
	}
}

// TestInstallOrFixDestFolderRequiresSource rejects an empty configuration.
func TestInstallOrFixDestFolderRequiresSource(t *testing.T) {
	if _, _, err := installOrFixDestFolder(domain.Settings{}); err == nil {
		t.Fatal("expected error without source or destination")
	}
}

// TestInstallOptionsPerPlatform validates package manager plans.
func TestInstallOptionsPerPlatform(t *testing.T) {
	win := installOptions("windows", "ffmpeg")
	if len(win) != 3 || win[0].manager != "winget" || win[0].commands[0][3] != "Gyan.FFmpeg" {
		t.Fatalf("windows ffmpeg options = %+v", win)
	}

	winOpus := installOptions("windows", "opus-tools")
	if len(winOpus) != 2 || winOpus[0].manager != "choco" {
		t.Fatalf("windows opus-tools options = %+v", winOpus)
	}

	mac := installOptions("darwin", "opus-tools")
	if len(mac) != 1 || mac[0].commands[0][2] != "opus-tools" {
		t.Fatalf("darwin options = %+v", mac)
	}

	linux := installOptions("linux", "opus-tools")
	if linux[0].manager != "apt-get" || len(linux[0].commands) != 2 {
		t.Fatalf("linux options = %+v", linux)
	}
	for _, option := range linux {
		if requiresElevation(option.manager) != (option.manager != "brew") {
			t.Fatalf("elevation for %s is wrong", option.manager)
		}
	}
}
