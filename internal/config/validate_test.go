package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"oh-opus/internal/domain"
)

func validSettings() domain.Settings {
	s := DefaultSettings()
	s.SourceFolder = "/in"
	s.DestFolder = "/out"
	return s
}

// TestValidateAcceptsDefaults checks that defaults plus folders are usable.
func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(validSettings()); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

// TestValidateReportsAllProblems checks that errors are joined, not short-circuited.
func TestValidateReportsAllProblems(t *testing.T) {
	s := validSettings()
	s.SourceFolder = ""
	s.Bitrate = 1000
	s.FrameSize = 15
	s.Complexity = 11
	s.Engine = "lame"

	err := Validate(s)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"source_folder", "bitrate", "frame_size", "complexity", "engine"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

// TestNormalizeFillsZeroValues checks defaults for unset numeric fields.
func TestNormalizeFillsZeroValues(t *testing.T) {
	got := Normalize(domain.Settings{
		Engine:         " FFmpeg ",
		ReplayGainMode: "TRACK",
	})
	if got.Engine != domain.EngineFFmpeg {
		t.Fatalf("engine = %q", got.Engine)
	}
	if got.ReplayGainMode != domain.ReplayGainTrack {
		t.Fatalf("replaygain = %q", got.ReplayGainMode)
	}
	if got.Bitrate != 160 || got.FrameSize != 20 || got.MaxThreads < 1 {
		t.Fatalf("zero values not defaulted: %+v", got)
	}
	if got.ApplicationMode != domain.ApplicationAudio {
		t.Fatalf("application = %q", got.ApplicationMode)
	}
}

// TestExpandPath checks home expansion.
func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := ExpandPath("~/Music")
	if err != nil {
		t.Fatalf("ExpandPath() error = %v", err)
	}
	if got != filepath.Join(home, "Music") {
		t.Fatalf("ExpandPath = %q", got)
	}
	if got, _ := ExpandPath("~user/x"); got != "~user/x" {
		t.Fatalf("ExpandPath(~user/x) = %q", got)
	}
}

// TestWithDiscoveredKeepsConfiguredPaths checks configured paths win.
func TestWithDiscoveredKeepsConfiguredPaths(t *testing.T) {
	got := WithDiscovered(
		domain.BinaryPaths{FFmpeg: "/opt/ffmpeg"},
		domain.BinaryPaths{FFmpeg: "/usr/bin/ffmpeg", Opusenc: "/usr/bin/opusenc"},
	)
	if got.FFmpeg != "/opt/ffmpeg" || got.Opusenc != "/usr/bin/opusenc" {
		t.Fatalf("binaries = %+v", got)
	}
}
