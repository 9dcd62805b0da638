package domain

import "time"

// RunStatus tracks the lifecycle of one batch conversion run.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// JobStatus tracks a single source-to-destination conversion.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSkipped    JobStatus = "skipped"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Engine selects the external encoder implementation.
type Engine string

const (
	EngineFFmpeg  Engine = "ffmpeg"
	EngineOpusenc Engine = "opusenc"
)

// ApplicationMode is the libopus application hint.
type ApplicationMode string

const (
	ApplicationAudio    ApplicationMode = "audio"
	ApplicationVoIP     ApplicationMode = "voip"
	ApplicationLowDelay ApplicationMode = "lowdelay"
)

// ReplayGainMode selects post-encode loudness tagging.
type ReplayGainMode string

const (
	ReplayGainOff   ReplayGainMode = "off"
	ReplayGainTrack ReplayGainMode = "track"
	ReplayGainAlbum ReplayGainMode = "album"
)

// BinaryPaths holds resolved locations of external tools.
type BinaryPaths struct {
	FFmpeg   string `json:"ffmpeg_path" toml:"ffmpeg_path"`
	FFprobe  string `json:"ffprobe_path" toml:"ffprobe_path"`
	Opusenc  string `json:"opusenc_path" toml:"opusenc_path"`
	Opusgain string `json:"opusgain_path" toml:"opusgain_path"`
	Loudgain string `json:"loudgain_path" toml:"loudgain_path"`
}

// Settings contains user-selectable conversion configuration. A run captures
// a copy at start and never observes later edits.
type Settings struct {
	SourceFolder      string          `json:"source_folder" toml:"source_folder"`
	DestFolder        string          `json:"dest_folder" toml:"dest_folder"`
	Engine            Engine          `json:"engine" toml:"engine"`
	Bitrate           int             `json:"bitrate" toml:"bitrate"`
	VBR               bool            `json:"vbr" toml:"vbr"`
	ApplicationMode   ApplicationMode `json:"application_mode" toml:"application_mode"`
	FrameSize         float64         `json:"frame_size" toml:"frame_size"`
	Complexity        int             `json:"complexity" toml:"complexity"`
	SkipExisting      bool            `json:"skip_existing" toml:"skip_existing"`
	GenreBitrateBoost bool            `json:"genre_bitrate_boost" toml:"genre_bitrate_boost"`
	MaxThreads        int             `json:"max_threads" toml:"max_threads"`
	ReplayGainMode    ReplayGainMode  `json:"replaygain_mode" toml:"replaygain_mode"`
	CoverMaxSize      int             `json:"cover_max_size" toml:"cover_max_size"`
	Binaries          BinaryPaths     `json:"binaries" toml:"binaries"`
}

// Run is a point-in-time view of the active or last batch run.
type Run struct {
	ID              string    `json:"id"`
	Status          RunStatus `json:"status"`
	Paused          bool      `json:"paused"`
	CancelRequested bool      `json:"cancelRequested"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	FinishedAt      time.Time `json:"finishedAt,omitempty"`
}
