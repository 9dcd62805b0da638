package encoder

import (
	"regexp"
	"strconv"
	"strings"
)

// opusencTimePattern matches the HH:MM:SS.ss position in opusenc status lines.
var opusencTimePattern = regexp.MustCompile(`(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// parseFFmpegProgress reads one `-progress pipe:1` key=value line.
func parseFFmpegProgress(line string, duration float64) (float64, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return 0, false
	}

	switch key {
	case "progress":
		if value == "end" {
			return 1, true
		}
		return 0, false
	case "out_time_us", "out_time_ms":
		// ffmpeg reports microseconds under both keys.
		if duration <= 0 {
			return 0, false
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		return min(float64(us)/1e6/duration, 1), true
	default:
		return 0, false
	}
}

// parseOpusencProgress reads the encoded position from an opusenc status line.
func parseOpusencProgress(line string, duration float64) (float64, bool) {
	if duration <= 0 {
		return 0, false
	}
	match := opusencTimePattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}

	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	seconds, err := strconv.ParseFloat(match[3], 64)
	if err != nil {
		return 0, false
	}
	position := float64(hours*3600+minutes*60) + seconds
	return min(position/duration, 1), true
}
