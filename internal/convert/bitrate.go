package convert

import (
	"math"
	"strings"

	"golang.org/x/text/cases"

	"oh-opus/internal/domain"
)

const (
	boostFactor       = 1.25
	maxBoostedBitrate = 320
)

// boostGenres are genre keywords whose material benefits from extra bitrate.
var boostGenres = []string{"classical", "edm", "electronic", "metal", "jazz"}

// GenreReader returns the genre tag of a source file.
type GenreReader func(path string) (string, error)

// BitratePolicy computes the effective encode bitrate for a job.
type BitratePolicy struct {
	readGenre GenreReader
}

// NewBitratePolicy constructs a policy. A nil reader disables boosting.
func NewBitratePolicy(readGenre GenreReader) *BitratePolicy {
	return &BitratePolicy{readGenre: readGenre}
}

// Effective returns the bitrate in kbps for source. Tag read failures mean no boost.
func (p *BitratePolicy) Effective(source string, settings domain.Settings) int {
	base := settings.Bitrate
	if !settings.GenreBitrateBoost || p == nil || p.readGenre == nil {
		return base
	}
	genre, err := p.readGenre(source)
	if err != nil || !boostedGenre(genre) {
		return base
	}
	return boost(base)
}

// boost scales base by 1.25, rounded and capped at 320 kbps.
func boost(base int) int {
	return min(int(math.Round(float64(base)*boostFactor)), maxBoostedBitrate)
}

// boostedGenre reports whether genre contains any boost keyword, ignoring case.
func boostedGenre(genre string) bool {
	// Casers are not safe for concurrent use.
	folded := cases.Fold().String(genre)
	for _, keyword := range boostGenres {
		if strings.Contains(folded, keyword) {
			return true
		}
	}
	return false
}
