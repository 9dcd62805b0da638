package tags

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"go.uber.org/zap"
)

// frameMapping lists ID3v2 frames copied verbatim, in output order.
// Three-letter names are the ID3v2.2 equivalents.
var frameMapping = []struct {
	frames []string
	key    string
}{
	{[]string{"TIT2", "TT2"}, "TITLE"},
	{[]string{"TPE1", "TP1"}, "ARTIST"},
	{[]string{"TPE2", "TP2"}, "ALBUMARTIST"},
	{[]string{"TALB", "TAL"}, "ALBUM"},
	{[]string{"TDRC", "TYER", "TYE"}, "DATE"},
	{[]string{"TPE3", "TP3"}, "CONDUCTOR"},
	{[]string{"TPE4", "TP4"}, "REMIXER"},
	{[]string{"TCOM", "TCM"}, "COMPOSER"},
	{[]string{"TEXT", "TXT"}, "LYRICIST"},
	{[]string{"TIT1", "TT1"}, "GROUPING"},
	{[]string{"TIT3", "TT3"}, "SUBTITLE"},
	{[]string{"TPUB", "TPB"}, "PUBLISHER"},
	{[]string{"TCOP", "TCR"}, "COPYRIGHT"},
	{[]string{"TENC", "TEN"}, "ENCODEDBY"},
	{[]string{"TBPM", "TBP"}, "BPM"},
	{[]string{"TMOO"}, "MOOD"},
	{[]string{"TSRC", "TRC"}, "ISRC"},
}

// Read parses the tags embedded in a source file.
func Read(path string) (tag.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tag.ReadFrom(f)
}

// ReadGenre returns the genre of a source file, resolving ID3v1 numeric genres.
func ReadGenre(path string) (string, error) {
	m, err := Read(path)
	if err != nil {
		return "", err
	}
	return m.Genre(), nil
}

// Comments maps source metadata onto Vorbis comment fields.
func Comments(m tag.Metadata) []Comment {
	raw := m.Raw()
	var out []Comment
	add := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, Comment{Key: key, Value: value})
		}
	}

	mapped := false
	for _, mapping := range frameMapping {
		for _, frame := range mapping.frames {
			if value, ok := raw[frame].(string); ok && strings.TrimSpace(value) != "" {
				add(mapping.key, value)
				mapped = true
				break
			}
		}
	}

	if !mapped {
		add("TITLE", m.Title())
		add("ARTIST", m.Artist())
		add("ALBUMARTIST", m.AlbumArtist())
		add("ALBUM", m.Album())
		add("COMPOSER", m.Composer())
		if year := m.Year(); year > 0 {
			add("DATE", strconv.Itoa(year))
		}
	}

	add("GENRE", m.Genre())

	if number, total, ok := rawPosition(raw, "TRCK", "TRK"); ok {
		add("TRACKNUMBER", number)
		add("TRACKTOTAL", total)
	} else if n, total := m.Track(); n > 0 {
		add("TRACKNUMBER", strconv.Itoa(n))
		if total > 0 {
			add("TRACKTOTAL", strconv.Itoa(total))
		}
	}
	if number, total, ok := rawPosition(raw, "TPOS", "TPA"); ok {
		add("DISCNUMBER", number)
		add("DISCTOTAL", total)
	} else if n, total := m.Disc(); n > 0 {
		add("DISCNUMBER", strconv.Itoa(n))
		if total > 0 {
			add("DISCTOTAL", strconv.Itoa(total))
		}
	}

	for _, frame := range []string{"COMM", "COM"} {
		if comm, ok := raw[frame].(*tag.Comm); ok && comm != nil {
			add("COMMENT", comm.Text)
			break
		}
	}
	add("LYRICS", m.Lyrics())
	return out
}

// rawPosition splits a "3/12" style frame into number and total.
func rawPosition(raw map[string]interface{}, frames ...string) (string, string, bool) {
	for _, frame := range frames {
		value, ok := raw[frame].(string)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		number, total, _ := strings.Cut(value, "/")
		return strings.TrimSpace(number), strings.TrimSpace(total), true
	}
	return "", "", false
}

// Copier transfers metadata and cover art onto encoded Opus files.
type Copier struct {
	coverMaxSize int
	logger       *zap.Logger
}

// NewCopier constructs a copier. A positive coverMaxSize shrinks larger cover art.
func NewCopier(coverMaxSize int, logger *zap.Logger) *Copier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Copier{coverMaxSize: coverMaxSize, logger: logger}
}

// Copy reads tags from source and writes them into the Opus file at dest.
func (c *Copier) Copy(source, dest string) error {
	m, err := Read(source)
	if err != nil {
		return fmt.Errorf("read source tags: %w", err)
	}

	comments := Comments(m)
	if pic := selectPicture(m); pic != nil {
		block, err := buildPicture(pic, c.coverMaxSize)
		if err != nil {
			c.logger.Warn("cover art kept at original size", zap.String("source", source), zap.Error(err))
		}
		comments = append(comments, Comment{Key: "METADATA_BLOCK_PICTURE", Value: block.Base64()})
	}
	if len(comments) == 0 {
		return nil
	}

	if err := rewriteComments(dest, func(b *commentBlock) { b.Set(comments) }); err != nil {
		return fmt.Errorf("write opus tags: %w", err)
	}
	c.logger.Debug("tags copied", zap.String("dest", dest), zap.Int("fields", len(comments)))
	return nil
}
