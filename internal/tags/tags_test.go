package tags

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/dhowden/tag"
)

// fakeMetadata is a tag.Metadata with injected values.
type fakeMetadata struct {
	raw     map[string]interface{}
	genre   string
	title   string
	year    int
	track   [2]int
	picture *tag.Picture
}

func (f *fakeMetadata) Format() tag.Format { return tag.ID3v2_4 }
func (f *fakeMetadata) FileType() tag.FileType { return tag.MP3 }
func (f *fakeMetadata) Title() string { return f.title }
func (f *fakeMetadata) Album() string { return "" }
func (f *fakeMetadata) Artist() string { return "" }
func (f *fakeMetadata) AlbumArtist() string { return "" }
func (f *fakeMetadata) Composer() string { return "" }
func (f *fakeMetadata) Year() int { return f.year }
func (f *fakeMetadata) Genre() string { return f.genre }
func (f *fakeMetadata) Track() (int, int) { return f.track[0], f.track[1] }
func (f *fakeMetadata) Disc() (int, int) { return 0, 0 }
func (f *fakeMetadata) Picture() *tag.Picture { return f.picture }
func (f *fakeMetadata) Lyrics() string { return "" }
func (f *fakeMetadata) Comment() string { return "" }
func (f *fakeMetadata) Raw() map[string]interface{}    { return f.raw }

func commentMap(comments []Comment) map[string]string {
	out := make(map[string]string, len(comments))
	for _, c := range comments {
		out[c.Key] = c.Value
	}
	return out
}

// TestCommentsMapsID3Frames checks frame mapping and track/disc totals.
func TestCommentsMapsID3Frames(t *testing.T) {
	m := &fakeMetadata{
		genre: "Classical",
		raw: map[string]interface{}{
			"TIT2": "Adagio",
			"TPE1": "Orchestra",
			"TYER": "1999",
			"TDRC": "2001-04-02",
			"TRCK": "3/12",
			"TPOS": "1",
			"COMM": &tag.Comm{Text: "remaster"},
		},
	}

	got := commentMap(Comments(m))
	want := map[string]string{
		"TITLE":       "Adagio",
		"ARTIST":      "Orchestra",
		"DATE":        "2001-04-02",
		"GENRE":       "Classical",
		"TRACKNUMBER": "3",
		"TRACKTOTAL":  "12",
		"DISCNUMBER":  "1",
		"COMMENT":     "remaster",
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("%s = %q, want %q (all=%v)", key, got[key], value, got)
		}
	}
	if _, ok := got["DISCTOTAL"]; ok {
		t.Fatal("DISCTOTAL should be absent without a total")
	}
}

// TestCommentsFallsBackToAccessors checks non-ID3v2 sources.
func TestCommentsFallsBackToAccessors(t *testing.T) {
	m := &fakeMetadata{title: "Song", year: 1987, track: [2]int{4, 0}, raw: map[string]interface{}{}}
	got := commentMap(Comments(m))
	if got["TITLE"] != "Song" || got["DATE"] != "1987" || got["TRACKNUMBER"] != "4" {
		t.Fatalf("unexpected comments: %v", got)
	}
	if _, ok := got["TRACKTOTAL"]; ok {
		t.Fatal("TRACKTOTAL should be absent")
	}
}

// TestSelectPicturePrefersFrontCover checks APIC selection.
func TestSelectPicturePrefersFrontCover(t *testing.T) {
	back := &tag.Picture{Type: "Cover (back)", Data: []byte{1}}
	front := &tag.Picture{Type: "Cover (front)", Data: []byte{2}}
	m := &fakeMetadata{raw: map[string]interface{}{"APIC": back, "APIC_1": front}, picture: back}

	if got := selectPicture(m); got != front {
		t.Fatalf("selected %+v, want front cover", got)
	}

	m = &fakeMetadata{raw: map[string]interface{}{}}
	if got := selectPicture(m); got != nil {
		t.Fatalf("selected %+v, want nil", got)
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// TestBuildPictureReadsDimensions checks the FLAC picture block layout.
func TestBuildPictureReadsDimensions(t *testing.T) {
	data := testPNG(t, 40, 20)
	pic, err := buildPicture(&tag.Picture{Type: "Cover (back)", MIMEType: "image/png", Description: "b", Data: data}, 0)
	if err != nil {
		t.Fatalf("buildPicture() error = %v", err)
	}
	if pic.Type != 4 || pic.Width != 40 || pic.Height != 20 || pic.Depth != 32 {
		t.Fatalf("unexpected picture: type=%d %dx%d depth=%d", pic.Type, pic.Width, pic.Height, pic.Depth)
	}

	raw, err := base64.StdEncoding.DecodeString(pic.Base64())
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	if binary.BigEndian.Uint32(raw[0:4]) != 4 {
		t.Fatalf("block type = %d, want 4", binary.BigEndian.Uint32(raw[0:4]))
	}
	mimeLen := binary.BigEndian.Uint32(raw[4:8])
	if string(raw[8:8+mimeLen]) != "image/png" {
		t.Fatalf("mime = %q", raw[8:8+mimeLen])
	}
	if !bytes.HasSuffix(raw, data) {
		t.Fatal("picture data should terminate the block")
	}
}

// TestBuildPictureShrinksLargeArt checks resizing to the configured bound.
func TestBuildPictureShrinksLargeArt(t *testing.T) {
	data := testPNG(t, 400, 200)
	pic, err := buildPicture(&tag.Picture{Type: "Cover (front)", MIMEType: "image/png", Data: data}, 100)
	if err != nil {
		t.Fatalf("buildPicture() error = %v", err)
	}
	if pic.MIME != "image/jpeg" || pic.Width != 100 || pic.Height != 50 {
		t.Fatalf("unexpected resized picture: %s %dx%d", pic.MIME, pic.Width, pic.Height)
	}
}

// TestBuildPictureKeepsUndecodableData checks unknown image bytes are still embedded.
func TestBuildPictureKeepsUndecodableData(t *testing.T) {
	pic, err := buildPicture(&tag.Picture{Type: "weird", MIMEType: "image/x-foo", Data: []byte("nope")}, 100)
	if err != nil {
		t.Fatalf("buildPicture() error = %v", err)
	}
	if pic.Type != coverFront || pic.Width != 0 || string(pic.Data) != "nope" {
		t.Fatalf("unexpected picture: %+v", pic)
	}
}
