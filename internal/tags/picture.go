package tags

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/dhowden/tag"
	"github.com/disintegration/imaging"
)

const coverFront = 3

// pictureTypes maps ID3 APIC type names to FLAC picture type codes.
var pictureTypes = map[string]uint32{
	"Other":                               0,
	"32x32 pixels 'file icon' (PNG only)": 1,
	"Other file icon":                     2,
	"Cover (front)":                       3,
	"Cover (back)":                        4,
	"Leaflet page":                        5,
	"Media (e.g. label side of CD)":       6,
	"Lead artist/lead performer/soloist":  7,
	"Artist/performer":                    8,
	"Conductor":                           9,
	"Band/Orchestra":                      10,
	"Composer":                            11,
	"Lyricist/text writer":                12,
	"Recording Location":                  13,
	"During recording":                    14,
	"During performance":                  15,
	"Movie/video screen capture":          16,
	"A bright coloured fish":              17,
	"Illustration":                        18,
	"Band/artist logotype":                19,
	"Publisher/Studio logotype":           20,
}

// flacPicture is a METADATA_BLOCK_PICTURE payload.
type flacPicture struct {
	Type        uint32
	MIME        string
	Description string
	Width       uint32
	Height      uint32
	Depth       uint32
	Data        []byte
}

// encode serialises the picture block in FLAC big-endian layout.
func (p flacPicture) encode() []byte {
	var buf bytes.Buffer
	put := func(v uint32) { _ = binary.Write(&buf, binary.BigEndian, v) }
	put(p.Type)
	put(uint32(len(p.MIME)))
	buf.WriteString(p.MIME)
	put(uint32(len(p.Description)))
	buf.WriteString(p.Description)
	put(p.Width)
	put(p.Height)
	put(p.Depth)
	put(0)
	put(uint32(len(p.Data)))
	buf.Write(p.Data)
	return buf.Bytes()
}

// Base64 returns the comment value form of the picture block.
func (p flacPicture) Base64() string {
	return base64.StdEncoding.EncodeToString(p.encode())
}

// selectPicture prefers a front cover among the raw APIC/PIC frames and
// falls back to the primary picture.
func selectPicture(m tag.Metadata) *tag.Picture {
	var first *tag.Picture
	for key, value := range m.Raw() {
		if !strings.HasPrefix(key, "APIC") && !strings.HasPrefix(key, "PIC") {
			continue
		}
		pic, ok := value.(*tag.Picture)
		if !ok || pic == nil || len(pic.Data) == 0 {
			continue
		}
		if pictureTypes[pic.Type] == coverFront {
			return pic
		}
		if first == nil {
			first = pic
		}
	}
	if first != nil {
		return first
	}
	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
		return pic
	}
	return nil
}

// buildPicture converts an embedded picture into a FLAC picture block,
// shrinking it to fit maxSize when maxSize is positive.
func buildPicture(pic *tag.Picture, maxSize int) (flacPicture, error) {
	out := flacPicture{
		Type:        coverFront,
		MIME:        pic.MIMEType,
		Description: pic.Description,
		Data:        pic.Data,
		Depth:       24,
	}
	if t, ok := pictureTypes[pic.Type]; ok {
		out.Type = t
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(pic.Data))
	if err != nil {
		// Undecodable art is still embedded, just without dimensions.
		return out, nil
	}
	if out.MIME == "" {
		out.MIME = "image/" + format
	}
	out.Width = uint32(cfg.Width)
	out.Height = uint32(cfg.Height)
	out.Depth = colorDepth(cfg.ColorModel)

	if maxSize <= 0 || (cfg.Width <= maxSize && cfg.Height <= maxSize) {
		return out, nil
	}

	img, err := imaging.Decode(bytes.NewReader(pic.Data))
	if err != nil {
		return out, fmt.Errorf("decode cover art: %w", err)
	}
	resized := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return out, fmt.Errorf("encode cover art: %w", err)
	}
	bounds := resized.Bounds()
	out.Data = buf.Bytes()
	out.MIME = "image/jpeg"
	out.Width = uint32(bounds.Dx())
	out.Height = uint32(bounds.Dy())
	out.Depth = 24
	return out, nil
}

func colorDepth(model color.Model) uint32 {
	switch model {
	case color.RGBAModel, color.NRGBAModel:
		return 32
	case color.RGBA64Model, color.NRGBA64Model:
		return 64
	case color.GrayModel:
		return 8
	case color.Gray16Model:
		return 16
	default:
		return 24
	}
}
