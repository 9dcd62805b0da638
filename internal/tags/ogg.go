package tags

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	pageHeaderSize = 27
	maxSegments    = 255

	flagContinued = 0x01
	flagFirst     = 0x02
	flagLast      = 0x04

	// granuleNone marks pages on which no packet completes.
	granuleNone = ^uint64(0)
)

var capturePattern = []byte("OggS")

// errBadPage reports a malformed or corrupt Ogg page.
var errBadPage = errors.New("malformed ogg page")

// page is one Ogg page with its lacing table and body.
type page struct {
	Flags    byte
	Granule  uint64
	Serial   uint32
	Sequence uint32
	Lacing   []byte
	Body     []byte
}

// continued reports whether the first segment continues a packet from the previous page.
func (p *page) continued() bool {
	return p.Flags&flagContinued != 0
}

// completes reports whether the last segment on the page ends a packet.
func (p *page) completes() bool {
	return len(p.Lacing) > 0 && p.Lacing[len(p.Lacing)-1] < 255
}

// readPage reads and CRC-checks the next page.
func readPage(r *bufio.Reader) (*page, error) {
	header := make([]byte, pageHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if string(header[:4]) != string(capturePattern) || header[4] != 0 {
		return nil, fmt.Errorf("%w: bad capture pattern", errBadPage)
	}

	p := &page{
		Flags:    header[5],
		Granule:  binary.LittleEndian.Uint64(header[6:14]),
		Serial:   binary.LittleEndian.Uint32(header[14:18]),
		Sequence: binary.LittleEndian.Uint32(header[18:22]),
	}
	want := binary.LittleEndian.Uint32(header[22:26])

	p.Lacing = make([]byte, int(header[26]))
	if _, err := io.ReadFull(r, p.Lacing); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPage, err)
	}
	size := 0
	for _, l := range p.Lacing {
		size += int(l)
	}
	p.Body = make([]byte, size)
	if _, err := io.ReadFull(r, p.Body); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPage, err)
	}

	if got := p.checksum(); got != want {
		return nil, fmt.Errorf("%w: crc %08x, want %08x", errBadPage, got, want)
	}
	return p, nil
}

// bytes serialises the page with a freshly computed CRC.
func (p *page) bytes() []byte {
	out := p.encode()
	binary.LittleEndian.PutUint32(out[22:26], oggCRC(out))
	return out
}

func (p *page) checksum() uint32 {
	return oggCRC(p.encode())
}

// encode serialises the page with a zero CRC field.
func (p *page) encode() []byte {
	out := make([]byte, pageHeaderSize+len(p.Lacing)+len(p.Body))
	copy(out, capturePattern)
	out[4] = 0
	out[5] = p.Flags
	binary.LittleEndian.PutUint64(out[6:14], p.Granule)
	binary.LittleEndian.PutUint32(out[14:18], p.Serial)
	binary.LittleEndian.PutUint32(out[18:22], p.Sequence)
	out[26] = byte(len(p.Lacing))
	copy(out[pageHeaderSize:], p.Lacing)
	copy(out[pageHeaderSize+len(p.Lacing):], p.Body)
	return out
}

// paginate splits one packet into as many pages as its lacing requires.
// The final page carries granule 0 since header packets precede audio.
func paginate(packet []byte, serial, firstSeq uint32) []*page {
	lacing := make([]byte, 0, len(packet)/255+1)
	for n := len(packet); ; n -= 255 {
		if n < 255 {
			lacing = append(lacing, byte(n))
			break
		}
		lacing = append(lacing, 255)
	}

	var pages []*page
	offset := 0
	for i := 0; i < len(lacing); i += maxSegments {
		end := min(i+maxSegments, len(lacing))
		chunk := lacing[i:end]
		size := 0
		for _, l := range chunk {
			size += int(l)
		}

		p := &page{
			Granule:  granuleNone,
			Serial:   serial,
			Sequence: firstSeq + uint32(len(pages)),
			Lacing:   append([]byte(nil), chunk...),
			Body:     packet[offset : offset+size],
		}
		if i > 0 {
			p.Flags |= flagContinued
		}
		if end == len(lacing) {
			p.Granule = 0
		}
		pages = append(pages, p)
		offset += size
	}
	return pages
}

var crcTable = func() [256]uint32 {
	var table [256]uint32
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}()

// oggCRC is the non-reflected CRC-32 used by Ogg (poly 0x04c11db7, zero init).
func oggCRC(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}
