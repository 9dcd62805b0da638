package tags

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	opusHeadMagic = []byte("OpusHead")
	opusTagsMagic = []byte("OpusTags")
)

// Comment is one Vorbis-style KEY=value field.
type Comment struct {
	Key   string
	Value string
}

// commentBlock is the decoded OpusTags packet.
type commentBlock struct {
	Vendor   string
	Comments []Comment
	// trailer holds binary data after the comment list; padding is dropped.
	trailer []byte
}

// Get returns every value stored under key, compared case-insensitively.
func (b *commentBlock) Get(key string) []string {
	var out []string
	for _, c := range b.Comments {
		if strings.EqualFold(c.Key, key) {
			out = append(out, c.Value)
		}
	}
	return out
}

// Set replaces all values of the given keys with the new comments.
func (b *commentBlock) Set(comments []Comment) {
	replace := make(map[string]struct{}, len(comments))
	for _, c := range comments {
		replace[strings.ToUpper(c.Key)] = struct{}{}
	}

	kept := b.Comments[:0]
	for _, c := range b.Comments {
		if _, ok := replace[strings.ToUpper(c.Key)]; !ok {
			kept = append(kept, c)
		}
	}
	b.Comments = append(kept, comments...)
}

func parseCommentBlock(packet []byte) (*commentBlock, error) {
	if !bytes.HasPrefix(packet, opusTagsMagic) {
		return nil, errors.New("missing OpusTags header")
	}
	r := bytes.NewReader(packet[len(opusTagsMagic):])

	vendor, err := readLengthPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("read vendor: %w", err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read comment count: %w", err)
	}

	block := &commentBlock{Vendor: vendor}
	for i := uint32(0); i < count; i++ {
		field, err := readLengthPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("read comment %d: %w", i, err)
		}
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		block.Comments = append(block.Comments, Comment{Key: key, Value: value})
	}

	if rest, _ := io.ReadAll(r); len(rest) > 0 && rest[0]&1 == 1 {
		block.trailer = rest
	}
	return block, nil
}

func (b *commentBlock) encode() []byte {
	var buf bytes.Buffer
	buf.Write(opusTagsMagic)
	writeLengthPrefixed(&buf, b.Vendor)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(b.Comments)))
	for _, c := range b.Comments {
		writeLengthPrefixed(&buf, c.Key+"="+c.Value)
	}
	buf.Write(b.trailer)
	return buf.Bytes()
}

func readLengthPrefixed(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if int64(n) > int64(r.Len()) {
		return "", io.ErrUnexpectedEOF
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

func writeLengthPrefixed(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

// rewriteComments replaces the OpusTags packet of an Ogg Opus file in place.
// Audio pages are copied unchanged apart from their sequence numbers and CRC.
func rewriteComments(path string, edit func(*commentBlock)) (err error) {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tags-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	r := bufio.NewReader(src)
	w := bufio.NewWriter(tmp)

	head, err := readPage(r)
	if err != nil {
		return fmt.Errorf("read id header: %w", err)
	}
	if !bytes.HasPrefix(head.Body, opusHeadMagic) {
		return errors.New("not an Ogg Opus stream")
	}
	if _, err := w.Write(head.bytes()); err != nil {
		return err
	}

	packet, oldPages, err := readHeaderPacket(r, head.Serial)
	if err != nil {
		return fmt.Errorf("read comment header: %w", err)
	}
	block, err := parseCommentBlock(packet)
	if err != nil {
		return err
	}
	edit(block)

	newPages := paginate(block.encode(), head.Serial, head.Sequence+1)
	for _, p := range newPages {
		if _, err := w.Write(p.bytes()); err != nil {
			return err
		}
	}

	shift := int64(len(newPages)) - int64(oldPages)
	for {
		p, err := readPage(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if p.Serial == head.Serial {
			p.Sequence = uint32(int64(p.Sequence) + shift)
		}
		if _, err := w.Write(p.bytes()); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if info, statErr := src.Stat(); statErr == nil {
		_ = os.Chmod(tmp.Name(), info.Mode().Perm())
	}
	_ = src.Close()
	return os.Rename(tmp.Name(), path)
}

// readHeaderPacket reassembles the packet that follows the ID header page.
func readHeaderPacket(r *bufio.Reader, serial uint32) ([]byte, int, error) {
	var packet []byte
	pages := 0
	for {
		p, err := readPage(r)
		if err != nil {
			return nil, pages, err
		}
		if p.Serial != serial {
			return nil, pages, errors.New("multiplexed streams are not supported")
		}
		if pages > 0 && !p.continued() {
			return nil, pages, errors.New("comment header page sequence broken")
		}
		pages++
		packet = append(packet, p.Body...)
		if p.completes() {
			if len(p.Lacing) > 0 && packetCount(p.Lacing) > 1 {
				return nil, pages, errors.New("comment header shares a page with audio")
			}
			return packet, pages, nil
		}
	}
}

// packetCount returns how many packets end on a page.
func packetCount(lacing []byte) int {
	n := 0
	for _, l := range lacing {
		if l < 255 {
			n++
		}
	}
	return n
}
