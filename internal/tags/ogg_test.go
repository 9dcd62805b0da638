package tags

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestOggCRCCheckValue checks the CRC against the standard check string.
func TestOggCRCCheckValue(t *testing.T) {
	if got := oggCRC([]byte("123456789")); got != 0x89a1897f {
		t.Fatalf("crc = %08x, want 89a1897f", got)
	}
}

// TestPaginateSplitsLargePackets checks lacing across page boundaries.
func TestPaginateSplitsLargePackets(t *testing.T) {
	packet := bytes.Repeat([]byte{7}, 255*255+10)
	pages := paginate(packet, 9, 1)
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}
	if pages[0].continued() || !pages[1].continued() {
		t.Fatal("continuation flags wrong")
	}
	if pages[0].Granule != granuleNone || pages[1].Granule != 0 {
		t.Fatalf("granules = %d,%d", pages[0].Granule, pages[1].Granule)
	}
	if pages[0].completes() || !pages[1].completes() {
		t.Fatal("packet should complete on the last page only")
	}

	exact := paginate(bytes.Repeat([]byte{1}, 510), 9, 1)
	if got := exact[0].Lacing; len(got) != 3 || got[2] != 0 {
		t.Fatalf("lacing = %v, want trailing zero", got)
	}
}

func writeTestOpus(t *testing.T, path string, comments []Comment) {
	t.Helper()
	head := append([]byte("OpusHead"), 1, 2, 0x38, 0x01, 0x80, 0xbb, 0, 0, 0, 0, 0)
	tagsPacket := (&commentBlock{Vendor: "libopus test", Comments: comments}).encode()

	var buf bytes.Buffer
	buf.Write((&page{Flags: flagFirst, Serial: 42, Sequence: 0, Lacing: []byte{byte(len(head))}, Body: head}).bytes())
	for _, p := range paginate(tagsPacket, 42, 1) {
		buf.Write(p.bytes())
	}
	buf.Write((&page{Serial: 42, Sequence: 2, Granule: 960, Lacing: []byte{3}, Body: []byte{0xfc, 1, 2}}).bytes())
	buf.Write((&page{Flags: flagLast, Serial: 42, Sequence: 3, Granule: 1920, Lacing: []byte{3}, Body: []byte{0xfc, 3, 4}}).bytes())
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write opus: %v", err)
	}
}

func readTestOpus(t *testing.T, path string) (*commentBlock, []*page) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var pages []*page
	for {
		p, err := readPage(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("readPage: %v", err)
		}
		pages = append(pages, p)
	}

	var packet []byte
	for _, p := range pages[1:] {
		packet = append(packet, p.Body...)
		if p.completes() {
			break
		}
	}
	block, err := parseCommentBlock(packet)
	if err != nil {
		t.Fatalf("parseCommentBlock: %v", err)
	}
	return block, pages
}

// TestRewriteCommentsReplacesFields checks field replacement and page integrity.
func TestRewriteCommentsReplacesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.opus")
	writeTestOpus(t, path, []Comment{{Key: "encoder", Value: "Lavf"}, {Key: "title", Value: "old"}})

	err := rewriteComments(path, func(b *commentBlock) {
		b.Set([]Comment{{Key: "TITLE", Value: "new"}, {Key: "ARTIST", Value: "me"}})
	})
	if err != nil {
		t.Fatalf("rewriteComments() error = %v", err)
	}

	block, pages := readTestOpus(t, path)
	if block.Vendor != "libopus test" {
		t.Fatalf("vendor = %q", block.Vendor)
	}
	if got := block.Get("title"); len(got) != 1 || got[0] != "new" {
		t.Fatalf("title = %v, want [new]", got)
	}
	if got := block.Get("ENCODER"); len(got) != 1 {
		t.Fatalf("encoder tag should survive, got %v", got)
	}
	for i, p := range pages {
		if p.Sequence != uint32(i) {
			t.Fatalf("page %d sequence = %d", i, p.Sequence)
		}
	}
	if last := pages[len(pages)-1]; last.Granule != 1920 || !bytes.Equal(last.Body, []byte{0xfc, 3, 4}) {
		t.Fatalf("audio page altered: %+v", last)
	}
}

// TestRewriteCommentsRenumbersAfterGrowth checks sequence shifting when tags span pages.
func TestRewriteCommentsRenumbersAfterGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.opus")
	writeTestOpus(t, path, nil)

	big := strings.Repeat("x", 100_000)
	if err := rewriteComments(path, func(b *commentBlock) {
		b.Set([]Comment{{Key: "METADATA_BLOCK_PICTURE", Value: big}})
	}); err != nil {
		t.Fatalf("rewriteComments() error = %v", err)
	}

	block, pages := readTestOpus(t, path)
	if got := block.Get("METADATA_BLOCK_PICTURE"); len(got) != 1 || len(got[0]) != len(big) {
		t.Fatal("picture comment not stored intact")
	}
	if len(pages) != 5 {
		t.Fatalf("pages = %d, want 5", len(pages))
	}
	for i, p := range pages {
		if p.Sequence != uint32(i) {
			t.Fatalf("page %d sequence = %d", i, p.Sequence)
		}
	}
}

// TestRewriteCommentsRejectsNonOpus checks the ID header guard.
func TestRewriteCommentsRejectsNonOpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.opus")
	p := &page{Flags: flagFirst, Serial: 1, Lacing: []byte{8}, Body: []byte("OggVorbi")}
	if err := os.WriteFile(path, p.bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := rewriteComments(path, func(*commentBlock) {}); err == nil {
		t.Fatal("expected error for non-Opus stream")
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %d entries", len(entries))
	}
}
