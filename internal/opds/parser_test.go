package opds

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

// passthroughSanitizer はサニタイズを行わないテスト用モック。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(rawHTML string) string { return rawHTML }

func newTestParser() *Parser {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewParser("http://localhost:8083", passthroughSanitizer{}, logger)
}

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>New Books</title>
  <id>urn:uuid:feed</id>
  <updated>2025-01-15T10:00:00Z</updated>
  <entry>
    <title>Learning Go</title>
    <id>urn:uuid:aaaa-bbbb</id>
    <updated>2025-01-10T00:00:00Z</updated>
    <published>2024-06-01T00:00:00Z</published>
    <author><name>Jon Bodner</name></author>
    <summary>An idiomatic approach.</summary>
    <category term="programming" label="Programming"/>
    <category term="golang"/>
    <link rel="http://opds-spec.org/image" href="/opds/cover/4" type="image/jpeg"/>
    <link rel="http://opds-spec.org/acquisition" href="/opds/download/4/epub/" type="application/epub+zip"/>
  </entry>
  <entry>
    <title>Second Book</title>
    <id>urn:uuid:cccc-dddd</id>
    <updated>2025-01-11T00:00:00Z</updated>
    <author><name>Alice</name></author>
    <author><name>Bob</name></author>
    <link rel="http://opds-spec.org/acquisition" href="/opds/download/7/epub/" type="application/epub+zip"/>
  </entry>
  <entry>
    <title>No Usable Links</title>
    <id>urn:uuid:eeee-ffff</id>
    <updated>2025-01-12T00:00:00Z</updated>
    <link rel="alternate" href="/book/metadata/xyz"/>
  </entry>
</feed>`

func TestParse_ExtractsBooks(t *testing.T) {
	p := newTestParser()

	books, err := p.Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// 数値IDを抽出できない3番目のエントリは破棄される
	if len(books) != 2 {
		t.Fatalf("len(books) = %d, want 2", len(books))
	}

	first := books[0]
	if first.ID != 4 {
		t.Errorf("ID = %d, want 4", first.ID)
	}
	if first.UID != "calibre-4" {
		t.Errorf("UID = %q, want %q", first.UID, "calibre-4")
	}
	if first.Title != "Learning Go" {
		t.Errorf("Title = %q, want %q", first.Title, "Learning Go")
	}
	if first.Author != "Jon Bodner" {
		t.Errorf("Author = %q, want %q", first.Author, "Jon Bodner")
	}
	if first.Description != "An idiomatic approach." {
		t.Errorf("Description = %q", first.Description)
	}
	if first.Published != "2024-06-01T00:00:00Z" {
		t.Errorf("Published = %q", first.Published)
	}
}

func TestParse_IDFromDownloadLink(t *testing.T) {
	p := newTestParser()

	books, err := p.Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	second := books[1]
	if second.ID != 7 {
		t.Errorf("ID = %d, want 7", second.ID)
	}
	if second.Author != "Alice, Bob" {
		t.Errorf("Author = %q, want %q", second.Author, "Alice, Bob")
	}
	if len(second.Authors) != 2 {
		t.Errorf("len(Authors) = %d, want 2", len(second.Authors))
	}
}

func TestParse_CategoriesPreferLabel(t *testing.T) {
	p := newTestParser()

	books, err := p.Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got := books[0].Categories
	want := []string{"Programming", "golang"}
	if len(got) != len(want) {
		t.Fatalf("Categories = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Categories[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParse_CoverURLRewritesRootRelative(t *testing.T) {
	p := newTestParser()

	books, err := p.Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := books[0].CoverURL; got != "http://localhost:8083/opds/cover/4" {
		t.Errorf("CoverURL = %q, want external base + path", got)
	}
}

func TestParse_CoverURLFallsBackToProxy(t *testing.T) {
	p := newTestParser()

	books, err := p.Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// 画像relリンクがないエントリはローカルプロキシURLにフォールバック
	if got := books[1].CoverURL; got != "/api/calibre/cover/7" {
		t.Errorf("CoverURL = %q, want %q", got, "/api/calibre/cover/7")
	}
}

func TestParse_AbsoluteCoverURLPassesThrough(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>t</title><id>urn:f</id><updated>2025-01-01T00:00:00Z</updated>
  <entry>
    <title>Book</title><id>urn:e</id><updated>2025-01-01T00:00:00Z</updated>
    <link rel="http://opds-spec.org/image/thumbnail" href="https://cdn.example.com/covers/9.jpg"/>
    <link rel="http://opds-spec.org/acquisition" href="/opds/download/9/epub/"/>
  </entry>
</feed>`

	p := newTestParser()
	books, err := p.Parse(strings.NewReader(feed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("len(books) = %d, want 1", len(books))
	}
	if got := books[0].CoverURL; got != "https://cdn.example.com/covers/9.jpg" {
		t.Errorf("CoverURL = %q, want absolute URL unchanged", got)
	}
}

func TestParse_DefaultsForMissingFields(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>t</title><id>urn:f</id><updated>2025-01-01T00:00:00Z</updated>
  <entry>
    <id>urn:e</id><updated>2025-03-01T00:00:00Z</updated>
    <link rel="http://opds-spec.org/acquisition" href="/opds/download/12/epub/"/>
  </entry>
</feed>`

	p := newTestParser()
	books, err := p.Parse(strings.NewReader(feed))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("len(books) = %d, want 1", len(books))
	}

	b := books[0]
	if b.Title != "Unknown Title" {
		t.Errorf("Title = %q, want %q", b.Title, "Unknown Title")
	}
	if b.Author != "Unknown" {
		t.Errorf("Author = %q, want %q", b.Author, "Unknown")
	}
	// publishedがない場合はupdatedを使用する
	if b.Published != "2025-03-01T00:00:00Z" {
		t.Errorf("Published = %q, want updated timestamp", b.Published)
	}
	if b.ReaderURL != "/calibre-web/read/12/epub" {
		t.Errorf("ReaderURL = %q", b.ReaderURL)
	}
}

func TestParse_MalformedXML(t *testing.T) {
	p := newTestParser()

	if _, err := p.Parse(strings.NewReader("this is not xml")); err == nil {
		t.Error("Parse() error = nil, want parse error")
	}
}
