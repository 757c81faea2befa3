package feedparser

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example</title>
    <link>http://example.com</link>
    <item>
      <title> First </title>
      <link>http://example.com/1#reply-3</link>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
      <description>short</description>
    </item>
    <item>
      <title>Second</title>
      <link>http://example.com/2</link>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Example</title>
  <entry>
    <title>Only updated</title>
    <link href="http://example.com/a"/>
    <updated>2024-03-05T10:30:00Z</updated>
    <content type="html">&lt;p&gt;body&lt;/p&gt;</content>
  </entry>
</feed>`

func newParser() *Parser {
	return New(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestParse_RSS(t *testing.T) {
	doc := newParser().Parse([]byte(rssFixture), "application/rss+xml")

	assert.Equal(t, "Example", doc.Title)
	require.Len(t, doc.Entries, 2)

	first := doc.Entries[0]
	assert.Equal(t, "First", first.Title)
	assert.Equal(t, "http://example.com/1#reply-3", first.Link)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", first.Published)
	assert.Equal(t, "short", first.Summary)

	assert.Empty(t, doc.Entries[1].Published)
}

func TestParse_AtomFallsBackToUpdated(t *testing.T) {
	doc := newParser().Parse([]byte(atomFixture), "application/atom+xml")

	require.Len(t, doc.Entries, 1)
	assert.Equal(t, "http://example.com/a", doc.Entries[0].Link)
	assert.Equal(t, "2024-03-05T10:30:00Z", doc.Entries[0].Published)
	assert.Contains(t, doc.Entries[0].Content, "body")
}

func TestParse_GarbageYieldsEmptyDocument(t *testing.T) {
	for _, body := range []string{"", "   ", "<html><body>blocked</body></html>", "not xml at all"} {
		doc := newParser().Parse([]byte(body), "text/html")
		assert.Empty(t, doc.Entries, body)
	}
}

func TestParse_TruncatedFeedRecoversCompleteItems(t *testing.T) {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>Cut</title>` +
		`<item><title>A</title><link>http://x/a</link></item>` +
		`<item><title>B</title><link>http://x/b</link></item>` +
		`<item><title>C</title><link>http://x/c`

	doc := newParser().Parse([]byte(body), "application/rss+xml")

	require.Len(t, doc.Entries, 2)
	assert.Equal(t, "http://x/a", doc.Entries[0].Link)
	assert.Equal(t, "http://x/b", doc.Entries[1].Link)
	assert.Equal(t, "Cut", doc.Title)
}

func TestParse_TruncatedAtomRecoversCompleteEntries(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8"?><feed xmlns="http://www.w3.org/2005/Atom"><title>Cut</title>` +
		`<entry><title>A</title><link href="http://x/a"/><updated>2024-03-05T10:30:00Z</updated></entry>` +
		`<entry><title>B</title><link href="http://x/b"/><upd`

	doc := newParser().Parse([]byte(body), "application/atom+xml")

	require.Len(t, doc.Entries, 1)
	assert.Equal(t, "http://x/a", doc.Entries[0].Link)
}
