package feedparser

import (
	"bytes"
	"cmp"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Document struct {
	Title   string
	Link    string
	Entries []Entry
}

// Entry keeps the raw published string; date normalization happens downstream.
type Entry struct {
	Title     string
	Link      string
	Published string
	Summary   string
	Content   string
}

type Parser struct {
	gofeedParser *gofeed.Parser
	logger       *slog.Logger
}

func New(logger *slog.Logger) *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		logger:       logger,
	}
}

// maxRecoveryAttempts bounds how many element boundaries a tolerant parse
// walks back through before giving up.
const maxRecoveryAttempts = 3

// Parse never fails. A malformed body that still holds complete items yields
// those items; input gofeed cannot make sense of at all yields an empty
// document. Both cases log a warning.
func (p *Parser) Parse(data []byte, contentType string) Document {
	if len(bytes.TrimSpace(data)) == 0 {
		p.logger.Warn("empty feed body", "content_type", contentType)
		return Document{}
	}

	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err == nil {
		return toDocument(feed)
	}

	if feed, recovered := p.salvage(data); feed != nil {
		doc := toDocument(feed)
		p.logger.Warn("tolerant parse of malformed feed",
			"content_type", contentType,
			"recovered_entries", len(doc.Entries),
			"dropped_bytes", len(data)-recovered,
			"error", err,
		)
		return doc
	}

	p.logger.Warn("failed to parse feed",
		"content_type", contentType,
		"detected_type", gofeed.DetectFeedType(bytes.NewReader(data)),
		"error", err,
	)
	return Document{}
}

// salvage cuts the body after the last complete item or entry, closes the
// enclosing elements and parses again. It returns the feed and how many bytes
// of the original body were kept.
func (p *Parser) salvage(data []byte) (*gofeed.Feed, int) {
	var closeTag, suffix []byte
	switch gofeed.DetectFeedType(bytes.NewReader(data)) {
	case gofeed.FeedTypeAtom:
		closeTag, suffix = []byte("</entry>"), []byte("</feed>")
	case gofeed.FeedTypeRSS:
		closeTag, suffix = []byte("</item>"), []byte("</channel></rss>")
		if bytes.Contains(data, []byte("<rdf:RDF")) {
			suffix = []byte("</rdf:RDF>")
		}
	default:
		return nil, 0
	}

	end := len(data)
	for range maxRecoveryAttempts {
		idx := bytes.LastIndex(data[:end], closeTag)
		if idx < 0 {
			return nil, 0
		}
		end = idx + len(closeTag)

		body := make([]byte, 0, end+len(suffix))
		body = append(body, data[:end]...)
		body = append(body, suffix...)

		feed, err := p.gofeedParser.Parse(bytes.NewReader(body))
		if err == nil && len(feed.Items) > 0 {
			return feed, end
		}
		// step past this boundary so the next attempt drops one more element
		end = idx
	}
	return nil, 0
}

func toDocument(feed *gofeed.Feed) Document {
	doc := Document{
		Title:   feed.Title,
		Link:    feed.Link,
		Entries: make([]Entry, 0, len(feed.Items)),
	}

	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		doc.Entries = append(doc.Entries, Entry{
			Title:     strings.TrimSpace(item.Title),
			Link:      strings.TrimSpace(item.Link),
			Published: cmp.Or(item.Published, item.Updated),
			Summary:   item.Description,
			Content:   item.Content,
		})
	}

	return doc
}
