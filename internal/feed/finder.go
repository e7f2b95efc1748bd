package feed

import (
	"bytes"
	"errors"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoFeed is returned when a document neither is a feed nor links to one
var ErrNoFeed = errors.New("no feed found")

// FoundFeed is the result of feed discovery, exactly one field is set.
// Feed when the document itself parsed as a feed, URL when an HTML
// document advertises one via a link element.
type FoundFeed struct {
	Feed *Parsed
	URL  *url.URL
}

// Find locates a feed in body fetched from sourceURL. A body that parses
// as a feed wins, otherwise the HTML is scanned for the first link element
// with a feed MIME type, href resolved against sourceURL.
func Find(sourceURL *url.URL, body []byte) (*FoundFeed, error) {
	if parsed, _, err := Parse(sourceURL.String(), body); err == nil {
		return &FoundFeed{Feed: parsed}, nil
	}
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, ErrNoFeed
	}
	found := firstLink(sourceURL, document, matchType("application/rss+xml", "application/atom+xml"))
	if found == nil {
		return nil, ErrNoFeed
	}
	return &FoundFeed{URL: found}, nil
}
