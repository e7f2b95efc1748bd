package feed

import (
	"bytes"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// FindFavicon scans an HTML document for a favicon link. Criteria run over
// the whole document in priority order, the bare rel="icon" form counts
// only when no link carries an icon MIME type. Returns nil when the
// document advertises nothing, the /favicon.ico fallback belongs to the
// caller.
func FindFavicon(sourceURL *url.URL, body []byte) *url.URL {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	for _, match := range []linkMatch{
		matchType("image/x-icon"),
		matchType("image/icon"),
		matchRel("icon"),
	} {
		if found := firstLink(sourceURL, document, match); found != nil {
			return found
		}
	}
	return nil
}
