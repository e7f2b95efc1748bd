package feed

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// linkMatch selects link elements during document scans
type linkMatch func(*goquery.Selection) bool

func matchType(types ...string) linkMatch {
	return func(selection *goquery.Selection) bool {
		linkType, _ := selection.Attr("type")
		for _, t := range types {
			if linkType == t {
				return true
			}
		}
		return false
	}
}

func matchRel(rel string) linkMatch {
	return func(selection *goquery.Selection) bool {
		linkRel, _ := selection.Attr("rel")
		return linkRel == rel
	}
}

// firstLink returns the href of the first link element matching match,
// in document order, resolved against base.
func firstLink(base *url.URL, document *goquery.Document, match linkMatch) *url.URL {
	var found *url.URL
	document.Find("link").EachWithBreak(func(_ int, selection *goquery.Selection) bool {
		if !match(selection) {
			return true
		}
		href, ok := selection.Attr("href")
		if !ok {
			return true
		}
		parsed, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		found = base.ResolveReference(parsed)
		return false
	})
	return found
}
