package feed

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	return parsed
}

func TestFindReturnsParsedFeed(t *testing.T) {
	found, err := Find(mustParseURL(t, "https://tailscale.com/blog/index.xml"), []byte(atomFixture))
	require.NoError(t, err)
	require.NotNil(t, found.Feed)
	assert.Nil(t, found.URL)
	assert.Equal(t, "Blog on Tailscale", found.Feed.Title)
}

func TestFindDiscoversFeedLinkInHTML(t *testing.T) {
	page := `<html><head>
		<link rel="alternate" type="application/atom+xml" href="/blog/index.xml">
		</head><body>welcome</body></html>`

	found, err := Find(mustParseURL(t, "https://tailscale.com/blog/"), []byte(page))
	require.NoError(t, err)
	require.NotNil(t, found.URL)
	assert.Nil(t, found.Feed)
	assert.Equal(t, "https://tailscale.com/blog/index.xml", found.URL.String())
}

func TestFindKeepsAbsoluteFeedLink(t *testing.T) {
	page := `<html><head>
		<link rel="alternate" type="application/rss+xml" href="https://feeds.example.com/all.rss">
		</head></html>`

	found, err := Find(mustParseURL(t, "https://example.com/"), []byte(page))
	require.NoError(t, err)
	require.NotNil(t, found.URL)
	assert.Equal(t, "https://feeds.example.com/all.rss", found.URL.String())
}

func TestFindPicksFirstFeedLink(t *testing.T) {
	page := `<html><head>
		<link rel="alternate" type="application/rss+xml" href="/first.rss">
		<link rel="alternate" type="application/atom+xml" href="/second.xml">
		</head></html>`

	found, err := Find(mustParseURL(t, "https://example.com/"), []byte(page))
	require.NoError(t, err)
	require.NotNil(t, found.URL)
	assert.Equal(t, "https://example.com/first.rss", found.URL.String())
}

func TestFindNoFeed(t *testing.T) {
	page := `<html><head><title>nothing here</title></head><body></body></html>`

	_, err := Find(mustParseURL(t, "https://example.com/"), []byte(page))
	assert.ErrorIs(t, err, ErrNoFeed)
}

func TestFindIgnoresUnrelatedLinkTypes(t *testing.T) {
	page := `<html><head>
		<link rel="stylesheet" type="text/css" href="/style.css">
		<link rel="icon" type="image/x-icon" href="/favicon.ico">
		</head></html>`

	_, err := Find(mustParseURL(t, "https://example.com/"), []byte(page))
	assert.ErrorIs(t, err, ErrNoFeed)
}
