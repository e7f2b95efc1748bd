package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFaviconPrefersXIconType(t *testing.T) {
	page := `<html><head>
		<link rel="icon" href="/bare-icon.png">
		<link type="image/icon" href="/typed-icon.ico">
		<link type="image/x-icon" href="/x-icon.ico">
		</head></html>`

	found := FindFavicon(mustParseURL(t, "https://example.com/"), []byte(page))
	require.NotNil(t, found)
	assert.Equal(t, "https://example.com/x-icon.ico", found.String())
}

func TestFindFaviconFallsBackToIconType(t *testing.T) {
	page := `<html><head>
		<link rel="icon" href="/bare-icon.png">
		<link type="image/icon" href="/typed-icon.ico">
		</head></html>`

	found := FindFavicon(mustParseURL(t, "https://example.com/"), []byte(page))
	require.NotNil(t, found)
	assert.Equal(t, "https://example.com/typed-icon.ico", found.String())
}

func TestFindFaviconFallsBackToRel(t *testing.T) {
	page := `<html><head>
		<link rel="icon" href="/bare-icon.png">
		</head></html>`

	found := FindFavicon(mustParseURL(t, "https://example.com/"), []byte(page))
	require.NotNil(t, found)
	assert.Equal(t, "https://example.com/bare-icon.png", found.String())
}

func TestFindFaviconPicksFirstWithinCriterion(t *testing.T) {
	page := `<html><head>
		<link type="image/x-icon" href="/one.ico">
		<link type="image/x-icon" href="/two.ico">
		</head></html>`

	found := FindFavicon(mustParseURL(t, "https://example.com/"), []byte(page))
	require.NotNil(t, found)
	assert.Equal(t, "https://example.com/one.ico", found.String())
}

func TestFindFaviconKeepsAbsoluteHref(t *testing.T) {
	page := `<html><head>
		<link type="image/x-icon" href="https://cdn.example.com/fav.ico">
		</head></html>`

	found := FindFavicon(mustParseURL(t, "https://example.com/deep/page"), []byte(page))
	require.NotNil(t, found)
	assert.Equal(t, "https://cdn.example.com/fav.ico", found.String())
}

func TestFindFaviconNone(t *testing.T) {
	page := `<html><head>
		<link rel="stylesheet" type="text/css" href="/style.css">
		</head></html>`

	assert.Nil(t, FindFavicon(mustParseURL(t, "https://example.com/"), []byte(page)))
}
