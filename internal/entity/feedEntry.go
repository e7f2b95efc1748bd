package entity

import (
	"fmt"
	"time"
)

// FeedEntry defines a single entry (article) of a feed
type FeedEntry struct {
	ID     int64 `json:"id"`
	FeedID int64 `json:"feed_id"`
	// ExternalID is the stable identifier reported by the feed source,
	// unique within one feed
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	// URL of the entry, empty when the source supplied none
	URL     string   `json:"url"`
	Authors []string `json:"authors"`
	// ReadAt is nil until the owning user opens the entry
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (e *FeedEntry) String() string {
	return fmt.Sprintf("ID: %d, FeedID: %d, ExternalID: %s, Title: %s", e.ID, e.FeedID, e.ExternalID, e.Title)
}

// Read reports whether the entry was already opened by its user.
func (e *FeedEntry) Read() bool {
	return e.ReadAt != nil
}
