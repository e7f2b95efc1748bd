package entity

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

// Feed defines a subscribed feed belonging to one user
type Feed struct {
	ID     int64     `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	// URL of the feed endpoint itself
	URL   string `json:"url"`
	Title string `json:"title"`
	// SiteLink is the canonical link to the site the feed describes, may be empty
	SiteLink    string `json:"site_link"`
	Description string `json:"description"`
	// HasFavicon is tri-state: nil means not looked up yet, false means the site has none
	HasFavicon *bool     `json:"has_favicon"`
	AddedAt    time.Time `json:"added_at"`
}

func (f *Feed) String() string {
	return fmt.Sprintf("ID: %d, UserID: %v, URL: %s, Title: %s", f.ID, f.UserID, f.URL, f.Title)
}
