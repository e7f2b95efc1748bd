// Package job implements the durable background job system: payload
// encoding, fingerprint based deduplication and the periodic runner
// draining the queue.
package job

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid"
	"golang.org/x/crypto/blake2b"
)

// Payload tags, stored inside the wire form and absorbed into fingerprints.
// A tag must change whenever the semantics of its job change.
const (
	TagRefreshFeed  = "refresh_feed"
	TagFetchFavicon = "fetch_favicon"
)

// Queue row status values. Success removes the row instead.
const (
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// Payload is one unit of background work. Two payloads with equal
// fingerprints are the same work and the queue keeps only one of them.
type Payload interface {
	Tag() string
	Fingerprint() []byte
}

// RefreshFeed requests download and ingestion of new entries for one feed
type RefreshFeed struct {
	UserID  uuid.UUID `json:"user_id"`
	FeedID  int64     `json:"feed_id"`
	FeedURL string    `json:"feed_url"`
}

func (p RefreshFeed) Tag() string { return TagRefreshFeed }

func (p RefreshFeed) Fingerprint() []byte { return fingerprint(p.Tag(), p.FeedID) }

// FetchFavicon requests favicon discovery for the site of one feed
type FetchFavicon struct {
	UserID   uuid.UUID `json:"user_id"`
	FeedID   int64     `json:"feed_id"`
	SiteLink string    `json:"site_link"`
}

func (p FetchFavicon) Tag() string { return TagFetchFavicon }

func (p FetchFavicon) Fingerprint() []byte { return fingerprint(p.Tag(), p.FeedID) }

// fingerprint hashes the tag and the identifying fields, for both job
// types the owning feed id. The user id and URLs stay out: the same feed
// enqueued twice is one unit of work no matter who asked.
func fingerprint(tag string, feedID int64) []byte {
	hash, err := blake2b.New512(nil)
	if err != nil {
		// unkeyed constructor cannot fail
		panic(err)
	}
	hash.Write([]byte(tag))
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], uint64(feedID))
	hash.Write(id[:])
	return hash.Sum(nil)
}

// Job is one claimed queue row
type Job struct {
	ID       uuid.UUID
	Data     []byte
	Status   string
	Attempts int32
}

// Encode serializes a payload to its wire form, the tag inline as "type"
func Encode(payload Payload) ([]byte, error) {
	switch p := payload.(type) {
	case RefreshFeed:
		return json.Marshal(struct {
			Type string `json:"type"`
			RefreshFeed
		}{p.Tag(), p})
	case FetchFavicon:
		return json.Marshal(struct {
			Type string `json:"type"`
			FetchFavicon
		}{p.Tag(), p})
	default:
		return nil, fmt.Errorf("unknown payload type %T", payload)
	}
}

// Decode deserializes a payload from its wire form. An unknown tag is an
// error, the queue holds a closed set of job types.
func Decode(data []byte) (Payload, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("couldn't decode job payload: %w", err)
	}
	switch probe.Type {
	case TagRefreshFeed:
		var payload RefreshFeed
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("couldn't decode %s payload: %w", probe.Type, err)
		}
		return payload, nil
	case TagFetchFavicon:
		var payload FetchFavicon
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("couldn't decode %s payload: %w", probe.Type, err)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", probe.Type)
	}
}
