package job

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func TestFingerprintIdentifiesWorkNotRequester(t *testing.T) {
	one := RefreshFeed{UserID: uuid.Must(uuid.NewV4()), FeedID: 3, FeedURL: "https://a.example.com/feed"}
	two := RefreshFeed{UserID: uuid.Must(uuid.NewV4()), FeedID: 3, FeedURL: "https://b.example.com/other"}

	assert.Equal(t, one.Fingerprint(), two.Fingerprint())
}

func TestFingerprintSeparatesJobTypes(t *testing.T) {
	refresh := RefreshFeed{FeedID: 3}
	favicon := FetchFavicon{FeedID: 3}

	assert.NotEqual(t, refresh.Fingerprint(), favicon.Fingerprint())
}

func TestFingerprintSeparatesFeeds(t *testing.T) {
	assert.NotEqual(t, RefreshFeed{FeedID: 1}.Fingerprint(), RefreshFeed{FeedID: 2}.Fingerprint())
}

func TestFingerprintFormat(t *testing.T) {
	got := FetchFavicon{FeedID: 7}.Fingerprint()
	require.Len(t, got, 64)

	hash, err := blake2b.New512(nil)
	require.NoError(t, err)
	hash.Write([]byte("fetch_favicon"))
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], 7)
	hash.Write(id[:])
	assert.Equal(t, hash.Sum(nil), got)
}

func TestEncodeFlattensTag(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	data, err := Encode(RefreshFeed{UserID: userID, FeedID: 3, FeedURL: "https://example.com/feed.xml"})
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "refresh_feed", wire["type"])
	assert.Equal(t, userID.String(), wire["user_id"])
	assert.Equal(t, float64(3), wire["feed_id"])
	assert.Equal(t, "https://example.com/feed.xml", wire["feed_url"])
	assert.Len(t, wire, 4)
}

func TestDecodeRoundTrip(t *testing.T) {
	original := FetchFavicon{UserID: uuid.Must(uuid.NewV4()), FeedID: 9, SiteLink: "https://example.com/"}
	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeWireSample(t *testing.T) {
	decoded, err := Decode([]byte(`{"type":"refresh_feed","user_id":"8a60ad2f-6933-4a4c-88e2-3d8e1bfc0a2b","feed_id":3,"feed_url":"https://tailscale.com/blog/index.xml"}`))
	require.NoError(t, err)

	payload, ok := decoded.(RefreshFeed)
	require.True(t, ok)
	assert.Equal(t, "8a60ad2f-6933-4a4c-88e2-3d8e1bfc0a2b", payload.UserID.String())
	assert.Equal(t, int64(3), payload.FeedID)
	assert.Equal(t, "https://tailscale.com/blog/index.xml", payload.FeedURL)
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := Decode([]byte(`{"type":"mystery_job","feed_id":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job type")
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)
}
