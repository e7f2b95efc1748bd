package tem

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string, timeoutMilliseconds int) *Client {
	t.Helper()
	client, err := New(Config{
		BaseURL:             baseURL,
		ProjectID:           "project-1",
		AuthKey:             "auth-key",
		SenderEmail:         "servare@example.org",
		TimeoutMilliseconds: timeoutMilliseconds,
	}, opentracing.NoopTracer{})
	require.NoError(t, err)
	return client
}

func TestSendEmailPostsExpectedRequest(t *testing.T) {
	var got sendEmailRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "auth-key", r.Header.Get("X-Auth-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1000)
	err := client.SendEmail(context.Background(), "jane@example.org", "Password changed", "<p>done</p>", "done")
	require.NoError(t, err)

	assert.Equal(t, "servare@example.org", got.From.Email)
	require.Len(t, got.To, 1)
	assert.Equal(t, "jane@example.org", got.To[0].Email)
	assert.Equal(t, "Password changed", got.Subject)
	assert.Equal(t, "done", got.Text)
	assert.Equal(t, "<p>done</p>", got.HTML)
	assert.Equal(t, "project-1", got.ProjectID)
}

func TestSendEmailServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1000)
	err := client.SendEmail(context.Background(), "jane@example.org", "subject", "html", "text")
	assert.Error(t, err)
}

func TestSendEmailTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 20)
	err := client.SendEmail(context.Background(), "jane@example.org", "subject", "html", "text")
	assert.Error(t, err)
}
