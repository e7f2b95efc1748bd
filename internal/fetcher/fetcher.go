// Package fetcher provides the HTTP client used for feed, site and favicon
// retrieval. One client is shared by the job runner and the web handlers.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otLog "github.com/opentracing/opentracing-go/log"
)

const (
	userAgent = "Servare/1.0"
	// maxRedirects bounds redirect chains, some sites loop forever
	maxRedirects = 10
)

// Config mapstructure is for Viper to unmarshal
type Config struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// StatusError is returned for HTTP responses outside the 2xx range
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s returned status %d", e.URL, e.StatusCode)
}

// Client is a cookie aware HTTP client. It is safe for concurrent use,
// all requests share one cookie jar.
type Client struct {
	httpClient *http.Client
	tracer     opentracing.Tracer
}

// New creates fetcher client with cookie jar and bounded redirects
func New(cfg Config, tracer opentracing.Tracer) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't create cookie jar: %w", err)
	}
	return &Client{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		tracer: tracer,
	}, nil
}

func (c *Client) setupTracingSpan(ctx context.Context, name string, url string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, name)
	ext.Component.Set(span, "fetcher")
	ext.HTTPMethod.Set(span, http.MethodGet)
	ext.HTTPUrl.Set(span, url)
	return span, ctx
}

// Fetch GETs url and returns the full response body.
// Responses outside the 2xx range are returned as *StatusError.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	span, ctx := c.setupTracingSpan(ctx, "fetch-url", url)
	defer span.Finish()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.LogFields(otLog.Error(err))
		return nil, fmt.Errorf("couldn't construct request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	response, err := c.httpClient.Do(req)
	if err != nil {
		span.LogFields(otLog.Error(err))
		return nil, fmt.Errorf("couldn't fetch %s: %w", url, err)
	}
	defer response.Body.Close()
	ext.HTTPStatusCode.Set(span, uint16(response.StatusCode))
	if response.StatusCode < http.StatusOK || response.StatusCode > 299 {
		err := &StatusError{URL: url, StatusCode: response.StatusCode}
		span.LogFields(otLog.Error(err))
		return nil, err
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		span.LogFields(otLog.Error(err))
		return nil, fmt.Errorf("couldn't read response body of %s: %w", url, err)
	}
	span.LogKV("event", "fetched", "bytes", len(body))
	return body, nil
}
