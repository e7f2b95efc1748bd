// Package tem is a client for a transactional email service speaking the
// Scaleway TEM-style HTTP API.
package tem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otLog "github.com/opentracing/opentracing-go/log"
)

// Config defines email client configuration, usable for Viper
type Config struct {
	BaseURL             string `mapstructure:"base_url"`
	ProjectID           string `mapstructure:"project_id"`
	AuthKey             string `mapstructure:"auth_key"`
	SenderEmail         string `mapstructure:"sender_email"`
	TimeoutMilliseconds int    `mapstructure:"timeout_milliseconds"`
}

type recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendEmailRequest struct {
	From      recipient   `json:"from"`
	To        []recipient `json:"to"`
	Subject   string      `json:"subject"`
	Text      string      `json:"text"`
	HTML      string      `json:"html"`
	ProjectID string      `json:"project_id"`
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	projectID  string
	authKey    string
	sender     string
	tracer     opentracing.Tracer
}

// New creates transactional email API http client
func New(cfg Config, tracer opentracing.Tracer) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse email base url: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutMilliseconds) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		projectID:  cfg.ProjectID,
		authKey:    cfg.AuthKey,
		sender:     cfg.SenderEmail,
		tracer:     tracer,
	}, nil
}

func (c *Client) SendEmail(ctx context.Context, recipientEmail, subject, htmlContent, textContent string) error {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, "send-email")
	defer span.Finish()
	ext.Component.Set(span, "tem")

	body, err := json.Marshal(sendEmailRequest{
		From:      recipient{Email: c.sender},
		To:        []recipient{{Email: recipientEmail}},
		Subject:   subject,
		Text:      textContent,
		HTML:      htmlContent,
		ProjectID: c.projectID,
	})
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return fmt.Errorf("couldn't marshal email request: %w", err)
	}
	u := c.baseURL.ResolveReference(&url.URL{Path: "/emails"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", c.authKey)
	res, err := c.httpClient.Do(req)
	if err != nil {
		span.LogFields(
			otLog.Error(err),
		)
		return fmt.Errorf("couldn't send email: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("email delivery failed, status code: %d", res.StatusCode)
		span.LogFields(
			otLog.Error(err),
		)
		return err
	}
	span.LogKV("event", "sent email")
	return nil
}
