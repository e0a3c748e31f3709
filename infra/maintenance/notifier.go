// Package maintenance forwards faulty connectors to the maintenance platform
// over HTTP.
package maintenance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/sitepower/auth"
	"github.com/kilianp07/sitepower/core/dispatch"
	"github.com/kilianp07/sitepower/core/logger"
)

// Config holds the maintenance platform endpoint.
type Config struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// Token is sent as a bearer token when set and OAuth is not configured.
	Token string `json:"token"`
	// OAuth enables client-credentials tokens.
	OAuth auth.Conf `json:"oauth"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("maintenance: base_url must be an http(s) URL")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("maintenance: timeout_seconds must not be negative")
	}
	return c.OAuth.Validate()
}

// Timeout returns the per-call timeout.
func (c Config) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

type notifyRequest struct {
	SiteNo    string   `json:"site_no"`
	PileSNs   []string `json:"pile_sns"`
	Timestamp string   `json:"timestamp"`
}

// Client posts notifications to {base_url}/notify.
type Client struct {
	url    string
	token  string
	creds  *auth.ClientCred
	client *http.Client
	log    logger.Logger
	now    func() time.Time
}

// New returns a Notifier for cfg. An empty base URL disables notifications.
func New(cfg Config, log logger.Logger) (dispatch.Notifier, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return dispatch.NopNotifier{}, nil
	}
	c := &Client{
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/notify",
		token:  cfg.Token,
		client: &http.Client{Timeout: cfg.Timeout()},
		log:    log,
		now:    time.Now,
	}
	if cfg.OAuth.Enabled() {
		c.creds = auth.NewClientCred(cfg.OAuth)
	}
	return c, nil
}

// Notify reports the faulty connectors of a site. With OAuth a rejected
// token is refreshed and the call retried once.
func (c *Client) Notify(ctx context.Context, siteNo string, chargerSNs []string) error {
	body, err := json.Marshal(notifyRequest{
		SiteNo:    siteNo,
		PileSNs:   chargerSNs,
		Timestamp: c.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	status, err := c.post(ctx, body)
	if status == http.StatusUnauthorized && c.creds != nil {
		if _, rerr := c.creds.ForceRefresh(ctx); rerr != nil {
			return rerr
		}
		_, err = c.post(ctx, body)
	}
	if err != nil {
		return err
	}
	c.log.Infof("maintenance notified for site %s: %v", siteNo, chargerSNs)
	return nil
}

func (c *Client) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.creds != nil:
		if err := c.creds.SetAuthHeader(req); err != nil {
			return 0, err
		}
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, b)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
