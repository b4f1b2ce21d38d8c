// Package crm calls the CRM REST API on behalf of the signed-in agent.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/jmcleod/agentportal/internal/logging"
	"github.com/jmcleod/agentportal/session"
)

// DefaultAPIVersion is the REST API version used when none is configured.
const DefaultAPIVersion = "57.0"

const maxResponseBytes = 4 << 20

const agencyQuery = "SELECT Id,Name FROM Account"

// TokenSource supplies the current access token. session.Manager
// satisfies it.
type TokenSource interface {
	Token() (*session.SessionToken, bool)
}

// Client is a thin REST caller. It never refreshes or stores tokens.
type Client struct {
	tokens      TokenSource
	instanceURL string
	apiVersion  string
	http        *http.Client
	log         logr.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithInstanceURL pins the API host instead of the token's instance_url.
func WithInstanceURL(u string) Option {
	return func(c *Client) {
		c.instanceURL = strings.TrimRight(u, "/")
	}
}

// WithAPIVersion sets the REST API version, e.g. "57.0".
func WithAPIVersion(v string) Option {
	return func(c *Client) {
		c.apiVersion = strings.TrimPrefix(v, "v")
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// New returns a Client reading tokens from src.
func New(src TokenSource, opts ...Option) *Client {
	c := &Client{
		tokens:     src,
		apiVersion: DefaultAPIVersion,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.Resolve(c.log)
	return c
}

// ListAgencies returns every Account visible to the agent.
func (c *Client) ListAgencies(ctx context.Context) ([]Agency, error) {
	q := url.Values{"q": {agencyQuery}}
	var res queryResult[Agency]
	if err := c.get(ctx, "/query?"+q.Encode(), "Failed to fetch agencies.", &res); err != nil {
		return nil, err
	}
	if res.Records == nil {
		return []Agency{}, nil
	}
	return res.Records, nil
}

// Account fetches one Account record by id.
func (c *Client) Account(ctx context.Context, id string) (*Account, error) {
	if id == "" {
		return nil, fmt.Errorf("crm: account id is required")
	}
	var acct Account
	if err := c.get(ctx, "/sobjects/Account/"+url.PathEscape(id), "Failed to fetch account details.", &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) get(ctx context.Context, path, fallback string, out any) error {
	tok, ok := c.tokens.Token()
	if !ok || tok == nil || tok.AccessToken == "" {
		return ErrNoAccessToken
	}
	base := c.instanceURL
	if base == "" {
		base = strings.TrimRight(tok.InstanceURL, "/")
	}
	if base == "" {
		return fmt.Errorf("crm: no instance URL configured or present in token")
	}
	endpoint := base + "/services/data/v" + c.apiVersion + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("crm response: %w", err)
	}
	c.log.V(1).Info("crm call", "path", strings.SplitN(path, "?", 2)[0], "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, body, fallback)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding crm response: %w", err)
	}
	return nil
}
