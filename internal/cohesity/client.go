package cohesity

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kebairia/chargeback/internal/logger"
)

const (
	v1Prefix          = "/irisservices/api/v1/public/"
	v2Prefix          = "/v2/"
	accessTokensPath  = "accessTokens"
	impersonateHeader = "x-impersonate-tenant-id"
	defaultTimeout    = 60 * time.Second
	maxErrorBody      = 4096
)

// APIVersion selects the URL prefix of a request.
type APIVersion int

const (
	V1 APIVersion = 1
	V2 APIVersion = 2
)

type Option func(*options)

type options struct {
	domain     string
	password   string
	timeout    time.Duration
	insecure   bool
	httpClient *http.Client
	log        logger.Logger
}

// WithDomain sets the login domain. Defaults to "local".
func WithDomain(domain string) Option {
	return func(o *options) {
		if domain != "" {
			o.domain = domain
		}
	}
}

func WithPassword(password string) Option {
	return func(o *options) {
		o.password = password
	}
}

// WithTimeout bounds every HTTP round trip.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithInsecureSkipVerify disables TLS verification, for clusters running
// with their factory self-signed certificate.
func WithInsecureSkipVerify(insecure bool) Option {
	return func(o *options) {
		o.insecure = insecure
	}
}

// WithHTTPClient replaces the HTTP client. Timeout and TLS options are then ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Client is an authenticated session against one cluster.
type Client struct {
	baseURL    string
	username   string
	domain     string
	password   string
	httpClient *http.Client
	log        logger.Logger

	authorization string
	tenantID      string
}

// NewClient builds a Client for vip. vip is a host name, or a full base URL
// when it carries a scheme. No request is made until Authenticate.
func NewClient(vip, username string, opts ...Option) (*Client, error) {
	if vip == "" {
		return nil, fmt.Errorf("cohesity client: vip is required")
	}
	if username == "" {
		return nil, fmt.Errorf("cohesity client: username is required")
	}

	o := &options{
		domain:  "local",
		timeout: defaultTimeout,
		log:     logger.Global(),
	}
	for _, opt := range opts {
		opt(o)
	}

	base := vip
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("cohesity client: invalid vip %q: %w", vip, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("cohesity client: invalid vip %q: no host", vip)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if o.insecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
		}
		httpClient = &http.Client{Timeout: o.timeout, Transport: transport}
	}

	return &Client{
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		username:   username,
		domain:     o.domain,
		password:   o.password,
		httpClient: httpClient,
		log:        o.log.With("component", "cohesity_client"),
	}, nil
}

// TenantID returns the tenant the session is scoped to, empty for the root scope.
func (c *Client) TenantID() string {
	return c.tenantID
}

// Authenticate obtains a fresh access token. A non-empty tenantID scopes every
// following request to that tenant; an empty one returns to the root scope.
func (c *Client) Authenticate(ctx context.Context, tenantID string) error {
	body, err := json.Marshal(accessTokenRequest{
		Domain:   c.domain,
		Username: c.username,
		Password: c.password,
	})
	if err != nil {
		return fmt.Errorf("cohesity: encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(V1, accessTokensPath), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cohesity: create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cohesity: authenticate %s@%s: %w", c.username, c.domain, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("cohesity: authenticate %s@%s: %w", c.username, c.domain, err)
	}

	var token accessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("cohesity: decode access token: %w", err)
	}
	if token.AccessToken == "" {
		return malformed(accessTokensPath, "accessToken", "missing")
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}

	c.authorization = token.TokenType + " " + token.AccessToken
	c.tenantID = tenantID
	c.log.Debug("authenticated", "username", c.username, "domain", c.domain, "tenant", tenantID)
	return nil
}

// Get issues a GET for path (which may carry a query string) and decodes the
// JSON answer into out.
func (c *Client) Get(ctx context.Context, path string, version APIVersion, out any) error {
	if c.authorization == "" {
		return ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(version, path), nil)
	if err != nil {
		return fmt.Errorf("cohesity: create request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authorization)
	if c.tenantID != "" {
		req.Header.Set(impersonateHeader, c.tenantID+"/")
	}

	c.log.Debug("api request", "path", path, "version", int(version))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cohesity: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cohesity: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) url(version APIVersion, path string) string {
	prefix := v1Prefix
	if version == V2 {
		prefix = v2Prefix
	}
	return c.baseURL + prefix + strings.TrimLeft(path, "/")
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Method:     resp.Request.Method,
		Path:       resp.Request.URL.Path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
