package vault

import (
	"context"
	"errors"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/mitchellh/mapstructure"
)

const (
	approleSecretIDPath = "auth/approle/role/%s/secret-id"
	approleLoginPath    = "auth/approle/login"
)

// ErrClientInit indicates failure to initialize the Vault API client.
var ErrClientInit = errors.New("vault client initialization failed")

// ErrSecretNotFound is returned when nothing is stored at the requested path.
var ErrSecretNotFound = errors.New("vault secret not found")

type Option func(*config)

type config struct {
	address  string
	token    string
	roleID   string
	roleName string
}

type Client struct {
	api    *vault.Client
	config *config
}

// ClusterCredentials is the secret layout holding the cluster login.
// Username is optional; when set it overrides the configured one.
type ClusterCredentials struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

func WithAddress(address string) Option {
	return func(c *config) {
		if address != "" {
			c.address = address
		}
	}
}

func WithToken(token string) Option {
	return func(c *config) {
		if token != "" {
			c.token = token
		}
	}
}

func WithAppRole(roleID, roleName string) Option {
	return func(c *config) {
		c.roleID = roleID
		c.roleName = roleName
	}
}

// NewClient creates and initializes a Vault Client using provided options.
// It will perform AppRole login if roleID and roleName are both set, otherwise
// a static token (from env or WithToken) is used.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &config{
		address: os.Getenv("VAULT_ADDR"),
		token:   os.Getenv("VAULT_TOKEN"),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	apiCfg := vault.DefaultConfig()
	if apiCfg.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientInit, apiCfg.Error)
	}
	if cfg.address != "" {
		apiCfg.Address = cfg.address
	}

	api, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientInit, err)
	}

	client := &Client{api: api, config: cfg}

	if cfg.token != "" {
		client.api.SetToken(cfg.token)
	}

	if cfg.roleID != "" && cfg.roleName != "" {
		if err := client.loginAppRole(ctx); err != nil {
			return nil, fmt.Errorf("AppRole login failed: %w", err)
		}
	}

	return client, nil
}

// loginAppRole performs AppRole login using the configured roleID and roleName.
func (c *Client) loginAppRole(ctx context.Context) error {
	// Generate Secret ID
	path := fmt.Sprintf(approleSecretIDPath, c.config.roleName)
	resp, err := c.api.Logical().WriteWithContext(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("generate secret_id: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("no response from %s", path)
	}
	sid, ok := resp.Data["secret_id"].(string)
	if !ok || sid == "" {
		return fmt.Errorf("no secret_id returned from %s", path)
	}

	// Login using role_id + secret_id
	loginData := map[string]any{
		"role_id":   c.config.roleID,
		"secret_id": sid,
	}
	loginResp, err := c.api.Logical().WriteWithContext(ctx, approleLoginPath, loginData)
	if err != nil {
		return fmt.Errorf("approle login request: %w", err)
	}
	if loginResp == nil || loginResp.Auth == nil || loginResp.Auth.ClientToken == "" {
		return fmt.Errorf("no token in login response")
	}
	c.api.SetToken(loginResp.Auth.ClientToken)
	return nil
}

// GetClusterCredentials reads the cluster login stored at path.
// Both KV v1 and KV v2 (data nested under "data") layouts are accepted.
func (c *Client) GetClusterCredentials(ctx context.Context, path string) (ClusterCredentials, error) {
	secret, err := c.api.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return ClusterCredentials{}, fmt.Errorf("read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return ClusterCredentials{}, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	data := secret.Data
	if nested, ok := data["data"].(map[string]any); ok {
		data = nested
	}

	var creds ClusterCredentials
	if err := mapstructure.Decode(data, &creds); err != nil {
		return ClusterCredentials{}, fmt.Errorf("invalid data format at path %s: %w", path, err)
	}
	if creds.Password == "" {
		return ClusterCredentials{}, fmt.Errorf("no password at path %s", path)
	}
	return creds, nil
}
