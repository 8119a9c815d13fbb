// Package secrets loads credentials such as the Conversions API token and
// the admin key from a HashiCorp Vault KV mount into the configuration.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/knadh/koanf/maps"
)

// VaultConfig locates the secret. It is read from the environment because it
// has to be known before the rest of the configuration is loaded.
type VaultConfig struct {
	Enabled   bool
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
}

// LoadVaultConfigFromEnv reads the VAULT_* variables.
func LoadVaultConfigFromEnv() VaultConfig {
	cfg := VaultConfig{
		Enabled:   strings.EqualFold(os.Getenv("VAULT_ENABLED"), "true"),
		Addr:      os.Getenv("VAULT_ADDR"),
		Token:     os.Getenv("VAULT_TOKEN"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Mount:     os.Getenv("VAULT_MOUNT"),
		Path:      os.Getenv("VAULT_PATH"),
		KVVersion: 2,
		Timeout:   5 * time.Second,
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if val := os.Getenv("VAULT_KV_VERSION"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			cfg.KVVersion = parsed
		}
	}
	if val := os.Getenv("VAULT_TIMEOUT_MS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			cfg.Timeout = time.Duration(parsed) * time.Millisecond
		}
	}
	return cfg
}

// VaultProvider is a koanf.Provider over one KV secret. Secret keys use the
// environment variable names (FB_ACCESS_TOKEN, ADMIN_PASSWORD, ...) and are
// mapped to config paths by transform; keys it maps to "" are dropped.
type VaultProvider struct {
	cfg       VaultConfig
	transform func(string) string
	client    *http.Client
}

// Provider returns a koanf provider for cfg.
func Provider(cfg VaultConfig, transform func(string) string) *VaultProvider {
	return &VaultProvider{
		cfg:       cfg,
		transform: transform,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

// ReadBytes is not supported.
func (p *VaultProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("vault provider does not support this method")
}

// Read fetches the secret and returns it as a nested config map.
func (p *VaultProvider) Read() (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	data, err := Fetch(ctx, p.client, p.cfg)
	if err != nil {
		return nil, err
	}

	flat := make(map[string]interface{}, len(data))
	for key, value := range data {
		path := key
		if p.transform != nil {
			path = p.transform(key)
		}
		if path == "" {
			continue
		}
		flat[path] = value
	}
	return maps.Unflatten(flat, "."), nil
}

// Fetch reads the key/value pairs of the configured secret.
func Fetch(ctx context.Context, client *http.Client, cfg VaultConfig) (map[string]string, error) {
	if cfg.Addr == "" || cfg.Token == "" || cfg.Path == "" {
		return nil, errors.New("vault configuration incomplete (VAULT_ADDR, VAULT_TOKEN, VAULT_PATH)")
	}

	url, err := buildVaultURL(cfg.Addr, cfg.Mount, cfg.Path, cfg.KVVersion)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Vault-Token", cfg.Token)
	if cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", cfg.Namespace)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vault fetch failed: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode vault response: %w", err)
	}

	raw := payload.Data
	if cfg.KVVersion != 1 {
		inner, ok := raw["data"]
		if !ok {
			return nil, errors.New("vault response missing data for KV v2")
		}
		raw = nil
		if err := json.Unmarshal(inner, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode vault secret: %w", err)
		}
	}
	if raw == nil {
		return nil, errors.New("vault response missing data")
	}

	out := make(map[string]string, len(raw))
	for key, value := range raw {
		out[key] = stringifyVaultValue(value)
	}
	return out, nil
}

func buildVaultURL(addr, mount, path string, kvVersion int) (string, error) {
	addr = strings.TrimRight(addr, "/")
	mount = strings.Trim(mount, "/")
	path = strings.TrimLeft(path, "/")
	if addr == "" || mount == "" || path == "" {
		return "", errors.New("vault address, mount, and path must be set")
	}
	if kvVersion == 1 {
		return fmt.Sprintf("%s/v1/%s/%s", addr, mount, path), nil
	}
	return fmt.Sprintf("%s/v1/%s/data/%s", addr, mount, path), nil
}

// stringifyVaultValue returns strings unquoted and anything else as JSON.
func stringifyVaultValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}
