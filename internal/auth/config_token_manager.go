package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Static errors for err113 compliance.
var (
	ErrNoConfigPersister = errors.New("no config persister configured")
)

// ConfigPersister stores a new API key for a profile.
type ConfigPersister interface {
	UpdateAPIToken(profile, token string) error
}

// ConfigTokenManager wraps APIKeyTokenManager and persists key changes.
type ConfigTokenManager struct {
	keys            *APIKeyTokenManager
	configPersister ConfigPersister
	profile         string
	mutex           sync.Mutex
}

// NewConfigTokenManager creates a token manager that writes SetToken calls
// through to configPersister.
func NewConfigTokenManager(keys *APIKeyTokenManager, configPersister ConfigPersister, profile string) *ConfigTokenManager {
	return &ConfigTokenManager{
		keys:            keys,
		configPersister: configPersister,
		profile:         profile,
	}
}

// GetToken returns the current key.
func (m *ConfigTokenManager) GetToken(ctx context.Context) (string, error) {
	return m.keys.GetToken(ctx)
}

// RefreshToken is not supported for API keys.
func (m *ConfigTokenManager) RefreshToken(ctx context.Context) error {
	return m.keys.RefreshToken(ctx)
}

// SetToken swaps the key in memory; call Persist to save it.
func (m *ConfigTokenManager) SetToken(token string, expiresAt time.Time) {
	m.keys.SetToken(token, expiresAt)
}

// Persist validates token, swaps it in and saves it for the profile.
func (m *ConfigTokenManager) Persist(token string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	_, _, err := SplitToken(token)
	if err != nil {
		return err
	}

	if m.configPersister == nil {
		return ErrNoConfigPersister
	}

	err = m.configPersister.UpdateAPIToken(m.profile, token)
	if err != nil {
		return fmt.Errorf("failed to update API token: %w", err)
	}

	m.keys.SetToken(token, time.Time{})

	return nil
}

// FilePersister writes tokens into a TOML credentials file.
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister for path; empty selects the default file.
func NewFilePersister(path string) *FilePersister {
	if path == "" {
		path = DefaultCredentialFile()
	}

	return &FilePersister{path: path}
}

// Path returns the credentials file path.
func (p *FilePersister) Path() string { return p.path }

// UpdateAPIToken sets <profile>.token, creating the file if needed.
func (p *FilePersister) UpdateAPIToken(profile, token string) error {
	return p.update(profile, map[string]any{"token": token})
}

// SetValue sets one key of a profile.
func (p *FilePersister) SetValue(profile, key string, value any) error {
	return p.update(profile, map[string]any{key: value})
}

// UpdateProfile writes every non-empty field of creds under profile.
func (p *FilePersister) UpdateProfile(profile string, creds *Credentials) error {
	values := map[string]any{}

	if token := creds.Token(); token != "" {
		values["token"] = token
	}

	if creds.URL != "" {
		values["url"] = creds.URL
	}

	if creds.OrgKey != "" {
		values["org_key"] = creds.OrgKey
	}

	if creds.SSLVerify != nil {
		values["ssl_verify"] = *creds.SSLVerify
	}

	if creds.Proxy != "" {
		values["proxy"] = creds.Proxy
	}

	if creds.IgnoreSystemProxy {
		values["ignore_system_proxy"] = true
	}

	return p.update(profile, values)
}

func (p *FilePersister) update(profile string, values map[string]any) error {
	if profile == "" {
		profile = constants.DefaultProfile
	}

	v := viper.New()
	v.SetConfigFile(p.path)
	v.SetConfigType("toml")

	if _, err := os.Stat(p.path); err == nil {
		err = v.ReadInConfig()
		if err != nil {
			return fmt.Errorf("reading credentials file: %w", err)
		}
	}

	for key, value := range values {
		v.Set(profile+"."+key, value)
	}

	err := os.MkdirAll(filepath.Dir(p.path), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	// viper picks the writer from the file extension, which .cbc is not.
	data, err := toml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("encoding credentials file: %w", err)
	}

	err = os.WriteFile(p.path, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}

	err = os.Chmod(p.path, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("setting credentials file permissions: %w", err)
	}

	return nil
}
