package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Credentials holds everything needed to reach one organization.
type Credentials struct {
	URL               string
	APIID             string
	APISecretKey      string
	OrgKey            string
	SSLVerify         *bool
	Proxy             string
	IgnoreSystemProxy bool
}

// Token returns the "<secret>/<id>" form of the API key.
func (c *Credentials) Token() string {
	if c.APISecretKey == "" || c.APIID == "" {
		return ""
	}

	return c.APISecretKey + "/" + c.APIID
}

// Merge fills fields that are empty in c from other.
func (c *Credentials) Merge(other *Credentials) {
	if other == nil {
		return
	}

	if c.URL == "" {
		c.URL = other.URL
	}

	if c.APIID == "" && c.APISecretKey == "" {
		c.APIID = other.APIID
		c.APISecretKey = other.APISecretKey
	}

	if c.OrgKey == "" {
		c.OrgKey = other.OrgKey
	}

	if c.SSLVerify == nil {
		c.SSLVerify = other.SSLVerify
	}

	if c.Proxy == "" {
		c.Proxy = other.Proxy
	}

	c.IgnoreSystemProxy = c.IgnoreSystemProxy || other.IgnoreSystemProxy
}

// Validate reports the first missing required field.
func (c *Credentials) Validate(source string) error {
	required := []struct {
		field string
		value string
		err   error
	}{
		{"url", c.URL, cbc.ErrURLRequired},
		{"org_key", c.OrgKey, cbc.ErrOrgKeyRequired},
		{"api_id", c.APIID, nil},
		{"api_secret_key", c.APISecretKey, nil},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &cbc.CredentialError{Source: source, Field: r.field, Err: r.err}
		}
	}

	return nil
}

// Provider resolves credentials from one source.
type Provider interface {
	Name() string
	Credentials(ctx context.Context) (*Credentials, error)
}

// StaticProvider returns fixed credentials.
type StaticProvider struct {
	creds Credentials
}

// NewStaticProvider creates a provider around creds.
func NewStaticProvider(creds Credentials) *StaticProvider {
	return &StaticProvider{creds: creds}
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) Credentials(ctx context.Context) (*Credentials, error) {
	creds := p.creds

	return &creds, nil
}

// EnvironmentProvider reads CBC_URL, CBC_TOKEN, CBC_ORG_KEY and CBC_SSL_VERIFY.
type EnvironmentProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvironmentProvider creates a provider over the process environment.
func NewEnvironmentProvider() *EnvironmentProvider {
	return &EnvironmentProvider{lookup: os.LookupEnv}
}

// NewEnvironmentProviderWithLookup creates a provider over a custom lookup.
func NewEnvironmentProviderWithLookup(lookup func(string) (string, bool)) *EnvironmentProvider {
	return &EnvironmentProvider{lookup: lookup}
}

func (p *EnvironmentProvider) Name() string { return "environment" }

func (p *EnvironmentProvider) Credentials(ctx context.Context) (*Credentials, error) {
	creds := &Credentials{}

	if v, ok := p.lookup(constants.EnvURL); ok {
		creds.URL = strings.TrimSpace(v)
	}

	if v, ok := p.lookup(constants.EnvOrgKey); ok {
		creds.OrgKey = strings.TrimSpace(v)
	}

	if v, ok := p.lookup(constants.EnvToken); ok && strings.TrimSpace(v) != "" {
		secret, id, err := SplitToken(v)
		if err != nil {
			return nil, &cbc.CredentialError{Source: p.Name(), Field: "token", Err: err}
		}

		creds.APISecretKey = secret
		creds.APIID = id
	}

	if v, ok := p.lookup(constants.EnvSSLVerify); ok && v != "" {
		verify, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &cbc.CredentialError{Source: p.Name(), Field: "ssl_verify", Err: err}
		}

		creds.SSLVerify = &verify
	}

	return creds, nil
}

// FileProvider reads one profile from the credentials file.
//
// The file is TOML with one table per profile:
//
//	[default]
//	url = "https://defense.example.com"
//	token = "SECRET/ID"
//	org_key = "ABCD1234"
//	ssl_verify = true
type FileProvider struct {
	path    string
	profile string

	mutex sync.Mutex
	v     *viper.Viper
}

// NewFileProvider creates a provider for profile in path. Empty values select
// ~/.carbonblack/credentials.cbc and the "default" profile.
func NewFileProvider(path, profile string) *FileProvider {
	if path == "" {
		path = DefaultCredentialFile()
	}

	if profile == "" {
		profile = constants.DefaultProfile
	}

	return &FileProvider{path: path, profile: profile}
}

// DefaultCredentialFile returns the credentials file under the home directory.
func DefaultCredentialFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return constants.DefaultCredentialFile
	}

	return filepath.Join(home, constants.DefaultCredentialFile)
}

func (p *FileProvider) Name() string { return "file:" + p.path }

// Path returns the credentials file path.
func (p *FileProvider) Path() string { return p.path }

func (p *FileProvider) load() (*viper.Viper, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.v != nil {
		return p.v, nil
	}

	v := viper.New()
	v.SetConfigFile(p.path)
	v.SetConfigType("toml")

	err := v.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	p.v = v

	return v, nil
}

func (p *FileProvider) Credentials(ctx context.Context) (*Credentials, error) {
	if _, err := os.Stat(p.path); os.IsNotExist(err) {
		return &Credentials{}, nil
	}

	v, err := p.load()
	if err != nil {
		return nil, &cbc.CredentialError{Source: p.Name(), Err: err}
	}

	return p.profileCredentials(v)
}

func (p *FileProvider) profileCredentials(v *viper.Viper) (*Credentials, error) {
	section := v.Sub(p.profile)
	if section == nil {
		return &Credentials{}, nil
	}

	creds := &Credentials{
		URL:               section.GetString("url"),
		OrgKey:            section.GetString("org_key"),
		Proxy:             section.GetString("proxy"),
		IgnoreSystemProxy: section.GetBool("ignore_system_proxy"),
	}

	if section.IsSet("ssl_verify") {
		verify := section.GetBool("ssl_verify")
		creds.SSLVerify = &verify
	}

	if token := section.GetString("token"); token != "" {
		secret, id, err := SplitToken(token)
		if err != nil {
			return nil, &cbc.CredentialError{Source: p.Name(), Field: "token", Err: err}
		}

		creds.APISecretKey = secret
		creds.APIID = id
	}

	return creds, nil
}

// Watch calls onChange with the re-read profile whenever the file changes.
func (p *FileProvider) Watch(onChange func(*Credentials, error)) error {
	v, err := p.load()
	if err != nil {
		return &cbc.CredentialError{Source: p.Name(), Err: err}
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}

		onChange(p.profileCredentials(v))
	})
	v.WatchConfig()

	return nil
}

// ChainProvider merges providers in order; earlier providers win per field.
type ChainProvider struct {
	providers []Provider
}

// NewChainProvider creates a chain.
func NewChainProvider(providers ...Provider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

func (p *ChainProvider) Name() string {
	names := make([]string, 0, len(p.providers))
	for _, provider := range p.providers {
		names = append(names, provider.Name())
	}

	return "chain(" + strings.Join(names, ",") + ")"
}

func (p *ChainProvider) Credentials(ctx context.Context) (*Credentials, error) {
	merged := &Credentials{}

	for _, provider := range p.providers {
		creds, err := provider.Credentials(ctx)
		if err != nil {
			return nil, err
		}

		merged.Merge(creds)
	}

	return merged, nil
}

// Resolve runs provider and validates the result.
func Resolve(ctx context.Context, provider Provider) (*Credentials, error) {
	creds, err := provider.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	err = creds.Validate(provider.Name())
	if err != nil {
		return nil, err
	}

	return creds, nil
}
