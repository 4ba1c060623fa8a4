// Package cbcclient provides the main entry point for creating platform API handles.
package cbcclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/cbc-client/internal/auth"
	"github.com/fivetwenty-io/cbc-client/internal/client"
	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
	"github.com/fivetwenty-io/cbc-client/pkg/platform"
)

// New resolves credentials, builds the HTTP transport and returns the
// platform API. Credentials missing from config are taken from the CBC_*
// environment variables, then from the credentials file profile.
func New(ctx context.Context, config *cbc.Config, opts ...platform.Option) (*platform.API, error) {
	if config == nil {
		return nil, cbc.ErrConfigRequired
	}

	resolved := *config

	fileProvider := auth.NewFileProvider(config.CredentialFile, config.Profile)

	creds, err := auth.Resolve(ctx, auth.NewChainProvider(
		auth.NewStaticProvider(auth.Credentials{
			URL:               config.URL,
			APIID:             config.APIID,
			APISecretKey:      config.APISecretKey,
			OrgKey:            config.OrgKey,
			SSLVerify:         config.SSLVerify,
			Proxy:             config.Proxy,
			IgnoreSystemProxy: config.IgnoreSystemProxy,
		}),
		auth.NewEnvironmentProvider(),
		fileProvider,
	))
	if err != nil {
		return nil, fmt.Errorf("resolving credentials: %w", err)
	}

	resolved.URL = normalizeURL(creds.URL)
	resolved.APIID = creds.APIID
	resolved.APISecretKey = creds.APISecretKey
	resolved.OrgKey = creds.OrgKey
	resolved.Proxy = creds.Proxy
	resolved.IgnoreSystemProxy = creds.IgnoreSystemProxy

	resolved.SSLVerify = creds.SSLVerify
	if resolved.SSLVerify == nil {
		verify := true
		resolved.SSLVerify = &verify
	}

	transport, err := client.New(ctx, &resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	if config.WatchCredentials {
		err = watchCredentials(fileProvider, transport)
		if err != nil {
			_ = transport.Close()

			return nil, err
		}
	}

	return platform.New(transport, opts...), nil
}

// NewWithToken creates an API handle from a URL, a "<secret>/<id>" token and an org key.
func NewWithToken(ctx context.Context, url, token, orgKey string, opts ...platform.Option) (*platform.API, error) {
	secret, id, err := auth.SplitToken(token)
	if err != nil {
		return nil, &cbc.CredentialError{Source: "token", Field: "token", Err: err}
	}

	return New(ctx, &cbc.Config{
		URL:          url,
		APISecretKey: secret,
		APIID:        id,
		OrgKey:       orgKey,
	}, opts...)
}

// NewFromProfile creates an API handle from one credentials file profile.
func NewFromProfile(ctx context.Context, profile string, opts ...platform.Option) (*platform.API, error) {
	return New(ctx, &cbc.Config{Profile: profile}, opts...)
}

func normalizeURL(raw string) string {
	url := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	return url
}

// watchCredentials swaps the API key on the live transport when the
// credentials file changes. Other fields need a new client.
func watchCredentials(provider *auth.FileProvider, transport *client.Client) error {
	logger := transport.Logger()

	err := provider.Watch(func(creds *auth.Credentials, err error) {
		if err != nil {
			logger.Warn("Reloading credentials failed", map[string]interface{}{
				"path":  provider.Path(),
				"error": err.Error(),
			})

			return
		}

		if creds.Token() == "" {
			return
		}

		transport.UpdateCredentials(creds.APISecretKey, creds.APIID)
	})
	if err != nil {
		return fmt.Errorf("watching credentials: %w", err)
	}

	return nil
}
