package auth_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fivetwenty-io/cbc-client/internal/auth"
	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCredentialFile = `[default]
url = "https://defense.example.com"
token = "SECRET/KEYID"
org_key = "ABCD1234"
ssl_verify = false

[staging]
url = "https://staging.example.com"
token = "STAGESECRET/STAGEID"
org_key = "STAGE"
proxy = "http://proxy.local:3128"
ignore_system_proxy = true

[broken]
token = "no-separator"
`

func writeCredentialFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "credentials.cbc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]

		return v, ok
	}
}

func TestEnvironmentProvider(t *testing.T) {
	t.Parallel()

	t.Run("reads all variables", func(t *testing.T) {
		t.Parallel()

		provider := auth.NewEnvironmentProviderWithLookup(envLookup(map[string]string{
			"CBC_URL":        "https://env.example.com",
			"CBC_TOKEN":      "ENVSECRET/ENVID",
			"CBC_ORG_KEY":    "ENVORG",
			"CBC_SSL_VERIFY": "false",
		}))

		creds, err := provider.Credentials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "https://env.example.com", creds.URL)
		assert.Equal(t, "ENVSECRET", creds.APISecretKey)
		assert.Equal(t, "ENVID", creds.APIID)
		assert.Equal(t, "ENVORG", creds.OrgKey)
		require.NotNil(t, creds.SSLVerify)
		assert.False(t, *creds.SSLVerify)
	})

	t.Run("malformed token", func(t *testing.T) {
		t.Parallel()

		provider := auth.NewEnvironmentProviderWithLookup(envLookup(map[string]string{"CBC_TOKEN": "bad"}))

		_, err := provider.Credentials(context.Background())

		var credErr *cbc.CredentialError
		require.ErrorAs(t, err, &credErr)
		assert.Equal(t, "token", credErr.Field)
	})

	t.Run("nothing set", func(t *testing.T) {
		t.Parallel()

		provider := auth.NewEnvironmentProviderWithLookup(envLookup(nil))

		creds, err := provider.Credentials(context.Background())
		require.NoError(t, err)
		assert.Empty(t, creds.URL)
		assert.Nil(t, creds.SSLVerify)
	})
}

func TestFileProvider(t *testing.T) {
	t.Parallel()

	path := writeCredentialFile(t, testCredentialFile)

	t.Run("default profile", func(t *testing.T) {
		t.Parallel()

		creds, err := auth.NewFileProvider(path, "").Credentials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "https://defense.example.com", creds.URL)
		assert.Equal(t, "SECRET", creds.APISecretKey)
		assert.Equal(t, "KEYID", creds.APIID)
		assert.Equal(t, "ABCD1234", creds.OrgKey)
		require.NotNil(t, creds.SSLVerify)
		assert.False(t, *creds.SSLVerify)
	})

	t.Run("named profile", func(t *testing.T) {
		t.Parallel()

		creds, err := auth.NewFileProvider(path, "staging").Credentials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "STAGE", creds.OrgKey)
		assert.Equal(t, "http://proxy.local:3128", creds.Proxy)
		assert.True(t, creds.IgnoreSystemProxy)
		assert.Nil(t, creds.SSLVerify)
	})

	t.Run("unknown profile is empty", func(t *testing.T) {
		t.Parallel()

		creds, err := auth.NewFileProvider(path, "missing").Credentials(context.Background())
		require.NoError(t, err)
		assert.Empty(t, creds.URL)
	})

	t.Run("malformed token", func(t *testing.T) {
		t.Parallel()

		_, err := auth.NewFileProvider(path, "broken").Credentials(context.Background())

		var credErr *cbc.CredentialError
		require.ErrorAs(t, err, &credErr)
		assert.Equal(t, "token", credErr.Field)
	})

	t.Run("missing file is empty", func(t *testing.T) {
		t.Parallel()

		provider := auth.NewFileProvider(filepath.Join(t.TempDir(), "nope"), "")

		creds, err := provider.Credentials(context.Background())
		require.NoError(t, err)
		assert.Empty(t, creds.Token())
	})
}

func TestChainProvider(t *testing.T) {
	t.Parallel()

	path := writeCredentialFile(t, testCredentialFile)

	chain := auth.NewChainProvider(
		auth.NewStaticProvider(auth.Credentials{OrgKey: "EXPLICIT"}),
		auth.NewEnvironmentProviderWithLookup(envLookup(map[string]string{"CBC_URL": "https://env.example.com"})),
		auth.NewFileProvider(path, "default"),
	)

	creds, err := auth.Resolve(context.Background(), chain)
	require.NoError(t, err)
	assert.Equal(t, "EXPLICIT", creds.OrgKey)
	assert.Equal(t, "https://env.example.com", creds.URL)
	assert.Equal(t, "SECRET/KEYID", creds.Token())
	assert.Contains(t, chain.Name(), "environment")
}

func TestResolve_MissingField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		creds auth.Credentials
		field string
	}{
		{name: "missing url", creds: auth.Credentials{OrgKey: "O", APIID: "I", APISecretKey: "S"}, field: "url"},
		{name: "missing org key", creds: auth.Credentials{URL: "u", APIID: "I", APISecretKey: "S"}, field: "org_key"},
		{name: "missing api id", creds: auth.Credentials{URL: "u", OrgKey: "O", APISecretKey: "S"}, field: "api_id"},
		{name: "missing secret", creds: auth.Credentials{URL: "u", OrgKey: "O", APIID: "I"}, field: "api_secret_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := auth.Resolve(context.Background(), auth.NewStaticProvider(tt.creds))

			var credErr *cbc.CredentialError
			require.ErrorAs(t, err, &credErr)
			assert.Equal(t, tt.field, credErr.Field)
			assert.Equal(t, "static", credErr.Source)

			if tt.field == "url" {
				require.ErrorIs(t, err, cbc.ErrURLRequired)
			}
		})
	}
}

type recordingPersister struct {
	profile string
	token   string
	err     error
}

func (p *recordingPersister) UpdateAPIToken(profile, token string) error {
	p.profile = profile
	p.token = token

	return p.err
}

func TestConfigTokenManager(t *testing.T) {
	t.Parallel()

	t.Run("persists and swaps", func(t *testing.T) {
		t.Parallel()

		persister := &recordingPersister{}
		manager := auth.NewConfigTokenManager(auth.NewAPIKeyTokenManager("OLD", "ID"), persister, "prod")

		require.NoError(t, manager.Persist("NEW/ID2"))
		assert.Equal(t, "prod", persister.profile)
		assert.Equal(t, "NEW/ID2", persister.token)

		token, err := manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "NEW/ID2", token)
	})

	t.Run("persister failure keeps old key", func(t *testing.T) {
		t.Parallel()

		persister := &recordingPersister{err: errors.New("disk full")}
		manager := auth.NewConfigTokenManager(auth.NewAPIKeyTokenManager("OLD", "ID"), persister, "prod")

		require.Error(t, manager.Persist("NEW/ID2"))

		token, err := manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "OLD/ID", token)
	})

	t.Run("no persister", func(t *testing.T) {
		t.Parallel()

		manager := auth.NewConfigTokenManager(auth.NewAPIKeyTokenManager("OLD", "ID"), nil, "prod")
		require.ErrorIs(t, manager.Persist("NEW/ID2"), auth.ErrNoConfigPersister)
		require.ErrorIs(t, manager.Persist("bad"), auth.ErrMalformedToken)
	})
}

func TestFilePersister(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "credentials.cbc")
	persister := auth.NewFilePersister(path)

	verify := true
	require.NoError(t, persister.UpdateProfile("lab", &auth.Credentials{
		URL:          "https://lab.example.com",
		APISecretKey: "LABSECRET",
		APIID:        "LABID",
		OrgKey:       "LAB",
		SSLVerify:    &verify,
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	creds, err := auth.NewFileProvider(path, "lab").Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://lab.example.com", creds.URL)
	assert.Equal(t, "LABSECRET/LABID", creds.Token())
	assert.Equal(t, "LAB", creds.OrgKey)

	require.NoError(t, persister.SetValue("lab", "org_key", "LAB2"))

	creds, err = auth.NewFileProvider(path, "lab").Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "LAB2", creds.OrgKey)
	assert.Equal(t, "LABSECRET/LABID", creds.Token(), "partial update keeps the token")
}

func TestFilePersister_ExistingFile(t *testing.T) {
	t.Parallel()

	path := writeCredentialFile(t, testCredentialFile)

	require.NoError(t, auth.NewFilePersister(path).UpdateAPIToken("staging", "NEWSECRET/NEWID"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[staging]")
	assert.Contains(t, string(data), "NEWSECRET/NEWID")

	creds, err := auth.NewFileProvider(path, "staging").Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "NEWSECRET/NEWID", creds.Token())
	assert.Equal(t, "http://proxy.local:3128", creds.Proxy)

	creds, err = auth.NewFileProvider(path, "default").Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SECRET/KEYID", creds.Token(), "other profiles survive the rewrite")
}

func TestFileProvider_Watch(t *testing.T) {
	t.Parallel()

	path := writeCredentialFile(t, testCredentialFile)
	provider := auth.NewFileProvider(path, "default")

	changes := make(chan *auth.Credentials, 16)
	require.NoError(t, provider.Watch(func(creds *auth.Credentials, err error) {
		if err != nil {
			return
		}

		select {
		case changes <- creds:
		default:
		}
	}))

	updated := `[default]
url = "https://defense.example.com"
token = "ROTATED/KEYID"
org_key = "ABCD1234"
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	deadline := time.After(5 * time.Second)

	for {
		select {
		case creds := <-changes:
			if creds.APISecretKey == "ROTATED" {
				return
			}
		case <-deadline:
			t.Fatal("credentials change was not observed")
		}
	}
}
