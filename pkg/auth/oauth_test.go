package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const testCredentials = `{"installed": {
	"client_id": "client.apps.googleusercontent.com",
	"client_secret": "shh",
	"auth_uri": "https://accounts.google.com/o/oauth2/auth",
	"token_uri": "https://oauth2.googleapis.com/token",
	"redirect_uris": ["http://localhost"]
}}`

func TestLoopbackRedirect(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost", "http://localhost:6789"},
		{"http://localhost:8080/cb", "http://localhost:6789/cb"},
		{"http://127.0.0.1:6789/oauth2callback", "http://127.0.0.1:6789/oauth2callback"},
		{"urn:ietf:wg:oauth:2.0:oob", "http://localhost:6789/oauth2callback"},
		{"https://example.com/cb", "https://example.com/cb"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, loopbackRedirect(tt.in, zap.NewNop()))
		})
	}
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", TokenFile)
	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, saveToken(path, tok))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := tokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, tok.AccessToken, got.AccessToken)
	assert.Equal(t, tok.RefreshToken, got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))
}

func TestClientNonInteractiveWithoutToken(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ClientSecretsFile), []byte(testCredentials), 0o600))

	_, err := clientFromDir(context.Background(), dir, CalendarScopes, false, nil)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestClientWithStoredToken(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ClientSecretsFile), []byte(testCredentials), 0o600))
	require.NoError(t, saveToken(filepath.Join(dir, TokenFile), &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}))

	client, err := clientFromDir(context.Background(), dir, CalendarScopes, false, nil)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestGetConfigMissingSecrets(t *testing.T) {
	_, err := GetConfig(t.TempDir(), CalendarScopes, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ClientSecretsFile)
}
