// ABOUTME: Tests for config parsing
// ABOUTME: Covers env expansion, defaults, duration parsing and validation failures

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
[matrix]
homeserver = "https://matrix.example.org"
user_id = "@warden:example.org"
access_token = "secret-token"
`

func TestParse_Minimal(t *testing.T) {
	cfg, err := Parse(minimalConfig)
	require.NoError(t, err)

	assert.Equal(t, "https://matrix.example.org", cfg.Matrix.Homeserver)
	assert.Equal(t, DefaultDifficulty, cfg.Captcha.Difficulty)
	assert.Equal(t, DefaultMaxResponseTime, cfg.Captcha.MaxResponseTime)
	assert.Equal(t, DefaultSweepInterval, cfg.Captcha.SweepInterval)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParse_Full(t *testing.T) {
	cfg, err := Parse(`
[matrix]
homeserver = "https://matrix.example.org"
user_id = "@warden:example.org"
access_token = "secret-token"
allowed_rooms = ["!a:example.org"]

[captcha]
difficulty = "hard"
max_response_time = "120s"
sweep_interval = "30s"

[database]
path = "/tmp/warden.db"

[logging]
level = "debug"
format = "json"
`)
	require.NoError(t, err)

	assert.Equal(t, "hard", cfg.Captcha.Difficulty)
	assert.Equal(t, 120*time.Second, cfg.Captcha.MaxResponseTime)
	assert.Equal(t, 30*time.Second, cfg.Captcha.SweepInterval)
	assert.Equal(t, []string{"!a:example.org"}, cfg.Matrix.AllowedRooms)
	assert.Equal(t, "/tmp/warden.db", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_WARDEN_TOKEN", "from-env")

	cfg, err := Parse(`
[matrix]
homeserver = "https://matrix.example.org"
user_id = "@warden:example.org"
access_token = "${TEST_WARDEN_TOKEN}"
`)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Matrix.AccessToken)
}

func TestParse_MissingToken(t *testing.T) {
	_, err := Parse(`
[matrix]
homeserver = "https://matrix.example.org"
user_id = "@warden:example.org"
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token")
}

func TestParse_MissingHomeserver(t *testing.T) {
	_, err := Parse(`
[matrix]
user_id = "@warden:example.org"
access_token = "secret"
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "homeserver")
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse(minimalConfig + `
[captcha]
max_response_time = "five minutes"
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_response_time")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatewarden.toml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "@warden:example.org", cfg.Matrix.UserID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
