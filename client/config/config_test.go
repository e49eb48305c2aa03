package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "localhost", cfg.Server.Address)
	assert.Equal(t, 3306, cfg.Server.Port)
	assert.Equal(t, "root", cfg.Auth.Username)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:3306", cfg.Addr())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ferret-client.yml")

	content := []byte(`
server:
  address: db.internal
  port: 3307
auth:
  username: alice
  password: s3cret
database:
  name: orders
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Server.Address)
	assert.Equal(t, 3307, cfg.Server.Port)
	assert.Equal(t, "alice", cfg.Auth.Username)
	assert.Equal(t, "orders", cfg.Database.Name)
	// Defaults survive partial files.
	assert.NotZero(t, cfg.Server.DialTimeout)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/ferret-client.yml")
	assert.Error(t, err)
}

func TestLoadFromFileMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Address = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yml")

	cfg := DefaultConfig()
	cfg.Auth.Username = "bob"
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bob", loaded.Auth.Username)
}
