package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigurationDefaults(t *testing.T) {
	cfg, err := ReadConfiguration("", nil)
	require.NoError(t, err)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "buntdb", cfg.PersistenceConfig.Type)
	assert.Equal(t, ":memory:", cfg.PersistenceConfig.DSN)
	assert.Equal(t, "local", cfg.FeedConfig.Notifier)
	assert.Equal(t, defaultSubscriberQueue, cfg.FeedConfig.SubscriberQueue)
	assert.Equal(t, defaultSuperFilter, cfg.AccessConfig.SuperFilter)
	assert.Equal(t, time.Duration(0), cfg.RetentionConfig.ClosedChatTTL)
}

func TestReadConfigurationDirectory(t *testing.T) {
	dir := t.TempDir()
	a := `log_level = "DEBUG"
super_users = ["root@example.com"]

[persistence]
type = "sqlite"
dsn = "chat.db"
`
	b := `[retention]
cron = "@hourly"
closed_chat_ttl = "72h"

[[oidc]]
name = "google"
provider_url = "https://accounts.google.com"
`
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "a.toml"), []byte(a), 0o600))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "b.toml"), []byte(b), 0o600))

	cfg, err := ReadConfiguration(dir, GetFlagSet())
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.PersistenceConfig.Type)
	assert.Equal(t, "chat.db", cfg.PersistenceConfig.DSN)
	assert.Equal(t, "@hourly", cfg.RetentionConfig.Cron)
	assert.Equal(t, 72*time.Hour, cfg.RetentionConfig.ClosedChatTTL)
	require.Len(t, cfg.OIDCConfigs, 1)
	assert.Equal(t, "google", cfg.OIDCConfigs[0].Name)
	assert.True(t, cfg.IsSuperUser("root@example.com"))
	assert.False(t, cfg.IsSuperUser("someone@example.com"))
}

func TestReadConfigurationMissingFile(t *testing.T) {
	_, err := ReadConfiguration(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.Error(t, err)
}
