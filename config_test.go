package feedsync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestLoadAndParseConfig(t *testing.T) {
	dir := t.TempDir()

	configYaml := `
api:
  url: https://api.example.com
channel:
  url: wss://push.example.com/events
  minreconnecttimeout: 2s
  maxreconnecttimeout: 30s
engine:
  commentpagesize: 25
  notificationlimit: 100
  scrolldebouncetimeout: 150ms
`
	err := os.WriteFile(filepath.Join(dir, "feedsync.yaml"), []byte(configYaml), 0644)
	assert.Equal(t, err, nil)

	v, err := LoadConfig(dir, "feedsync")
	assert.Equal(t, err, nil)

	config, err := ParseConfig(v)
	assert.Equal(t, err, nil)
	assert.Equal(t, "https://api.example.com", config.Api.Url)
	assert.Equal(t, "wss://push.example.com/events", config.Channel.Url)
	assert.Equal(t, 2*time.Second, config.Channel.MinReconnectTimeout)
	assert.Equal(t, 25, config.Engine.CommentPageSize)

	settings := config.EngineSettings()
	assert.Equal(t, 2*time.Second, settings.ChannelSettings.MinReconnectTimeout)
	assert.Equal(t, 30*time.Second, settings.ChannelSettings.MaxReconnectTimeout)
	assert.Equal(t, 25, settings.CommentPageSize)
	assert.Equal(t, 25, settings.CommentSettings.PageSize)
	assert.Equal(t, 100, settings.NotificationLimit)
	assert.Equal(t, 150*time.Millisecond, settings.CommentSettings.ScrollDebounceTimeout)
	// omitted values keep the component defaults
	assert.Equal(t, DefaultPlatformChannelSettings().PingTimeout, settings.ChannelSettings.PingTimeout)
	assert.Equal(t, DefaultConversationStoreSettings().RefreshCoalesceTimeout, settings.ConversationSettings.RefreshCoalesceTimeout)
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(t.TempDir(), "nope")
	assert.NotEqual(t, err, nil)
}
