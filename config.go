package feedsync

import (
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/spf13/viper"
)

// yaml configuration for the engine. all durations fall back to the
// component defaults when omitted.
type Config struct {
	Api     ApiConfig
	Channel ChannelConfig
	Engine  EngineConfig
}

type ApiConfig struct {
	Url string
}

type ChannelConfig struct {
	Url                 string
	MinReconnectTimeout time.Duration
	MaxReconnectTimeout time.Duration
	PingTimeout         time.Duration
	ReadTimeout         time.Duration
}

type EngineConfig struct {
	CommentPageSize        int
	NotificationLimit      int
	ScrollDebounceTimeout  time.Duration
	RefreshCoalesceTimeout time.Duration
}

func LoadConfig(path string, filename string) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	err := v.Unmarshal(&c)
	if err != nil {
		glog.Infof("[cf]unmarshal error = %s\n", err)
		return nil, err
	}
	return &c, nil
}

func (self *Config) EngineSettings() *FeedEngineSettings {
	settings := DefaultFeedEngineSettings()

	if self.Channel.MinReconnectTimeout != 0 {
		settings.ChannelSettings.MinReconnectTimeout = self.Channel.MinReconnectTimeout
	}
	if self.Channel.MaxReconnectTimeout != 0 {
		settings.ChannelSettings.MaxReconnectTimeout = self.Channel.MaxReconnectTimeout
	}
	if self.Channel.PingTimeout != 0 {
		settings.ChannelSettings.PingTimeout = self.Channel.PingTimeout
	}
	if self.Channel.ReadTimeout != 0 {
		settings.ChannelSettings.ReadTimeout = self.Channel.ReadTimeout
	}
	if self.Engine.CommentPageSize != 0 {
		settings.CommentPageSize = self.Engine.CommentPageSize
		settings.CommentSettings.PageSize = self.Engine.CommentPageSize
	}
	if self.Engine.NotificationLimit != 0 {
		settings.NotificationLimit = self.Engine.NotificationLimit
	}
	if self.Engine.ScrollDebounceTimeout != 0 {
		settings.CommentSettings.ScrollDebounceTimeout = self.Engine.ScrollDebounceTimeout
	}
	if self.Engine.RefreshCoalesceTimeout != 0 {
		settings.ConversationSettings.RefreshCoalesceTimeout = self.Engine.RefreshCoalesceTimeout
	}

	return settings
}
