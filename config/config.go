package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env          string `env:"ENVIRONMENT"`
	ServerPort   int    `env:"PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"streamwatch.sqlite"`

	Discord struct {
		BotToken  string `env:"DISCORD_TOKEN"`
		BotName   string `env:"BOT_NAME" envDefault:"streamwatch"`
		AvatarURL string `env:"BOT_AVATAR_URL"`
	}

	Twitch struct {
		ClientID      string `env:"TWITCH_CLIENT_ID"`
		ClientSecret  string `env:"TWITCH_CLIENT_SECRET"`
		WebhookURL    string `env:"WEBHOOK_URL"`
		WebhookSecret string `env:"WEBHOOK_SECRET"`
	}

	log *zap.Logger
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	env.Parse(cfg)

	if err := cfg.validate(); err != nil {
		if cfg.Env == "production" {
			cfg.log.Sugar().Panic(err)
		} else {
			cfg.log.Sugar().Infof("%s (ignored outside production env)", err)
		}
	}

	if cfg.Twitch.WebhookSecret == "" {
		// EventSub requires a secret on every subscription even though
		// signature checks happen upstream of this process.
		cfg.Twitch.WebhookSecret = uuid.NewString()
		cfg.log.Sugar().Info("WEBHOOK_SECRET not set, generated a per-process secret")
	}

	return cfg
}

func (cfg *Config) validate() error {
	switch {
	case cfg.Discord.BotToken == "":
		return errors.New("DISCORD_TOKEN envvar must be populated")
	case cfg.Twitch.ClientID == "" || cfg.Twitch.ClientSecret == "":
		return errors.New("TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET envvars must be populated")
	case cfg.Twitch.WebhookURL == "":
		return errors.New("WEBHOOK_URL envvar must be populated -- Twitch delivers stream.online callbacks there")
	}
	return nil
}
