package senders

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/snipebot/streamwatch/config"
	"github.com/snipebot/streamwatch/lib/embeds"
)

// ErrChannelUnavailable reports that the destination channel no longer
// resolves (deleted or inaccessible). Callers skip these silently.
var ErrChannelUnavailable = errors.New("senders: channel unavailable")

type Sender interface {
	SendEmbed(ctx context.Context, channelID string, embed embeds.Embed) error
	SendText(ctx context.Context, channelID, content string) error
	CanMentionEveryone(ctx context.Context, guildID string) (bool, error)
}

type Registry map[string]Sender

func NewSenderRegistry(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	return map[string]Sender{
		"discord": &discordSender{base},
	}
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
