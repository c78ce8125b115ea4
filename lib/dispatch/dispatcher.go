// Package dispatch fans a single stream.online event out to every
// interested guild. The provider callback only enqueues; a worker drains the
// queue so upstream delivery is never blocked on channel I/O.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipebot/streamwatch/lib/embeds"
	"github.com/snipebot/streamwatch/lib/models"
	"github.com/snipebot/streamwatch/lib/policy"
	"github.com/snipebot/streamwatch/senders"
	"github.com/snipebot/streamwatch/telemetry"
	"github.com/snipebot/streamwatch/twitch"
)

const queueSize = 64

type identityAPI interface {
	UsersByID(ctx context.Context, ids []string) ([]twitch.User, error)
}

type Dispatcher struct {
	log      *zap.Logger
	db       *gorm.DB
	senders  senders.Registry
	identity identityAPI
	author   embeds.Author

	pick   func() embeds.Variant
	queue  chan twitch.StreamOnlineEvent
	cancel context.CancelFunc
}

func NewDispatcher(log *zap.Logger, db *gorm.DB, reg senders.Registry, identity identityAPI, author embeds.Author) *Dispatcher {
	return &Dispatcher{
		log:      log,
		db:       db,
		senders:  reg,
		identity: identity,
		author:   author,
		pick:     embeds.PickDefault,
		queue:    make(chan twitch.StreamOnlineEvent, queueSize),
	}
}

// HandleStreamOnline is the provider callback entry point. It returns
// promptly; delivery happens out-of-band on the worker.
func (d *Dispatcher) HandleStreamOnline(evt twitch.StreamOnlineEvent) {
	select {
	case d.queue <- evt:
	default:
		d.log.Sugar().Errorw("Fan-out queue full, dropping event", "streamer_id", evt.BroadcasterUserID)
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go func() {
		for {
			select {
			case evt := <-d.queue:
				fanoutCtx, done := context.WithTimeout(ctx, time.Minute)
				if err := d.FanOut(fanoutCtx, evt); err != nil {
					d.log.Sugar().Errorw("Fan-out failed", "streamer_id", evt.BroadcasterUserID, "err", err)
				}
				done()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.log.Sugar().Info("Dispatcher stopped")
}

type interestedGuild struct {
	guild   models.Guild
	userIDs []string
}

// FanOut delivers one live event to every interested guild. The non-neutral
// content variant is chosen once here so all guilds in this pass see the
// same content; the neutral variant's dynamic images are resolved lazily,
// at most one upstream lookup per event.
func (d *Dispatcher) FanOut(ctx context.Context, evt twitch.StreamOnlineEvent) error {
	interested, err := d.listInterested(evt.BroadcasterUserID)
	if err != nil {
		return err
	}
	if len(interested) == 0 {
		return nil
	}
	telemetry.FanoutEvents.Inc()

	variant := d.pick()
	var safeVariant embeds.Variant
	for _, ig := range interested {
		if ig.guild.IsCensored {
			safeVariant = d.buildSafeVariant(ctx, evt)
			break
		}
	}

	sender := d.senders["discord"]
	for _, ig := range interested {
		decision := policy.Decide(ig.guild.NotificationMode, ownerSubscribed(ig), ig.userIDs)
		if decision.Action == policy.Skip {
			continue
		}

		content := variant
		if ig.guild.IsCensored {
			content = safeVariant
		}
		d.deliver(ctx, sender, ig.guild, content.Build(evt, d.author), decision)
	}
	return nil
}

func ownerSubscribed(ig interestedGuild) bool {
	for _, id := range ig.userIDs {
		if id == ig.guild.OwnerID {
			return true
		}
	}
	return false
}

// deliver executes one guild's delivery action. An unavailable channel is
// expected (deleted or inaccessible) and skipped silently.
func (d *Dispatcher) deliver(ctx context.Context, sender senders.Sender, guild models.Guild, embed embeds.Embed, decision policy.Decision) {
	channelID := guild.NotificationChannelID

	if err := sender.SendEmbed(ctx, channelID, embed); err != nil {
		if errors.Is(err, senders.ErrChannelUnavailable) {
			d.log.Sugar().Debugw("Skipping unavailable channel", "guild_id", guild.GuildID, "channel_id", channelID)
			return
		}
		telemetry.MessagesFailed.Inc()
		d.log.Sugar().Errorw("Failed to post alert", "guild_id", guild.GuildID, "err", err)
		return
	}
	telemetry.MessagesSent.Inc()

	switch decision.Action {
	case policy.PostPlain:
		// No mention suffix.

	case policy.PostBroadcast:
		canMention, err := sender.CanMentionEveryone(ctx, guild.GuildID)
		if err != nil {
			d.log.Sugar().Infow("Could not check mention permission, assuming none", "guild_id", guild.GuildID, "err", err)
		}
		if canMention {
			d.sendText(ctx, sender, guild, "@everyone")
		} else {
			d.sendText(ctx, sender, guild, "The bot doesn't have permission to mention everyone. Mentioning here instead.")
			d.sendText(ctx, sender, guild, "@here")
		}

	case policy.PostMentions:
		mentions := make([]string, 0, len(decision.Mentions))
		for _, userID := range decision.Mentions {
			mentions = append(mentions, fmt.Sprintf("<@%s>", userID))
		}
		d.sendText(ctx, sender, guild, strings.Join(mentions, " "))
	}
}

func (d *Dispatcher) sendText(ctx context.Context, sender senders.Sender, guild models.Guild, content string) {
	if err := sender.SendText(ctx, guild.NotificationChannelID, content); err != nil {
		if errors.Is(err, senders.ErrChannelUnavailable) {
			return
		}
		telemetry.MessagesFailed.Inc()
		d.log.Sugar().Errorw("Failed to send mention", "guild_id", guild.GuildID, "err", err)
		return
	}
	telemetry.MessagesSent.Inc()
}

// buildSafeVariant resolves the broadcaster's profile image once for this
// event. Lookup failure degrades to a neutral embed without images.
func (d *Dispatcher) buildSafeVariant(ctx context.Context, evt twitch.StreamOnlineEvent) embeds.Variant {
	users, err := d.identity.UsersByID(ctx, []string{evt.BroadcasterUserID})
	if err != nil || len(users) == 0 {
		d.log.Sugar().Infow("Could not resolve profile image for neutral alert", "streamer_id", evt.BroadcasterUserID, "err", err)
		return embeds.SafeForWork("", "")
	}
	return embeds.SafeForWork(users[0].ProfileImageURL, users[0].ProfileImageURL)
}

// listInterested groups this broadcaster's subscriptions by guild.
func (d *Dispatcher) listInterested(streamerID string) ([]interestedGuild, error) {
	var subs models.UserSubscriptions
	if err := d.db.Where("streamer_id = ?", streamerID).Find(&subs).Error; err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}

	usersByGuild := map[string][]string{}
	guildIDs := make([]string, 0)
	for _, sub := range subs {
		if _, ok := usersByGuild[sub.GuildID]; !ok {
			guildIDs = append(guildIDs, sub.GuildID)
		}
		usersByGuild[sub.GuildID] = append(usersByGuild[sub.GuildID], sub.UserID)
	}

	var guilds []models.Guild
	if err := d.db.Where("guild_id IN ?", guildIDs).Find(&guilds).Error; err != nil {
		return nil, err
	}

	out := make([]interestedGuild, 0, len(guilds))
	for _, guild := range guilds {
		out = append(out, interestedGuild{guild: guild, userIDs: usersByGuild[guild.GuildID]})
	}
	return out, nil
}
