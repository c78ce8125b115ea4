package lib

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipebot/streamwatch/lib/models"
	"github.com/snipebot/streamwatch/lib/topics"
)

// ErrNotOwner rejects configuration changes from anyone but the guild owner.
var ErrNotOwner = errors.New("only the guild owner can do that")

type guildAdmin struct {
	log    *zap.Logger
	db     *gorm.DB
	topics *topics.Manager
}

// OnGuildJoin records a newly onboarded guild with the default opt-in mode.
func (svc *guildAdmin) OnGuildJoin(ctx context.Context, guildID, ownerID, channelID string) error {
	guild := models.Guild{
		GuildID:               guildID,
		NotificationChannelID: channelID,
		OwnerID:               ownerID,
		NotificationMode:      models.ModeOptIn,
	}
	if err := svc.db.Create(&guild).Error; err != nil {
		return fmt.Errorf("creating guild %s: %w", guildID, err)
	}
	svc.log.Sugar().Infof("Joined guild %s, notifications to channel %s", guildID, channelID)
	return nil
}

// OnGuildRemove deletes the guild row; the cascade removes its
// subscriptions, and any streamer left without references anywhere is
// pruned within the same logical operation.
func (svc *guildAdmin) OnGuildRemove(ctx context.Context, guildID string) error {
	return svc.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Guild{GuildID: guildID}).Error; err != nil {
			return err
		}

		var orphans models.Streamers
		sub := tx.Model(&models.UserSubscription{}).Distinct("streamer_id")
		if err := tx.Where("streamer_id NOT IN (?)", sub).Find(&orphans).Error; err != nil {
			return err
		}
		for _, streamer := range orphans {
			if streamer.TopicSubID.Valid {
				svc.topics.Deregister(ctx, streamer.TopicSubID.String)
			}
			if err := tx.Delete(&streamer).Error; err != nil {
				return err
			}
		}
		if len(orphans) > 0 {
			svc.log.Sugar().Infof("Pruned %d streamers after leaving guild %s", len(orphans), guildID)
		}
		return nil
	})
}

// IsOwnerOrOptIn is the authorization predicate for notify/unnotify: the
// caller must own the guild, unless the guild runs in opt-in mode.
func (svc *guildAdmin) IsOwnerOrOptIn(ctx context.Context, guildID, userID string) (bool, error) {
	guild, err := svc.GuildConfig(ctx, guildID)
	if err != nil {
		return false, err
	}
	return guild.NotificationMode == models.ModeOptIn || guild.OwnerID == userID, nil
}

// GuildConfig returns the guild's current configuration row.
func (svc *guildAdmin) GuildConfig(ctx context.Context, guildID string) (*models.Guild, error) {
	var guild models.Guild
	if err := svc.db.Where("guild_id = ?", guildID).First(&guild).Error; err != nil {
		return nil, err
	}
	return &guild, nil
}

// ChangeConfig updates the notification channel, delivery mode and censor
// flag. Owner-only.
func (svc *guildAdmin) ChangeConfig(ctx context.Context, guildID, callerID, channelID string, mode models.NotificationMode, censored bool) error {
	guild, err := svc.GuildConfig(ctx, guildID)
	if err != nil {
		return err
	}
	if guild.OwnerID != callerID {
		return ErrNotOwner
	}
	if !mode.Valid() {
		return fmt.Errorf("invalid notification mode: %q", mode)
	}

	updates := map[string]any{
		"notification_channel_id": channelID,
		"notification_mode":       mode,
		"is_censored":             censored,
	}
	return svc.db.Model(&models.Guild{}).Where("guild_id = ?", guildID).Updates(updates).Error
}
