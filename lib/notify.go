package lib

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/snipebot/streamwatch/lib/models"
	"github.com/snipebot/streamwatch/lib/resolver"
	"github.com/snipebot/streamwatch/lib/topics"
)

const unresolvedReply = "Unable to find the given streamer(s), please try again!"

type notifyCommands struct {
	log      *zap.Logger
	db       *gorm.DB
	resolver *resolver.Resolver
	topics   *topics.Manager
}

// Notify subscribes the user to every resolved streamer in this guild.
// Subscription rows are inserted as one all-or-nothing batch: a duplicate
// anywhere in the batch rolls back the entire insert.
func (svc *notifyCommands) Notify(ctx context.Context, guildID, userID string, tokens []string) (string, error) {
	broadcasters, err := svc.resolver.Resolve(ctx, tokens)
	if err != nil {
		svc.log.Sugar().Infow("Streamer resolution failed", "err", err)
		return unresolvedReply, nil
	}
	if len(broadcasters) == 0 {
		return unresolvedReply, nil
	}

	for _, b := range broadcasters {
		if err := svc.ensureStreamerTracked(ctx, b); err != nil {
			return "", err
		}
	}

	subs := make(models.UserSubscriptions, 0, len(broadcasters))
	for _, b := range broadcasters {
		subs = append(subs, models.UserSubscription{UserID: userID, GuildID: guildID, StreamerID: b.ID})
	}
	err = svc.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&subs).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "You are already subscribed to some or all of the streamer(s)! Reverting...", nil
	}
	if err != nil {
		return "", fmt.Errorf("inserting subscriptions: %w", err)
	}

	names := make([]string, 0, len(broadcasters))
	for _, b := range broadcasters {
		names = append(names, b.DisplayName)
	}
	return fmt.Sprintf("You will now be notified when %s goes live!", strings.Join(names, ", ")), nil
}

// ensureStreamerTracked registers a topic and inserts the streamer row the
// first time anyone subscribes to it. Topic registration must succeed before
// the row exists; a registration error aborts the whole command. A
// duplicate-key on the insert means a concurrent caller won the race, which
// is fine.
func (svc *notifyCommands) ensureStreamerTracked(ctx context.Context, b resolver.Broadcaster) error {
	var count int64
	if err := svc.db.Model(&models.Streamer{}).Where("streamer_id = ?", b.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	handle, err := svc.topics.Register(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("registering topic for %s: %w", b.ID, err)
	}

	streamer := models.Streamer{
		StreamerID:   b.ID,
		StreamerName: b.DisplayName,
		TopicSubID:   sql.NullString{String: handle, Valid: true},
	}
	tx := svc.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&streamer)
	if err := tx.Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	svc.log.Sugar().Infof("Now tracking streamer %s (%s), topic %s", b.DisplayName, b.ID, handle)
	return nil
}

// Unnotify removes the user's subscriptions per item, reporting successes by
// display name and failures by the raw token the user typed. Streamers left
// with zero subscriptions are pruned (topic deregistered, row deleted) in
// the same batch, committed once at the end.
func (svc *notifyCommands) Unnotify(ctx context.Context, guildID, userID string, tokens []string) ([]string, error) {
	broadcasters, err := svc.resolver.Resolve(ctx, tokens)
	if err != nil {
		svc.log.Sugar().Infow("Streamer resolution failed", "err", err)
		return []string{unresolvedReply}, nil
	}
	if len(broadcasters) == 0 {
		return []string{unresolvedReply}, nil
	}

	var success, failed []string
	err = svc.db.Transaction(func(tx *gorm.DB) error {
		for _, b := range broadcasters {
			var sub models.UserSubscription
			res := tx.
				Where("user_id = ?", userID).
				Where("guild_id = ?", guildID).
				Where("streamer_id = ?", b.ID).
				First(&sub)
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				failed = append(failed, b.Raw)
				continue
			}
			if res.Error != nil {
				return res.Error
			}

			if err := tx.Delete(&sub).Error; err != nil {
				return err
			}
			success = append(success, b.DisplayName)

			if err := pruneStreamerIfOrphaned(ctx, tx, svc.log, svc.topics, b.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var replies []string
	if len(success) > 0 {
		replies = append(replies, fmt.Sprintf("You will no longer be notified for: %s!", strings.Join(success, ", ")))
	}
	if len(failed) > 0 {
		replies = append(replies, fmt.Sprintf("Unable to unsubscribe from: %s!", strings.Join(failed, ", ")))
	}
	return replies, nil
}

// Notifs lists the display names of the caller's subscriptions in this guild.
func (svc *notifyCommands) Notifs(ctx context.Context, guildID, userID string) ([]string, error) {
	var names []string
	err := svc.db.Model(&models.UserSubscription{}).
		Joins("JOIN streamers ON streamers.streamer_id = user_subscriptions.streamer_id").
		Where("user_subscriptions.user_id = ?", userID).
		Where("user_subscriptions.guild_id = ?", guildID).
		Order("streamers.streamer_name").
		Pluck("streamers.streamer_name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

// pruneStreamerIfOrphaned checks the post-delete subscription count and, at
// zero, deregisters the topic and deletes the streamer row. Deregistration
// failure is tolerated: local state still advances.
func pruneStreamerIfOrphaned(ctx context.Context, tx *gorm.DB, log *zap.Logger, tm *topics.Manager, streamerID string) error {
	var count int64
	if err := tx.Model(&models.UserSubscription{}).Where("streamer_id = ?", streamerID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var streamer models.Streamer
	res := tx.Where("streamer_id = ?", streamerID).First(&streamer)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil
	}
	if res.Error != nil {
		return res.Error
	}

	if streamer.TopicSubID.Valid {
		log.Sugar().Infof("Unsubscribing topic %s for streamer %s", streamer.TopicSubID.String, streamer.StreamerName)
		tm.Deregister(ctx, streamer.TopicSubID.String)
	}
	return tx.Delete(&streamer).Error
}
