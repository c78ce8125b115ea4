// Package topics owns the mapping from tracked streamers to EventSub topic
// subscriptions: one registered topic per streamer while anyone, anywhere,
// subscribes to it.
package topics

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipebot/streamwatch/lib/models"
	"github.com/snipebot/streamwatch/telemetry"
	"github.com/snipebot/streamwatch/twitch"
)

// Provider is the upstream push-notification surface (EventSub).
type Provider interface {
	RegisterTopic(ctx context.Context, broadcasterID string) (string, error)
	DeregisterTopic(ctx context.Context, topicHandle string) (bool, error)
}

type identityAPI interface {
	UsersByID(ctx context.Context, ids []string) ([]twitch.User, error)
}

type Manager struct {
	log      *zap.Logger
	db       *gorm.DB
	provider Provider
	identity identityAPI
}

func NewManager(log *zap.Logger, db *gorm.DB, provider Provider, identity identityAPI) *Manager {
	return &Manager{log: log, db: db, provider: provider, identity: identity}
}

// Register subscribes upstream to the streamer's live events and returns the
// issued topic handle. Errors here are hard failures for the caller: no
// streamer row may exist without a registered topic.
func (m *Manager) Register(ctx context.Context, streamerID string) (string, error) {
	handle, err := m.provider.RegisterTopic(ctx, streamerID)
	if err != nil {
		return "", err
	}
	telemetry.TopicsRegistered.Inc()
	return handle, nil
}

// Deregister cancels the topic upstream. Failure is logged, never fatal:
// local pruning proceeds and a leaked upstream subscription is a recoverable,
// observable condition.
func (m *Manager) Deregister(ctx context.Context, topicHandle string) bool {
	ok, err := m.provider.DeregisterTopic(ctx, topicHandle)
	if err != nil {
		m.log.Sugar().Errorw("Failed to deregister topic", "topic", topicHandle, "err", err)
		telemetry.TopicDeregisterFailures.Inc()
		return false
	}
	if !ok {
		m.log.Sugar().Warnw("Upstream refused to deregister topic", "topic", topicHandle)
		telemetry.TopicDeregisterFailures.Inc()
		return false
	}
	telemetry.TopicsDeregistered.Inc()
	return true
}

// ResyncAll re-registers topics for every tracked streamer. Upstream webhook
// subscriptions don't survive an endpoint change, so stale handles recorded
// in storage are replaced with freshly issued ones. All refreshed handles
// are committed in one transaction at the end of the pass.
func (m *Manager) ResyncAll(ctx context.Context) error {
	var streamers models.Streamers
	if err := m.db.Find(&streamers).Error; err != nil {
		return err
	}
	if len(streamers) == 0 {
		m.log.Sugar().Info("No streamers to resync")
		return nil
	}

	names := m.refreshNames(ctx, streamers)

	for i := range streamers {
		handle, err := m.Register(ctx, streamers[i].StreamerID)
		if err != nil {
			return err
		}
		streamers[i].TopicSubID = sql.NullString{String: handle, Valid: true}
		if name, ok := names[streamers[i].StreamerID]; ok {
			streamers[i].StreamerName = name
		}
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		for _, s := range streamers {
			updates := map[string]any{
				"topic_sub_id":  s.TopicSubID,
				"streamer_name": s.StreamerName,
			}
			if err := tx.Model(&models.Streamer{}).Where("streamer_id = ?", s.StreamerID).Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Sugar().Infof("Resynced %d streamer topics", len(streamers))
	return nil
}

// refreshNames re-fetches cached display names in one batched lookup.
// Failure is tolerated; the cached names stay as they were.
func (m *Manager) refreshNames(ctx context.Context, streamers models.Streamers) map[string]string {
	ids := make([]string, 0, len(streamers))
	for _, s := range streamers {
		ids = append(ids, s.StreamerID)
	}

	users, err := m.identity.UsersByID(ctx, ids)
	if err != nil {
		m.log.Sugar().Infow("Could not refresh streamer display names", "err", err)
		return nil
	}

	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.DisplayName
	}
	return names
}
