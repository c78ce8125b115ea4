package lib

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/snipebot/streamwatch/config"
	"github.com/snipebot/streamwatch/lib/models"
	"github.com/snipebot/streamwatch/lib/resolver"
	"github.com/snipebot/streamwatch/lib/topics"
	"github.com/snipebot/streamwatch/twitch"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Guild{}, &models.Streamer{}, &models.UserSubscription{}))
	return db
}

type fakeIdentityAPI struct {
	users      map[string]twitch.User // keyed by id and by login
	idCalls    [][]string
	loginCalls [][]string
}

func newFakeIdentityAPI(users ...twitch.User) *fakeIdentityAPI {
	m := map[string]twitch.User{}
	for _, u := range users {
		m[u.ID] = u
		m[u.Login] = u
	}
	return &fakeIdentityAPI{users: m}
}

func (f *fakeIdentityAPI) lookup(keys []string) ([]twitch.User, error) {
	out := make([]twitch.User, 0, len(keys))
	for _, k := range keys {
		u, ok := f.users[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s", twitch.ErrUnknownIdentity, k)
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeIdentityAPI) UsersByID(ctx context.Context, ids []string) ([]twitch.User, error) {
	f.idCalls = append(f.idCalls, ids)
	return f.lookup(ids)
}

func (f *fakeIdentityAPI) UsersByLogin(ctx context.Context, logins []string) ([]twitch.User, error) {
	f.loginCalls = append(f.loginCalls, logins)
	return f.lookup(logins)
}

type fakeProvider struct {
	registered    []string
	deregistered  []string
	registerErr   error
	deregisterErr error
	refuse        bool
}

func (f *fakeProvider) RegisterTopic(ctx context.Context, broadcasterID string) (string, error) {
	if f.registerErr != nil {
		return "", f.registerErr
	}
	f.registered = append(f.registered, broadcasterID)
	return "topic-" + broadcasterID, nil
}

func (f *fakeProvider) DeregisterTopic(ctx context.Context, topicHandle string) (bool, error) {
	if f.deregisterErr != nil {
		return false, f.deregisterErr
	}
	f.deregistered = append(f.deregistered, topicHandle)
	return !f.refuse, nil
}

func newTestService(t *testing.T, api *fakeIdentityAPI, provider *fakeProvider) (*Service, *gorm.DB) {
	t.Helper()
	log := zap.NewNop()
	db := newTestDB(t)
	res := resolver.NewResolver(log, api)
	tm := topics.NewManager(log, db, provider, api)
	return NewService(nil, &config.Config{}, log, db, res, tm), db
}

func seedGuild(t *testing.T, db *gorm.DB, guildID, ownerID string, mode models.NotificationMode) {
	t.Helper()
	guild := models.Guild{
		GuildID:               guildID,
		NotificationChannelID: "chan-" + guildID,
		OwnerID:               ownerID,
		NotificationMode:      mode,
	}
	require.NoError(t, db.Create(&guild).Error)
}

func countRows(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}
