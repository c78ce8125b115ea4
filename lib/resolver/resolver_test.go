package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snipebot/streamwatch/twitch"
)

type fakeIdentityAPI struct {
	byID    map[string]twitch.User
	byLogin map[string]twitch.User

	idCalls    [][]string
	loginCalls [][]string
}

func (f *fakeIdentityAPI) UsersByID(ctx context.Context, ids []string) ([]twitch.User, error) {
	f.idCalls = append(f.idCalls, ids)
	out := make([]twitch.User, 0, len(ids))
	for _, id := range ids {
		u, ok := f.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", twitch.ErrUnknownIdentity, id)
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeIdentityAPI) UsersByLogin(ctx context.Context, logins []string) ([]twitch.User, error) {
	f.loginCalls = append(f.loginCalls, logins)
	out := make([]twitch.User, 0, len(logins))
	for _, login := range logins {
		u, ok := f.byLogin[login]
		if !ok {
			return nil, fmt.Errorf("%w: %s", twitch.ErrUnknownIdentity, login)
		}
		out = append(out, u)
	}
	return out, nil
}

func newFakeAPI() *fakeIdentityAPI {
	akula := twitch.User{ID: "90492842", Login: "akula", DisplayName: "Akula"}
	streamerX := twitch.User{ID: "555", Login: "streamerx", DisplayName: "StreamerX"}
	return &fakeIdentityAPI{
		byID:    map[string]twitch.User{"90492842": akula, "555": streamerX},
		byLogin: map[string]twitch.User{"akula": akula, "streamerx": streamerX, "streamerX": streamerX},
	}
}

func TestResolveDeduplicatesBeforeCalling(t *testing.T) {
	api := newFakeAPI()
	r := NewResolver(zap.NewNop(), api)

	got, err := r.Resolve(context.Background(), []string{"90492842", "90492842", "streamerX"})
	require.NoError(t, err)

	require.Len(t, api.idCalls, 1)
	assert.Equal(t, []string{"90492842"}, api.idCalls[0])
	require.Len(t, api.loginCalls, 1)
	assert.Equal(t, []string{"streamerX"}, api.loginCalls[0])

	require.Len(t, got, 2)
	assert.Equal(t, "90492842", got[0].ID)
	assert.Equal(t, "Akula", got[0].DisplayName)
	assert.Equal(t, "555", got[1].ID)
}

func TestResolveProfileURL(t *testing.T) {
	api := newFakeAPI()
	r := NewResolver(zap.NewNop(), api)

	got, err := r.Resolve(context.Background(), []string{"https://twitch.tv/streamerx"})
	require.NoError(t, err)

	assert.Empty(t, api.idCalls, "a profile URL must not trigger id validation")
	require.Len(t, api.loginCalls, 1)
	assert.Equal(t, []string{"streamerx"}, api.loginCalls[0])
	require.Len(t, got, 1)
	assert.Equal(t, "555", got[0].ID)
	assert.Equal(t, "https://twitch.tv/streamerx", got[0].Raw)
}

func TestResolveWrongHostTreatedAsLiteralLogin(t *testing.T) {
	api := newFakeAPI()
	r := NewResolver(zap.NewNop(), api)

	_, err := r.Resolve(context.Background(), []string{"https://otherhost/streamerx"})
	require.Error(t, err, "the literal string is not a known login")

	require.Len(t, api.loginCalls, 1)
	assert.Equal(t, []string{"https://otherhost/streamerx"}, api.loginCalls[0])
}

func TestResolveCrossBucketDedup(t *testing.T) {
	api := newFakeAPI()
	r := NewResolver(zap.NewNop(), api)

	got, err := r.Resolve(context.Background(), []string{"90492842", "akula"})
	require.NoError(t, err)

	// Both tokens resolve to the same identity; only one result survives.
	require.Len(t, got, 1)
	assert.Equal(t, "90492842", got[0].ID)
}

func TestResolveEmptyInput(t *testing.T) {
	api := newFakeAPI()
	r := NewResolver(zap.NewNop(), api)

	got, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, api.idCalls)
	assert.Empty(t, api.loginCalls)
}

func TestResolveBatchFailureFailsWhole(t *testing.T) {
	api := newFakeAPI()
	r := NewResolver(zap.NewNop(), api)

	// "555" is valid but the unknown login poisons the login batch.
	_, err := r.Resolve(context.Background(), []string{"555", "nosuchlogin"})
	require.Error(t, err)
	assert.ErrorIs(t, err, twitch.ErrUnknownIdentity)
}

func TestNewResolverNilAPIPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewResolver(zap.NewNop(), nil)
	})
}
