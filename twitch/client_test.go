package twitch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		log:       zap.NewNop(),
		clientID:  "test-client-id",
		transport: http.DefaultTransport,
		tokens: &tokenSource{
			token:     "test-token",
			expiresAt: time.Now().Add(time.Hour),
		},
		baseURL: srv.URL,
	}
}

func writeUsers(w http.ResponseWriter, users ...User) {
	json.NewEncoder(w).Encode(map[string]any{"data": users})
}

func TestUsersByID(t *testing.T) {
	var gotReq *http.Request
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r
		writeUsers(w,
			User{ID: "90492842", Login: "akula", DisplayName: "Akula"},
			User{ID: "555", Login: "streamerx", DisplayName: "StreamerX"},
		)
	}))

	users, err := client.UsersByID(context.Background(), []string{"90492842", "555"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Akula", users[0].DisplayName)

	require.NotNil(t, gotReq)
	assert.Equal(t, "/users", gotReq.URL.Path)
	assert.Equal(t, []string{"90492842", "555"}, gotReq.URL.Query()["id"])
	assert.Equal(t, "test-client-id", gotReq.Header.Get("Client-Id"))
	assert.Equal(t, "Bearer test-token", gotReq.Header.Get("Authorization"))
}

func TestUsersByLoginPartialResultIsUnknownIdentity(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Helix silently drops logins it does not know.
		writeUsers(w, User{ID: "90492842", Login: "akula", DisplayName: "Akula"})
	}))

	_, err := client.UsersByLogin(context.Background(), []string{"akula", "nosuchlogin"})
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestUsersByIDBadRequestIsUnknownIdentity(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Bad Request"}`, http.StatusBadRequest)
	}))

	_, err := client.UsersByID(context.Background(), []string{"not-a-number"})
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestUsersByIDEmptyBatchSkipsRequest(t *testing.T) {
	called := false
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	users, err := client.UsersByID(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.False(t, called)
}

func TestRegisterTopic(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/eventsub/subscriptions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "sub-abc123"}},
		})
	}))
	es := &EventSub{
		client:      client,
		callbackURL: "https://example.com/twitch/eventsub",
		secret:      "shh",
	}

	handle, err := es.RegisterTopic(context.Background(), "90492842")
	require.NoError(t, err)
	assert.Equal(t, "sub-abc123", handle)

	assert.Equal(t, "stream.online", gotBody["type"])
	assert.Equal(t, "1", gotBody["version"])
	condition := gotBody["condition"].(map[string]any)
	assert.Equal(t, "90492842", condition["broadcaster_user_id"])
	transport := gotBody["transport"].(map[string]any)
	assert.Equal(t, "webhook", transport["method"])
	assert.Equal(t, "https://example.com/twitch/eventsub", transport["callback"])
	assert.Equal(t, "shh", transport["secret"])
}

func TestDeregisterTopic(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantOK  bool
		wantErr bool
	}{
		{"removed", http.StatusNoContent, true, false},
		{"already gone", http.StatusNotFound, true, false},
		{"upstream error", http.StatusInternalServerError, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodDelete, r.Method)
				require.Equal(t, "sub-abc123", r.URL.Query().Get("id"))
				w.WriteHeader(tt.status)
			}))
			es := &EventSub{client: client}

			ok, err := es.DeregisterTopic(context.Background(), "sub-abc123")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
