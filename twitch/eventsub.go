package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"

	"github.com/snipebot/streamwatch/config"
)

// EventSub manages stream.online webhook subscriptions. The id Twitch
// assigns to a subscription is the topic handle callers hold on to.
type EventSub struct {
	client      *Client
	callbackURL string
	secret      string
}

func NewEventSub(cfg *config.Config, client *Client) *EventSub {
	return &EventSub{
		client:      client,
		callbackURL: cfg.Twitch.WebhookURL,
		secret:      cfg.Twitch.WebhookSecret,
	}
}

// RegisterTopic subscribes to stream.online events for one broadcaster and
// returns the subscription id issued by Twitch.
func (es *EventSub) RegisterTopic(ctx context.Context, broadcasterID string) (string, error) {
	tok, err := es.client.tokens.get(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"type":    "stream.online",
		"version": "1",
		"condition": map[string]string{
			"broadcaster_user_id": broadcasterID,
		},
		"transport": map[string]string{
			"method":   "webhook",
			"callback": es.callbackURL,
			"secret":   es.secret,
		},
	}

	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err = requests.URL(es.client.baseURL+"/eventsub/subscriptions").
		Transport(es.client.transport).
		Header("Client-Id", es.client.clientID).
		Header("Authorization", "Bearer "+tok).
		BodyJSON(payload).
		ToJSON(&body).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("twitch eventsub subscribe %s: %w", broadcasterID, err)
	}
	if len(body.Data) == 0 {
		return "", errors.New("twitch eventsub subscribe returned no subscription")
	}
	return body.Data[0].ID, nil
}

// DeregisterTopic cancels a subscription by its id. A subscription Twitch no
// longer knows about counts as successfully removed.
func (es *EventSub) DeregisterTopic(ctx context.Context, topicHandle string) (bool, error) {
	tok, err := es.client.tokens.get(ctx)
	if err != nil {
		return false, err
	}

	err = requests.URL(es.client.baseURL+"/eventsub/subscriptions").
		Transport(es.client.transport).
		Method(http.MethodDelete).
		Param("id", topicHandle).
		Header("Client-Id", es.client.clientID).
		Header("Authorization", "Bearer "+tok).
		Fetch(ctx)
	if err != nil {
		if requests.HasStatusErr(err, http.StatusNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("twitch eventsub unsubscribe %s: %w", topicHandle, err)
	}
	return true, nil
}
