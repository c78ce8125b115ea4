package senders

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carlmjohnson/requests"

	"github.com/snipebot/streamwatch/lib/embeds"
)

const (
	discordBaseURL = "https://discord.com/api/v10"

	permMentionEveryone = 1 << 17
)

type discordSender struct {
	base
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Author      *discordEmbedMedia  `json:"author,omitempty"`
	Thumbnail   *discordEmbedMedia  `json:"thumbnail,omitempty"`
	Image       *discordEmbedMedia  `json:"image,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordEmbedMedia struct {
	Name    string `json:"name,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
	URL     string `json:"url,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

func (d *discordSender) SendEmbed(ctx context.Context, channelID string, embed embeds.Embed) error {
	payload := map[string]any{
		"embeds": []discordEmbed{convertEmbed(embed)},
	}
	return d.createMessage(ctx, channelID, payload)
}

func (d *discordSender) SendText(ctx context.Context, channelID, content string) error {
	return d.createMessage(ctx, channelID, map[string]any{"content": content})
}

func (d *discordSender) createMessage(ctx context.Context, channelID string, payload map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := requests.URL(fmt.Sprintf("%s/channels/%s/messages", discordBaseURL, channelID)).
		Transport(d.transport).
		Header("Authorization", "Bot "+d.cfg.Discord.BotToken).
		BodyJSON(payload).
		Fetch(ctx)
	if err != nil {
		if requests.HasStatusErr(err, http.StatusForbidden, http.StatusNotFound) {
			return fmt.Errorf("%w: channel %s", ErrChannelUnavailable, channelID)
		}
		return fmt.Errorf("discord send to channel %s: %w", channelID, err)
	}
	return nil
}

// CanMentionEveryone reports whether the bot holds the mention-everyone
// permission in the given guild.
func (d *discordSender) CanMentionEveryone(ctx context.Context, guildID string) (bool, error) {
	var guilds []struct {
		ID          string `json:"id"`
		Permissions string `json:"permissions"`
	}
	err := requests.URL(discordBaseURL+"/users/@me/guilds").
		Transport(d.transport).
		Header("Authorization", "Bot "+d.cfg.Discord.BotToken).
		ToJSON(&guilds).
		Fetch(ctx)
	if err != nil {
		return false, fmt.Errorf("discord list guilds: %w", err)
	}

	for _, g := range guilds {
		if g.ID != guildID {
			continue
		}
		perms, err := strconv.ParseUint(g.Permissions, 10, 64)
		if err != nil {
			return false, fmt.Errorf("discord guild %s permissions %q: %w", guildID, g.Permissions, err)
		}
		return perms&permMentionEveryone != 0, nil
	}
	return false, nil
}

func convertEmbed(e embeds.Embed) discordEmbed {
	out := discordEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	if e.AuthorName != "" {
		out.Author = &discordEmbedMedia{Name: e.AuthorName, IconURL: e.AuthorIconURL}
	}
	if e.ThumbnailURL != "" {
		out.Thumbnail = &discordEmbedMedia{URL: e.ThumbnailURL}
	}
	if e.ImageURL != "" {
		out.Image = &discordEmbedMedia{URL: e.ImageURL}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, discordEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}
