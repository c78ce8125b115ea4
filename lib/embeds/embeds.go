// Package embeds builds the alert content variants. One variant from the
// default pool is chosen per live event; guilds with the censor flag always
// receive the neutral variant instead.
package embeds

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/snipebot/streamwatch/twitch"
)

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title         string
	Description   string
	Color         int
	ThumbnailURL  string
	ImageURL      string
	AuthorName    string
	AuthorIconURL string
	Timestamp     time.Time
	Fields        []Field
}

// Author identifies the bot in the embed header.
type Author struct {
	Name    string
	IconURL string
}

type Variant interface {
	Build(evt twitch.StreamOnlineEvent, author Author) Embed
}

// DefaultPool returns the non-neutral variants.
func DefaultPool() []Variant {
	return []Variant{draftVariant{}, sirenVariant{}}
}

// PickDefault selects one variant at random. Callers pick once per live
// event so every guild in a fan-out pass sees the same content.
func PickDefault() Variant {
	pool := DefaultPool()
	return pool[rand.Intn(len(pool))]
}

// SafeForWork returns the neutral variant. Thumbnail and image are resolved
// per event by the caller (broadcaster profile image).
func SafeForWork(thumbnailURL, imageURL string) Variant {
	return sfwVariant{thumbnailURL: thumbnailURL, imageURL: imageURL}
}

func streamLink(login string) string {
	return fmt.Sprintf("Click [here](https://www.twitch.tv/%s)", login)
}

func commonFields(evt twitch.StreamOnlineEvent) []Field {
	return []Field{
		{Name: "Target", Value: fmt.Sprintf("`%s`", evt.BroadcasterUserName)},
		{Name: "Stream Started", Value: fmt.Sprintf("`%s`", evt.StartedAt.UTC().Format(time.RFC3339)), Inline: true},
		{Name: "Link", Value: streamLink(evt.BroadcasterUserLogin), Inline: true},
	}
}

type sfwVariant struct {
	thumbnailURL string
	imageURL     string
}

func (v sfwVariant) Build(evt twitch.StreamOnlineEvent, author Author) Embed {
	return Embed{
		Title:         fmt.Sprintf(":rotating_light: %s is LIVE! :rotating_light:", evt.BroadcasterUserName),
		Description:   "Streamer is currently live and ripe for sniping :relaxed:",
		Color:         0x1F8B4C,
		ThumbnailURL:  v.thumbnailURL,
		ImageURL:      v.imageURL,
		AuthorName:    author.Name,
		AuthorIconURL: author.IconURL,
		Timestamp:     time.Now().UTC(),
		Fields:        commonFields(evt),
	}
}

type draftVariant struct{}

func (draftVariant) Build(evt twitch.StreamOnlineEvent, author Author) Embed {
	return Embed{
		Title: ":rotating_light: MANDATORY STREAM SNIPING DRAFT :rotating_light:",
		Description: fmt.Sprintf(
			"You have been drafted to stream snipe %s\n\n"+
				"Report to your nearest stream sniping channel IMMEDIATELY! :saluting_face:",
			evt.BroadcasterUserName),
		Color:         0xB8860B,
		AuthorName:    author.Name,
		AuthorIconURL: author.IconURL,
		Timestamp:     time.Now().UTC(),
		Fields:        commonFields(evt),
	}
}

type sirenVariant struct{}

func (sirenVariant) Build(evt twitch.StreamOnlineEvent, author Author) Embed {
	return Embed{
		Title: ":rotating_light: ALL UNITS RESPOND :rotating_light:",
		Description: fmt.Sprintf(
			"This is not a drill. %s has gone live.\n\n"+
				"Drop whatever you are doing and get in there before the moment passes.",
			evt.BroadcasterUserName),
		Color:         0x992D22,
		AuthorName:    author.Name,
		AuthorIconURL: author.IconURL,
		Timestamp:     time.Now().UTC(),
		Fields:        commonFields(evt),
	}
}
