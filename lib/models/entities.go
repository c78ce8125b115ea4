package models

import "database/sql"

type NotificationMode string

const (
	ModeOptIn   NotificationMode = "optin"
	ModeGlobal  NotificationMode = "global"
	ModePassive NotificationMode = "passive"
)

func (m NotificationMode) Valid() bool {
	switch m {
	case ModeOptIn, ModeGlobal, ModePassive:
		return true
	}
	return false
}

type Guild struct {
	GuildID               string `gorm:"primaryKey"`
	NotificationChannelID string
	OwnerID               string
	NotificationMode      NotificationMode `gorm:"default:optin"`
	IsCensored            bool             `gorm:"default:false"`

	UserSubscriptions []UserSubscription `gorm:"foreignKey:GuildID;constraint:OnDelete:CASCADE"`
}

type Streamer struct {
	StreamerID   string `gorm:"primaryKey"`
	StreamerName string
	// EventSub subscription id; invalid while no topic is registered upstream.
	TopicSubID sql.NullString

	UserSubscriptions []UserSubscription `gorm:"foreignKey:StreamerID"`
}

type Streamers []Streamer

type UserSubscription struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     string `gorm:"uniqueIndex:uix_user_guild_streamer;not null"`
	GuildID    string `gorm:"uniqueIndex:uix_user_guild_streamer"`
	StreamerID string `gorm:"uniqueIndex:uix_user_guild_streamer"`
}

type UserSubscriptions []UserSubscription
