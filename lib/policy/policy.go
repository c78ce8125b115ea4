// Package policy decides how a live alert is delivered to one guild.
package policy

import "github.com/snipebot/streamwatch/lib/models"

type Action int

const (
	// Skip suppresses the alert for this guild entirely.
	Skip Action = iota
	// PostPlain posts the alert with no mention suffix.
	PostPlain
	// PostBroadcast posts the alert then mentions everyone (or falls back
	// to a permission notice plus @here at delivery time).
	PostBroadcast
	// PostMentions posts the alert then one message mentioning every
	// subscribed user.
	PostMentions
)

type Decision struct {
	Action   Action
	Mentions []string
}

// Decide applies the guild's delivery mode. Opt-in guilds never gate on the
// owner; global and passive guilds only alert while the owner is subscribed
// to the broadcaster.
func Decide(mode models.NotificationMode, ownerSubscribed bool, userIDs []string) Decision {
	switch mode {
	case models.ModeOptIn:
		return Decision{Action: PostMentions, Mentions: userIDs}
	case models.ModeGlobal:
		if ownerSubscribed {
			return Decision{Action: PostBroadcast}
		}
		return Decision{Action: Skip}
	case models.ModePassive:
		if ownerSubscribed {
			return Decision{Action: PostPlain}
		}
		return Decision{Action: Skip}
	default:
		return Decision{Action: Skip}
	}
}
