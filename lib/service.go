// Package lib implements the command surface of the bot: notify, unnotify,
// notifs, changeconfig and the guild onboarding/offboarding hooks.
package lib

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipebot/streamwatch/config"
	"github.com/snipebot/streamwatch/lib/resolver"
	"github.com/snipebot/streamwatch/lib/topics"
)

type Service struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB

	*notifyCommands
	*guildAdmin
}

func NewService(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, db *gorm.DB, res *resolver.Resolver, tm *topics.Manager) *Service {
	return &Service{
		cfg, log, db,
		&notifyCommands{log, db, res, tm},
		&guildAdmin{log, db, tm},
	}
}
