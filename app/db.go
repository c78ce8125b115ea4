package app

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/snipebot/streamwatch/config"
	"github.com/snipebot/streamwatch/lib/models"
)

func NewDatabase(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config) *gorm.DB {
	// sqlite ships with foreign keys off and the pragma is per-connection,
	// so enable it via the DSN; the guild cascade depends on it.
	dsn := cfg.DatabasePath + "?_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Sugar().Panic("failed to connect database", "err", err)
	}
	log.Info("Database started")

	log.Info("Starting migrations")
	db.AutoMigrate(
		&models.Guild{},
		&models.Streamer{},
		&models.UserSubscription{},
	)
	return db
}
