package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/snipebot/streamwatch/app"
	"github.com/snipebot/streamwatch/config"
	"github.com/snipebot/streamwatch/lib"
	"github.com/snipebot/streamwatch/lib/dispatch"
	"github.com/snipebot/streamwatch/lib/embeds"
	"github.com/snipebot/streamwatch/lib/resolver"
	"github.com/snipebot/streamwatch/lib/topics"
	"github.com/snipebot/streamwatch/senders"
	"github.com/snipebot/streamwatch/twitch"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func main() {
	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),

		fx.Provide(twitch.NewClient),
		fx.Provide(twitch.NewEventSub),
		fx.Provide(senders.NewSenderRegistry),

		fx.Provide(func(log *zap.Logger, tc *twitch.Client) *resolver.Resolver {
			return resolver.NewResolver(log, tc)
		}),
		fx.Provide(func(log *zap.Logger, db *gorm.DB, es *twitch.EventSub, tc *twitch.Client) *topics.Manager {
			return topics.NewManager(log, db, es, tc)
		}),
		fx.Provide(func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, db *gorm.DB, reg senders.Registry, tc *twitch.Client) *dispatch.Dispatcher {
			author := embeds.Author{Name: cfg.Discord.BotName, IconURL: cfg.Discord.AvatarURL}
			disp := dispatch.NewDispatcher(log, db, reg, tc, author)

			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					disp.Start(context.Background())
					return nil
				},
				OnStop: func(ctx context.Context) error {
					disp.Stop()
					return nil
				},
			})
			return disp
		}),
		fx.Provide(lib.NewService),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(lc fx.Lifecycle, log *zap.Logger, mgr *topics.Manager) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// Upstream webhook subscriptions don't survive an endpoint
					// change; refresh every topic once the server is up.
					go func() {
						if err := mgr.ResyncAll(context.Background()); err != nil {
							log.Sugar().Errorw("Topic resync failed", "err", err)
						}
					}()
					return nil
				},
			})
		}),
		fx.Invoke(func(*http.Server) {}),
	).Run()
}
