package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/snipebot/streamwatch/config"
	"github.com/snipebot/streamwatch/lib"
	"github.com/snipebot/streamwatch/lib/dispatch"
	"github.com/snipebot/streamwatch/lib/models"
	"github.com/snipebot/streamwatch/twitch"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service, disp *dispatch.Dispatcher) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc, disp)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service, disp *dispatch.Dispatcher) http.Handler {
	ctrl := &controller{log, svc, disp}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/twitch/eventsub", ctrl.eventsubCallback)

	r.Route("/api/guilds", func(r chi.Router) {
		r.Post("/", ctrl.guildJoined)
		r.Route("/{guild_id}", func(r chi.Router) {
			r.Delete("/", ctrl.guildRemoved)
			r.Post("/notify", ctrl.notify)
			r.Post("/unnotify", ctrl.unnotify)
			r.Get("/notifs", ctrl.notifs)
			r.Put("/config", ctrl.changeConfig)
		})
	})

	return r
}

type controller struct {
	log  *zap.Logger
	svc  *lib.Service
	disp *dispatch.Dispatcher
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Error("Request failed", "error", err)
		return
	} else {
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

// eventsubCallback terminates Twitch's EventSub webhook: the verification
// handshake echoes the challenge, notifications hand the event to the
// dispatcher and return before any fan-out work happens.
func (ctrl *controller) eventsubCallback(w http.ResponseWriter, r *http.Request) {
	msgType := r.Header.Get("Twitch-Eventsub-Message-Type")

	var body struct {
		Challenge    string `json:"challenge"`
		Subscription struct {
			Type string `json:"type"`
		} `json:"subscription"`
		Event twitch.StreamOnlineEvent `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ctrl.reject(w, http.StatusBadRequest, err)
		return
	}

	switch msgType {
	case "webhook_callback_verification":
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(body.Challenge))

	case "notification":
		if body.Subscription.Type == "stream.online" {
			ctrl.disp.HandleStreamOnline(body.Event)
		}
		w.WriteHeader(http.StatusNoContent)

	case "revocation":
		ctrl.log.Sugar().Warnw("EventSub subscription revoked", "type", body.Subscription.Type)
		w.WriteHeader(http.StatusNoContent)

	default:
		ctrl.reject(w, http.StatusBadRequest, fmt.Errorf("unknown message type %q", msgType))
	}
}

func (ctrl *controller) guildJoined(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guildID := r.FormValue("guild_id")
	ownerID := r.FormValue("owner_id")
	channelID := r.FormValue("channel_id")

	if guildID == "" || ownerID == "" || channelID == "" {
		ctrl.reject(w, http.StatusBadRequest, errors.New("guild_id, owner_id and channel_id are required"))
		return
	}
	if err := ctrl.svc.OnGuildJoin(ctx, guildID, ownerID, channelID); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, map[string]any{"guild_id": guildID})
}

func (ctrl *controller) guildRemoved(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guildID := chi.URLParam(r, "guild_id")

	if err := ctrl.svc.OnGuildRemove(ctx, guildID); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"guild_id": guildID})
}

func (ctrl *controller) authorize(w http.ResponseWriter, r *http.Request) (guildID, userID string, ok bool) {
	guildID = chi.URLParam(r, "guild_id")
	userID = r.FormValue("user_id")

	allowed, err := ctrl.svc.IsOwnerOrOptIn(r.Context(), guildID, userID)
	if err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		return "", "", false
	}
	if !allowed {
		ctrl.reject(w, http.StatusForbidden, errors.New("You do not have permission to use this command!"))
		return "", "", false
	}
	return guildID, userID, true
}

func (ctrl *controller) notify(w http.ResponseWriter, r *http.Request) {
	guildID, userID, ok := ctrl.authorize(w, r)
	if !ok {
		return
	}
	tokens := strings.Fields(r.FormValue("streamers"))

	reply, err := ctrl.svc.Notify(r.Context(), guildID, userID, tokens)
	if err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"reply": reply})
}

func (ctrl *controller) unnotify(w http.ResponseWriter, r *http.Request) {
	guildID, userID, ok := ctrl.authorize(w, r)
	if !ok {
		return
	}
	tokens := strings.Fields(r.FormValue("streamers"))

	replies, err := ctrl.svc.Unnotify(r.Context(), guildID, userID, tokens)
	if err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"replies": replies})
}

func (ctrl *controller) notifs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guildID := chi.URLParam(r, "guild_id")
	userID := r.URL.Query().Get("user_id")

	names, err := ctrl.svc.Notifs(ctx, guildID, userID)
	if err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"streamers": names})
}

func (ctrl *controller) changeConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guildID := chi.URLParam(r, "guild_id")
	callerID := r.FormValue("user_id")
	channelID := r.FormValue("channel_id")
	mode := models.NotificationMode(r.FormValue("mode"))
	censored := r.FormValue("censored") == "true"

	err := ctrl.svc.ChangeConfig(ctx, guildID, callerID, channelID, mode, censored)
	if errors.Is(err, lib.ErrNotOwner) {
		ctrl.reject(w, http.StatusForbidden, err)
		return
	}
	if err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"guild_id": guildID})
}
