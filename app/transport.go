package app

import (
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewTransport is the shared HTTP seam for every outbound call (Discord,
// Twitch Helix, EventSub). Tests swap this for a fake.
func NewTransport(lc fx.Lifecycle, log *zap.Logger) http.RoundTripper {
	return &transport{base: http.DefaultTransport, log: log}
}

type transport struct {
	base http.RoundTripper
	log  *zap.Logger
}

func (tpt *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := tpt.base.RoundTrip(req)

	fields := []any{"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "elapsed", time.Since(start)}
	if err != nil {
		tpt.log.Sugar().Debugw("Outbound request failed", append(fields, "err", err)...)
		return resp, err
	}
	tpt.log.Sugar().Debugw("Outbound request", append(fields, "status", resp.StatusCode)...)
	return resp, err
}
