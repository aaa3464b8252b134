package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/coder/websocket"
)

type Options struct {
	PingInterval   time.Duration
	PingTimeout    time.Duration
	OriginPatterns []string
}

// Handler upgrades requests to WebSocket connections served by the hub.
// A token query parameter is dispatched as an authenticate event before
// any frame is read.
func Handler(hub *Hub, d Dispatcher, opts Options, logger *slog.Logger) http.HandlerFunc {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 20 * time.Second
	}
	cfg := pumpConfig{pingInterval: opts.PingInterval, pingTimeout: opts.PingTimeout}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		var first *Inbound
		if token := r.URL.Query().Get("token"); token != "" {
			data, _ := json.Marshal(map[string]string{"token": token})
			first = &Inbound{Event: "authenticate", Data: data}
		}

		NewClient(hub, conn).run(r.Context(), d, cfg, first)
	}
}
