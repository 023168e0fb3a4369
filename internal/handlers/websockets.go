package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tasmota_mqtt/internal/models"
	"tasmota_mqtt/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 5 * time.Second
	maxInterval      = 60 * time.Second
	maxIntervalMilli = 60_000
)

// Envelope types.
const (
	wsTypeStatus      = "status"
	wsTypeRelayState  = "relay_state"
	wsTypeIdle        = "idle"
	wsTypeNoTransport = "no_transport"
	wsTypeMessage     = "message"
)

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// upgrader accepts the origins configured with AllowOrigins. Without any, gorilla's
// same-origin check applies; "*" accepts every origin.
func (h *Handler) upgrader() *websocket.Upgrader {
	if len(h.origins) == 0 {
		return &websocket.Upgrader{}
	}
	return &websocket.Upgrader{CheckOrigin: h.originAllowed}
}

func (h *Handler) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// envelopeFor wraps a pushed notification.
func envelopeFor(msg any) wsEnvelope {
	switch msg.(type) {
	case models.RelayStateMessage:
		return wsEnvelope{Type: wsTypeRelayState, Data: msg}
	case models.IdleStatusMessage:
		return wsEnvelope{Type: wsTypeIdle, Data: msg}
	case models.NoTransportMessage:
		return wsEnvelope{Type: wsTypeNoTransport, Data: msg}
	default:
		return wsEnvelope{Type: wsTypeMessage, Data: msg}
	}
}

// wsConnect streams pushed notifications and a periodic status snapshot.
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	// subscribe before the first write so nothing broadcast meanwhile is lost
	var pushed <-chan any
	if h.hub != nil {
		ch, cancel := h.hub.Subscribe()
		defer cancel()
		pushed = ch
	}

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	ctx := c.Request.Context()
	if err := h.sendStatus(ctx, conn); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}
	// a new client gets the idle state through the normal broadcast
	if h.services.Host != nil {
		_ = h.services.HandleEvent(ctx, service.EventClientOpened, nil)
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-pushed:
			if !ok {
				return
			}
			if err := h.write(conn, envelopeFor(msg)); err != nil {
				if h.log != nil {
					h.log.Infow("ws_push_failed", "err", err)
				}
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case <-ticker.C:
			if err := h.sendStatus(ctx, conn); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// parseInterval reads ?interval=10s or ?interval_ms=10000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}
	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}
	return defaultInterval
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Debugw("ws_read_closed", "err", err)
			}
			return
		}
	}
}

func (h *Handler) sendStatus(ctx context.Context, conn *websocket.Conn) error {
	st, err := h.services.GetStatus(ctx)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_get_status_failed", "err", err)
		}
		return err
	}
	return h.write(conn, wsEnvelope{Type: wsTypeStatus, Data: st})
}

func (h *Handler) write(conn *websocket.Conn, env wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}
