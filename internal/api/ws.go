package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gyaneshwarpardhi/automation/internal/event"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// logFrame carries execution-log lines appended since the previous frame.
type logFrame struct {
	Lines []string `json:"lines"`
	Next  int      `json:"next"`
}

// GET /v1/ws: sends the retained log on connect, then new lines on every UI
// refresh.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade the websocket", "err", err)
		return
	}
	defer ws.Close()

	refresh := make(chan struct{}, 1)
	unsubscribe := h.bus.Subscribe(event.KindUpdateGUI, func(event.Event) {
		select {
		case refresh <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	// The reader only watches for the client going away and answers pongs.
	closed := make(chan struct{})
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	next := 0
	send := func() bool {
		lines, n := h.log.Since(next)
		next = n
		if len(lines) == 0 {
			return true
		}
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := ws.WriteJSON(logFrame{Lines: lines, Next: n}); err != nil {
			h.logger.Warn("failed to write websocket frame", "err", err)
			return false
		}
		return true
	}

	h.logger.Info("log stream client connected", "remote", r.RemoteAddr)
	if !send() {
		return
	}
	for {
		select {
		case <-refresh:
			if !send() {
				return
			}
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			h.logger.Info("log stream client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		}
	}
}
