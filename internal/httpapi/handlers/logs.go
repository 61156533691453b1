package handlers

import (
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"renderhub/internal/httpkit"
	"renderhub/internal/pkg/errors"
)

const streamWriteTimeout = 10 * time.Second

// GetLogs returns the retained log lines, oldest first.
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) error {
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"logs": h.logs.ReadAll()})
	return nil
}

// StreamLogs upgrades to a websocket and sends every new log line as a text
// frame. With ?backlog=true the retained lines are sent first.
func (h *Handler) StreamLogs(w http.ResponseWriter, r *http.Request) error {
	if h.stream == nil {
		return errors.Unavailable("log stream")
	}

	// Subscribe before reading the backlog so no line falls in between.
	sub := h.stream.Subscribe()
	defer sub.Cancel()

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		// UpgradeHTTP already answered the client.
		h.log.FromContext(r.Context()).Debug("websocket upgrade failed", "error", err.Error())
		return nil
	}
	defer conn.Close()
	// The server read timeout would otherwise end the stream.
	_ = conn.SetReadDeadline(time.Time{})

	log := h.log.FromContext(r.Context())
	log.Info("log stream opened", "remote", r.RemoteAddr)

	send := func(line string) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return wsutil.WriteServerText(conn, []byte(line))
	}

	if r.URL.Query().Get("backlog") == "true" {
		for _, line := range h.logs.ReadAll() {
			if err := send(line); err != nil {
				return nil
			}
		}
	}

	// The reader only notices the client going away. Incoming frames
	// are ignored.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e, ok := <-sub.C:
			if !ok {
				_ = wsutil.WriteServerMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusGoingAway, "server shutting down"))
				return nil
			}
			if err := send(e.Line); err != nil {
				log.Debug("log stream write failed", "error", err.Error())
				return nil
			}
		case <-gone:
			log.Info("log stream closed", "dropped", sub.Dropped())
			return nil
		}
	}
}
