package api

import (
	"net/http"
	"time"

	"NetSankey/internal/model"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const streamWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamMessage is one push of the traffic stream. Error is set instead of
// Graph when a query failed; the stream stays open.
type streamMessage struct {
	Graph *model.Graph `json:"graph,omitempty"`
	Error string       `json:"error,omitempty"`
}

// streamHandler pushes the graph selected by the query parameters right away
// and then every stream interval, until the client goes away.
func (h *Handler) streamHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseTrafficRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("[WS] Upgrade error")
		return
	}
	defer conn.Close()
	log.Debugf("[WS] New traffic stream from %s", r.RemoteAddr)

	// The reader only exists to notice the client closing the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		ctx, cancel := h.withTimeout(r.Context())
		g, err := h.querier.Traffic(ctx, req)
		cancel()

		msg := streamMessage{Graph: &g}
		if err != nil {
			msg = streamMessage{Error: err.Error()}
		}
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.WithError(err).Debug("[WS] Write failed, closing stream")
			return
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
