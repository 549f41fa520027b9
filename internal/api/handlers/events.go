package handlers

import (
	"net/http"
	"strings"

	"github.com/dom/dataroom/internal/events"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type EventsHandler struct {
	hub      *events.Hub
	upgrader ws.Upgrader
	logger   logrus.FieldLogger
}

func NewEventsHandler(hub *events.Hub, frontendURL string, logger logrus.FieldLogger) *EventsHandler {
	allowed := strings.TrimRight(frontendURL, "/")
	return &EventsHandler{
		hub: hub,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowed
			},
		},
		logger: logger,
	}
}

// Handle upgrades the request and streams file events until either side
// closes.
func (h *EventsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := events.NewClient(h.hub, conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
