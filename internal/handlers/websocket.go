package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/client"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; the dashboard is served elsewhere
		return true
	},
}

// HandleWebSocket upgrades the connection and registers a subscriber.
// The current snapshots are queued first so a new subscriber starts in sync.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	c := client.NewClient(clientID, conn, h.hub, h.logger)

	for _, snap := range h.store.GetAll() {
		if !c.TrySend(models.SnapshotMessage(snap)) {
			break
		}
	}

	h.hub.Register(c)

	go c.WritePump(h.ctx)
	go c.ReadPump(h.ctx)

	h.logger.Info("subscriber connected",
		zap.String("subscriber_id", clientID),
		zap.String("remote_addr", r.RemoteAddr),
	)
}
