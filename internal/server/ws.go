// internal/server/ws.go
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tokenrivals/roomserver/internal/middleware"
	"github.com/tokenrivals/roomserver/internal/protocol"
	"github.com/tokenrivals/roomserver/internal/registry"
)

// WSHandler upgrades the connection, registers it and runs the
// read/write pumps until the client goes away. Cleanup (unregister +
// room disconnect policy) always runs after the read pump exits.
func (s *RoomServer) WSHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		client := registry.NewClient(cancel)
		s.Registry.Register(client)
		middleware.LogWebSocketConnect(logger, remoteAddr, r.URL.Path)
		logger.Infof("New client connected: %s (%s)", client.ID, remoteAddr)

		go writePump(ctx, c, client, logger)

		readErr := s.readPump(ctx, c, client, logger)

		s.Disconnect(client)
		middleware.LogWebSocketDisconnect(logger, remoteAddr, r.URL.Path, readErr)
	}
}

// readPump decodes inbound frames and dispatches them. It returns the
// read error that ended the connection, or nil on a normal close.
func (s *RoomServer) readPump(ctx context.Context, c *websocket.Conn, client *registry.Client, logger *logrus.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				logger.Infof("Client %s: websocket closed normally", client.ID)
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			logger.Warnf("Client %s: read error: %v (CloseStatus: %d)", client.ID, err, closeStatus)
			return err
		}

		if typ != websocket.MessageText {
			logger.Warnf("Client %s: non-text message type %d, ignoring", client.ID, typ)
			continue
		}

		var cmd protocol.Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			logger.Warnf("Client %s: invalid json: %v", client.ID, err)
			continue
		}

		s.Dispatch(client, cmd)
	}
}

// writePump drains the client's outbound channel onto the websocket
// and keeps the connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, client *registry.Client, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warnf("Client %s: failed to marshal outgoing %s: %v", client.ID, ev.Type, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Client %s: websocket write failed: %v", client.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("Client %s: ping failed, assuming disconnect: %v", client.ID, err)
				return
			}
		}
	}
}
