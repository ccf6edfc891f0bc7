// Package ws is the session gateway: one handler goroutine per client
// connection, reading the closed set of inbound messages and dispatching
// them into the hub and the connection's current room.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arjenga/tower-backend/internal/game"
	"github.com/arjenga/tower-backend/internal/hub"
	"github.com/arjenga/tower-backend/internal/room"
	"github.com/arjenga/tower-backend/pkg/types"
)

var errRoomClosed = errors.New("room closed")

func Handler(h *hub.Hub, log *zap.Logger, writeTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		logger := log.With(zap.String("conn", connID))
		logger.Info("connected")

		// Room-routed messages arrive on the outbox; the room closes it
		// once this member leaves.
		outbox := make(chan types.ServerMessage, 32)
		var current *room.Room

		defer func() {
			logger.Info("disconnected")
			if current != nil {
				select {
				case current.Inbox() <- room.Leave{ConnID: connID}:
				case <-current.Done():
				}
			} else {
				close(outbox)
			}
		}()

		writeCtx, writeCancel := context.WithCancel(context.Background())
		defer writeCancel()
		go func() {
			for msg := range outbox {
				writeMsg(writeCtx, conn, writeTimeout, msg)
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				logger.Warn("bad json", zap.Error(err))
				continue
			}

			switch cm.Type {
			case types.MsgCreateSession:
				if current != nil {
					logger.Warn("createSession while already in a room")
					continue
				}
				reply := make(chan *room.Room, 1)
				h.Inbox() <- hub.CreateRoom{Reply: reply}
				rm := <-reply
				res := joinRoom(rm, connID, cm.DisplayData, outbox)
				if res.Err != nil {
					// Fresh rooms always admit their creator.
					logger.Error("join of fresh room failed", zap.Error(res.Err))
					continue
				}
				current = rm
				writeMsg(r.Context(), conn, writeTimeout, types.ServerMessage{
					Type:   types.MsgSessionCreated,
					RoomID: rm.ID(),
				})

			case types.MsgJoinSession:
				if current != nil {
					logger.Warn("joinSession while already in a room")
					continue
				}
				reply := make(chan *room.Room, 1)
				h.Inbox() <- hub.GetRoom{ID: cm.RoomID, Reply: reply}
				rm := <-reply
				if rm == nil {
					writeMsg(r.Context(), conn, writeTimeout, types.ServerMessage{
						Type:   types.MsgRoomError,
						Reason: types.ReasonNotFound,
					})
					continue
				}
				res := joinRoom(rm, connID, cm.DisplayData, outbox)
				switch {
				case errors.Is(res.Err, game.ErrRoomFull):
					writeMsg(r.Context(), conn, writeTimeout, types.ServerMessage{
						Type:   types.MsgRoomError,
						Reason: types.ReasonFull,
					})
				case res.Err != nil:
					writeMsg(r.Context(), conn, writeTimeout, types.ServerMessage{
						Type:   types.MsgRoomError,
						Reason: types.ReasonNotFound,
					})
				default:
					current = rm
					writeMsg(r.Context(), conn, writeTimeout, types.ServerMessage{
						Type:     types.MsgJoinedRoom,
						RoomID:   rm.ID(),
						Snapshot: res.Snapshot,
					})
				}

			default:
				cmd, ok := toCommand(cm, connID)
				if !ok {
					logger.Warn("unknown message type", zap.String("type", cm.Type))
					continue
				}
				if current == nil || current.ID() != cm.RoomID {
					writeMsg(r.Context(), conn, writeTimeout, types.ServerMessage{
						Type:   types.MsgRoomError,
						Reason: types.ReasonNotFound,
					})
					continue
				}
				select {
				case current.Inbox() <- room.FromClient{Cmd: cmd}:
				case <-current.Done():
					return
				}
			}
		}
	}
}

// toCommand maps a room-scoped client message onto a game command.
func toCommand(cm types.ClientMessage, connID string) (game.Command, bool) {
	switch cm.Type {
	case types.MsgSetAnchor:
		if cm.Position == nil {
			return game.Command{}, false
		}
		return game.Command{Type: game.CmdSetAnchor, ConnID: connID, Position: *cm.Position}, true
	case types.MsgPlayerReady:
		return game.Command{Type: game.CmdReady, ConnID: connID}, true
	case types.MsgMoveBlock:
		if cm.Position == nil {
			return game.Command{}, false
		}
		orientation := game.IdentityQuaternion()
		if cm.Orientation != nil {
			orientation = *cm.Orientation
		}
		return game.Command{
			Type:        game.CmdMoveBlock,
			ConnID:      connID,
			BlockID:     cm.BlockID,
			Position:    *cm.Position,
			Orientation: orientation,
		}, true
	case types.MsgReportCollapse:
		return game.Command{Type: game.CmdReportCollapse, ConnID: connID}, true
	default:
		return game.Command{}, false
	}
}

func joinRoom(rm *room.Room, connID string, displayData json.RawMessage, outbox chan types.ServerMessage) room.JoinResult {
	reply := make(chan room.JoinResult, 1)
	select {
	case rm.Inbox() <- room.Join{ConnID: connID, DisplayData: displayData, Outbox: outbox, Reply: reply}:
	case <-rm.Done():
		return room.JoinResult{Err: errRoomClosed}
	}
	select {
	case res := <-reply:
		return res
	case <-rm.Done():
		// The room may have replied just before shutting down.
		select {
		case res := <-reply:
			return res
		default:
			return room.JoinResult{Err: errRoomClosed}
		}
	}
}

func writeMsg(ctx context.Context, conn *websocket.Conn, timeout time.Duration, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
