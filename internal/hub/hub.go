// Package hub is the process-wide room registry. A single goroutine owns the
// id -> room map, so create/get/remove never race and never hold up any
// individual room's message loop.
package hub

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arjenga/tower-backend/internal/room"
)

type HubMsg interface{ isHubMsg() }

// CreateRoom allocates a room under a freshly generated id.
type CreateRoom struct {
	Reply chan *room.Room
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room // nil if unknown
}

type RemoveRoom struct {
	ID string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				id := uuid.NewString()
				rm := room.New(h.ctx, id, h.scheduleRemove, h.log.With(zap.String("room", id)))
				h.rooms[id] = rm
				h.log.Info("room created", zap.String("room", id))
				msg.Reply <- rm

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID]

			case RemoveRoom:
				delete(h.rooms, msg.ID)
				h.log.Info("room removed", zap.String("room", msg.ID))

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// scheduleRemove is handed to each room as its onEmpty callback. It runs on
// the room's goroutine, so it must only enqueue, never touch the map.
func (h *Hub) scheduleRemove(roomID string) {
	select {
	case h.inbox <- RemoveRoom{ID: roomID}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() {
	for id, rm := range h.rooms {
		select {
		case rm.Inbox() <- room.Shutdown{}:
		case <-rm.Done():
		}
		delete(h.rooms, id)
	}
	h.cancel()
}
