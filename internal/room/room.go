// Package room runs one goroutine per session. That goroutine owns the
// game.State outright, so every join, move, ready, collapse and disconnect
// against a room is serialized while unrelated rooms proceed in parallel.
// Outbound messages are emitted inside the same loop iteration as the state
// mutation they describe, so no observer sees one without the other.
package room

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/arjenga/tower-backend/internal/game"
	"github.com/arjenga/tower-backend/pkg/types"
)

type Msg interface{ isRoomMsg() }

// Join registers a member and their outbox. The reply carries the room
// snapshot on success, or game.ErrRoomFull.
type Join struct {
	ConnID      string
	DisplayData json.RawMessage
	Outbox      chan types.ServerMessage
	Reply       chan JoinResult
}

func (Join) isRoomMsg() {}

type JoinResult struct {
	Snapshot *types.RoomSnapshot
	Err      error
}

// Leave removes a member, usually on disconnect. Unknown connections are
// ignored, making it safe to send unconditionally from a connection's defer.
type Leave struct{ ConnID string }

func (Leave) isRoomMsg() {}

type FromClient struct{ Cmd game.Command }

func (FromClient) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// GetState reflects internal state without data races; used by the ops
// endpoint and tests.
type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Snapshot     types.RoomSnapshot
	ActiveConnID string
	Resolved     bool
}

const (
	lostMessage = "You lost! You caused the tower to collapse."
	wonMessage  = "You won! The other player caused the tower to collapse."
)

type Room struct {
	id       string
	inbox    chan Msg
	state    *game.State
	outboxes map[string]chan types.ServerMessage
	onEmpty  func(roomID string)
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// New starts the room goroutine. onEmpty is invoked from inside the loop
// when the last member leaves, just before the room shuts itself down; it
// must not send back into this room's inbox synchronously.
func New(parent context.Context, id string, onEmpty func(roomID string), log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:       id,
		inbox:    make(chan Msg, 64),
		state:    game.NewState(),
		outboxes: make(map[string]chan types.ServerMessage),
		onEmpty:  onEmpty,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has shut down; senders should give up then.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				events, err := game.Apply(r.state, game.Command{
					Type:        game.CmdJoin,
					ConnID:      msg.ConnID,
					DisplayData: msg.DisplayData,
				})
				if err != nil {
					msg.Reply <- JoinResult{Err: err}
					break
				}
				r.outboxes[msg.ConnID] = msg.Outbox
				snap := r.snapshot()
				msg.Reply <- JoinResult{Snapshot: &snap}
				r.route(events)

			case Leave:
				events, err := game.Apply(r.state, game.Command{Type: game.CmdLeave, ConnID: msg.ConnID})
				if err != nil {
					break // not a member; idempotent no-op
				}
				if ch, ok := r.outboxes[msg.ConnID]; ok {
					close(ch)
					delete(r.outboxes, msg.ConnID)
				}
				if len(r.state.Members) == 0 {
					r.log.Info("room empty, tearing down")
					if r.onEmpty != nil {
						r.onEmpty(r.id)
					}
					r.shutdown()
					return
				}
				r.route(events)

			case FromClient:
				events, err := game.Apply(r.state, msg.Cmd)
				if err != nil {
					// Out-of-turn and anchor races are expected from
					// client jitter; reject without a reply.
					r.log.Debug("command rejected",
						zap.String("cmd", string(msg.Cmd.Type)),
						zap.String("conn", msg.Cmd.ConnID),
						zap.Error(err))
					break
				}
				r.route(events)

			case GetState:
				msg.Reply <- View{
					Snapshot:     r.snapshot(),
					ActiveConnID: r.state.ActiveConnID(),
					Resolved:     r.state.ResultDelivered,
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

// route converts state-machine events into addressed wire messages.
func (r *Room) route(events []game.Event) {
	for _, ev := range events {
		switch ev.Type {
		case game.EvtPlayerJoined:
			r.sendExcept(ev.ConnID, types.ServerMessage{
				Type:         types.MsgPlayerJoined,
				ConnectionID: ev.ConnID,
				DisplayData:  ev.DisplayData,
			})

		case game.EvtPlayerLeft:
			r.broadcast(types.ServerMessage{
				Type:         types.MsgPlayerLeft,
				ConnectionID: ev.ConnID,
			})

		case game.EvtGameStarted:
			r.broadcast(types.ServerMessage{
				Type:   types.MsgGameStarted,
				Blocks: ev.Blocks,
			})

		case game.EvtBlockUpdated:
			block := ev.Block
			for _, p := range r.state.Members {
				if p.ConnID == ev.ConnID {
					continue
				}
				if p.Anchor == nil {
					// The relative delta is useless to a member with no
					// anchor; they catch up from the snapshot instead.
					r.log.Warn("dropping block update for anchorless member",
						zap.String("conn", p.ConnID),
						zap.Int("block", block.ID))
					continue
				}
				r.send(p.ConnID, types.ServerMessage{
					Type:  types.MsgBlockUpdated,
					Block: &block,
				})
			}

		case game.EvtTurnChanged:
			r.broadcast(types.ServerMessage{
				Type:               types.MsgTurnChanged,
				ActiveConnectionID: ev.ConnID,
			})

		case game.EvtOutcomeDecided:
			for _, p := range r.state.Members {
				if p.ConnID == ev.ConnID {
					r.send(p.ConnID, types.ServerMessage{
						Type:    types.MsgOutcome,
						Result:  types.ResultLost,
						Message: lostMessage,
					})
				} else {
					r.send(p.ConnID, types.ServerMessage{
						Type:    types.MsgOutcome,
						Result:  types.ResultWon,
						Message: wonMessage,
					})
				}
			}
		}
	}
}

func (r *Room) broadcast(msg types.ServerMessage) {
	for connID := range r.outboxes {
		r.send(connID, msg)
	}
}

func (r *Room) sendExcept(exceptConnID string, msg types.ServerMessage) {
	for connID := range r.outboxes {
		if connID != exceptConnID {
			r.send(connID, msg)
		}
	}
}

func (r *Room) send(connID string, msg types.ServerMessage) {
	ch, ok := r.outboxes[connID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		// Slow consumer; drop the message rather than stall the room.
		r.log.Warn("outbox full, dropping message",
			zap.String("conn", connID),
			zap.String("type", msg.Type))
	}
}

func (r *Room) snapshot() types.RoomSnapshot {
	players := make([]types.PlayerInfo, 0, len(r.state.Members))
	for _, p := range r.state.Members {
		players = append(players, types.PlayerInfo{
			ConnectionID: p.ConnID,
			DisplayData:  p.DisplayData,
			Ready:        p.Ready,
		})
	}
	return types.RoomSnapshot{
		RoomID:  r.id,
		Players: players,
		Blocks:  r.state.BlockList(),
		Started: r.state.Started,
	}
}

func (r *Room) shutdown() {
	for connID, ch := range r.outboxes {
		close(ch)
		delete(r.outboxes, connID)
	}
	r.cancel()
}
