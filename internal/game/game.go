// Package game holds the pure state machine for one tower session: member
// bookkeeping, anchor-relative coordinate translation, round-robin turn
// enforcement and collapse arbitration. It performs no I/O; the room actor
// owns a State and is the only goroutine that touches it.
package game

import (
	"encoding/json"
	"errors"
	"slices"
)

var ErrRoomFull = errors.New("room is full")
var ErrUnknownMember = errors.New("connection is not a room member")
var ErrNotStarted = errors.New("game has not started")
var ErrOutOfTurn = errors.New("not this member's turn")
var ErrAnchorNotSet = errors.New("anchor not set")
var ErrGameResolved = errors.New("outcome already delivered")
var ErrUnsupportedCommand = errors.New("unsupported command")

// MaxMembers is the hard membership cap per room.
const MaxMembers = 2

// Player is one connected member of a room.
type Player struct {
	ConnID      string
	DisplayData json.RawMessage // client-supplied, stored verbatim
	Anchor      *Vec3           // nil until the player places their tower base
	Ready       bool
}

// Block is the last known transform for one block, relative to the anchor of
// whichever player moved it last.
type Block struct {
	ID               int        `json:"id"`
	RelativePosition Vec3       `json:"relativePosition"`
	Orientation      Quaternion `json:"orientation"`
}

// State is the full mutable state of one session. Members is ordered by join
// time; that order defines turn rotation. TurnCursor is meaningful only once
// Started is true.
type State struct {
	Members         []Player
	Blocks          map[int]Block
	TurnCursor      int
	Started         bool
	ResultDelivered bool
}

func NewState() *State {
	return &State{Blocks: make(map[int]Block)}
}

type CommandType string

const (
	CmdJoin           CommandType = "Join"
	CmdLeave          CommandType = "Leave"
	CmdSetAnchor      CommandType = "SetAnchor"
	CmdReady          CommandType = "Ready"
	CmdMoveBlock      CommandType = "MoveBlock"
	CmdReportCollapse CommandType = "ReportCollapse"
)

type Command struct {
	Type        CommandType
	ConnID      string
	DisplayData json.RawMessage
	BlockID     int
	Position    Vec3
	Orientation Quaternion
}

type EventType string

const (
	EvtPlayerJoined   EventType = "PlayerJoined"
	EvtPlayerLeft     EventType = "PlayerLeft"
	EvtGameStarted    EventType = "GameStarted"
	EvtBlockUpdated   EventType = "BlockUpdated"
	EvtTurnChanged    EventType = "TurnChanged"
	EvtOutcomeDecided EventType = "OutcomeDecided"
)

// Event is a fact produced by Apply. ConnID identifies the subject: the
// joiner, the leaver, the mover, the new active player, or the loser,
// depending on Type. The room actor turns events into addressed messages.
type Event struct {
	Type        EventType
	ConnID      string
	DisplayData json.RawMessage
	Block       Block
	Blocks      []Block
}

// Apply runs one command against the state, mutating it in place, and
// returns the events the caller must deliver. On error the state is
// unchanged. Errors other than ErrRoomFull are protocol-ordering violations
// that callers reject silently.
func Apply(s *State, cmd Command) ([]Event, error) {
	switch cmd.Type {
	case CmdJoin:
		if len(s.Members) >= MaxMembers {
			return nil, ErrRoomFull
		}
		s.Members = append(s.Members, Player{ConnID: cmd.ConnID, DisplayData: cmd.DisplayData})
		return []Event{{Type: EvtPlayerJoined, ConnID: cmd.ConnID, DisplayData: cmd.DisplayData}}, nil

	case CmdLeave:
		i := s.memberIndex(cmd.ConnID)
		if i < 0 {
			return nil, ErrUnknownMember
		}
		s.Members = slices.Delete(s.Members, i, i+1)
		// Keep the cursor pointing at a live member. The turn is not
		// advanced and no TurnChanged is emitted: with two players the
		// departure ends the game and the room is abandoned.
		if s.TurnCursor > i {
			s.TurnCursor--
		}
		if s.TurnCursor >= len(s.Members) {
			s.TurnCursor = 0
		}
		return []Event{{Type: EvtPlayerLeft, ConnID: cmd.ConnID}}, nil

	case CmdSetAnchor:
		p := s.member(cmd.ConnID)
		if p == nil {
			return nil, ErrUnknownMember
		}
		pos := cmd.Position
		p.Anchor = &pos
		return nil, nil

	case CmdReady:
		p := s.member(cmd.ConnID)
		if p == nil {
			return nil, ErrUnknownMember
		}
		p.Ready = true
		if s.Started || !s.allReady() {
			return nil, nil
		}
		s.Started = true
		s.TurnCursor = 0
		return []Event{
			{Type: EvtGameStarted, Blocks: s.BlockList()},
			{Type: EvtTurnChanged, ConnID: s.Members[0].ConnID},
		}, nil

	case CmdMoveBlock:
		p := s.member(cmd.ConnID)
		if p == nil {
			return nil, ErrUnknownMember
		}
		if !s.Started {
			return nil, ErrNotStarted
		}
		if s.ResultDelivered {
			return nil, ErrGameResolved
		}
		if s.Members[s.TurnCursor].ConnID != cmd.ConnID {
			return nil, ErrOutOfTurn
		}
		if p.Anchor == nil {
			return nil, ErrAnchorNotSet
		}
		b := Block{
			ID:               cmd.BlockID,
			RelativePosition: Relative(cmd.Position, *p.Anchor),
			Orientation:      cmd.Orientation,
		}
		s.Blocks[b.ID] = b
		s.TurnCursor = (s.TurnCursor + 1) % len(s.Members)
		return []Event{
			{Type: EvtBlockUpdated, ConnID: cmd.ConnID, Block: b},
			{Type: EvtTurnChanged, ConnID: s.Members[s.TurnCursor].ConnID},
		}, nil

	case CmdReportCollapse:
		if s.member(cmd.ConnID) == nil {
			return nil, ErrUnknownMember
		}
		if s.ResultDelivered {
			return nil, ErrGameResolved
		}
		s.ResultDelivered = true
		return []Event{{Type: EvtOutcomeDecided, ConnID: cmd.ConnID}}, nil

	default:
		return nil, ErrUnsupportedCommand
	}
}

// BlockList returns the block transforms sorted by id, for snapshots.
func (s *State) BlockList() []Block {
	blocks := make([]Block, 0, len(s.Blocks))
	for _, b := range s.Blocks {
		blocks = append(blocks, b)
	}
	slices.SortFunc(blocks, func(a, b Block) int { return a.ID - b.ID })
	return blocks
}

// ActiveConnID reports who may move. Empty until the game starts.
func (s *State) ActiveConnID() string {
	if !s.Started || len(s.Members) == 0 {
		return ""
	}
	return s.Members[s.TurnCursor].ConnID
}

func (s *State) member(connID string) *Player {
	if i := s.memberIndex(connID); i >= 0 {
		return &s.Members[i]
	}
	return nil
}

func (s *State) memberIndex(connID string) int {
	return slices.IndexFunc(s.Members, func(p Player) bool { return p.ConnID == connID })
}

func (s *State) allReady() bool {
	for _, p := range s.Members {
		if !p.Ready {
			return false
		}
	}
	return len(s.Members) > 0
}
