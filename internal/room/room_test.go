package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arjenga/tower-backend/internal/game"
	"github.com/arjenga/tower-backend/pkg/types"
)

func newTestRoom(t *testing.T, onEmpty func(string)) *Room {
	t.Helper()
	rm := New(context.Background(), "room-1", onEmpty, zap.NewNop())
	t.Cleanup(func() {
		select {
		case rm.Inbox() <- Shutdown{}:
		case <-rm.Done():
		}
	})
	return rm
}

func join(t *testing.T, rm *Room, connID string) chan types.ServerMessage {
	t.Helper()
	out := make(chan types.ServerMessage, 16)
	reply := make(chan JoinResult, 1)
	rm.Inbox() <- Join{ConnID: connID, Outbox: out, Reply: reply}
	res := <-reply
	require.NoError(t, res.Err)
	require.NotNil(t, res.Snapshot)
	return out
}

func recv(t *testing.T, ch chan types.ServerMessage) types.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "outbox closed while expecting a message")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return types.ServerMessage{}
	}
}

func cmd(rm *Room, c game.Command) {
	rm.Inbox() <- FromClient{Cmd: c}
}

func TestFullSession(t *testing.T) {
	empty := make(chan string, 1)
	rm := newTestRoom(t, func(id string) { empty <- id })

	aOut := join(t, rm, "a")
	bOut := join(t, rm, "b")

	joined := recv(t, aOut)
	require.Equal(t, types.MsgPlayerJoined, joined.Type)
	require.Equal(t, "b", joined.ConnectionID)

	cmd(rm, game.Command{Type: game.CmdSetAnchor, ConnID: "a", Position: game.Vec3{}})
	cmd(rm, game.Command{Type: game.CmdSetAnchor, ConnID: "b", Position: game.Vec3{X: 10}})
	cmd(rm, game.Command{Type: game.CmdReady, ConnID: "a"})
	cmd(rm, game.Command{Type: game.CmdReady, ConnID: "b"})

	for _, out := range []chan types.ServerMessage{aOut, bOut} {
		require.Equal(t, types.MsgGameStarted, recv(t, out).Type)
		turn := recv(t, out)
		require.Equal(t, types.MsgTurnChanged, turn.Type)
		require.Equal(t, "a", turn.ActiveConnectionID)
	}

	cmd(rm, game.Command{
		Type:        game.CmdMoveBlock,
		ConnID:      "a",
		BlockID:     3,
		Position:    game.Vec3{X: 0.1},
		Orientation: game.IdentityQuaternion(),
	})

	update := recv(t, bOut)
	require.Equal(t, types.MsgBlockUpdated, update.Type)
	require.NotNil(t, update.Block)
	require.Equal(t, 3, update.Block.ID)
	require.Equal(t, game.Vec3{X: 0.1}, update.Block.RelativePosition)

	// b reconstructs against their own anchor.
	require.Equal(t, game.Vec3{X: 10.1}, game.Absolute(update.Block.RelativePosition, game.Vec3{X: 10}))

	for _, out := range []chan types.ServerMessage{aOut, bOut} {
		turn := recv(t, out)
		require.Equal(t, types.MsgTurnChanged, turn.Type)
		require.Equal(t, "b", turn.ActiveConnectionID)
	}

	cmd(rm, game.Command{Type: game.CmdReportCollapse, ConnID: "b"})

	lost := recv(t, bOut)
	require.Equal(t, types.MsgOutcome, lost.Type)
	require.Equal(t, types.ResultLost, lost.Result)

	won := recv(t, aOut)
	require.Equal(t, types.MsgOutcome, won.Type)
	require.Equal(t, types.ResultWon, won.Result)

	// Duplicate collapse reports are swallowed.
	cmd(rm, game.Command{Type: game.CmdReportCollapse, ConnID: "a"})

	rm.Inbox() <- Leave{ConnID: "a"}
	left := recv(t, bOut)
	require.Equal(t, types.MsgPlayerLeft, left.Type)
	require.Equal(t, "a", left.ConnectionID)

	select {
	case _, ok := <-aOut:
		require.False(t, ok, "a's outbox should be closed, not receiving")
	case <-time.After(time.Second):
		t.Fatal("a's outbox not closed after leave")
	}

	rm.Inbox() <- Leave{ConnID: "b"}
	select {
	case id := <-empty:
		require.Equal(t, "room-1", id)
	case <-time.After(time.Second):
		t.Fatal("onEmpty not invoked after last leave")
	}
}

func TestThirdJoinRejected(t *testing.T) {
	rm := newTestRoom(t, nil)
	join(t, rm, "a")
	join(t, rm, "b")

	out := make(chan types.ServerMessage, 16)
	reply := make(chan JoinResult, 1)
	rm.Inbox() <- Join{ConnID: "c", Outbox: out, Reply: reply}
	res := <-reply
	require.ErrorIs(t, res.Err, game.ErrRoomFull)

	view := getView(t, rm)
	require.Len(t, view.Snapshot.Players, 2)
}

func TestBlockUpdateDroppedForAnchorlessMember(t *testing.T) {
	rm := newTestRoom(t, nil)
	aOut := join(t, rm, "a")
	bOut := join(t, rm, "b")
	recv(t, aOut) // playerJoined b

	// Only a places a tower base before the game starts.
	cmd(rm, game.Command{Type: game.CmdSetAnchor, ConnID: "a", Position: game.Vec3{}})
	cmd(rm, game.Command{Type: game.CmdReady, ConnID: "a"})
	cmd(rm, game.Command{Type: game.CmdReady, ConnID: "b"})

	for _, out := range []chan types.ServerMessage{aOut, bOut} {
		require.Equal(t, types.MsgGameStarted, recv(t, out).Type)
		require.Equal(t, types.MsgTurnChanged, recv(t, out).Type)
	}

	cmd(rm, game.Command{Type: game.CmdMoveBlock, ConnID: "a", BlockID: 1, Position: game.Vec3{X: 1}})

	// b has no anchor, so the relative update is dropped and the next
	// message b sees is the turn handoff.
	next := recv(t, bOut)
	require.Equal(t, types.MsgTurnChanged, next.Type)
	require.Equal(t, "b", next.ActiveConnectionID)
}

func TestLeaveIsIdempotent(t *testing.T) {
	rm := newTestRoom(t, nil)
	join(t, rm, "a")

	rm.Inbox() <- Leave{ConnID: "ghost"}

	view := getView(t, rm)
	require.Len(t, view.Snapshot.Players, 1)
	require.Equal(t, "a", view.Snapshot.Players[0].ConnectionID)
}

func getView(t *testing.T, rm *Room) View {
	t.Helper()
	reply := make(chan View, 1)
	rm.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for room view")
		return View{}
	}
}
