package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillsirotkin/quizlobby/internal/auth"
	"github.com/kirillsirotkin/quizlobby/internal/clock"
	"github.com/kirillsirotkin/quizlobby/internal/messenger"
	"github.com/kirillsirotkin/quizlobby/internal/registry"
)

const testSecret = "01234567890123456789012345678901"

type fakeCaller struct {
	id string
}

func (f *fakeCaller) ConnID() string    { return f.id }
func (f *fakeCaller) Rebind(id string)  { f.id = id }

func newTestDispatcher() (*Dispatcher, *registry.Registry) {
	reg := registry.New()
	msg := messenger.New(reg)
	tokens := auth.NewService(testSecret)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fr := clock.NewFakeRand(0)
	timeout := NewTimeoutRunner(reg, msg, fc, fr).WithGraceWindow(time.Millisecond)
	d := NewDispatcher(reg, msg, tokens, fc, fr, timeout).WithGameTiming(0, 0)
	return d, reg
}

func recvEnvelope(t *testing.T, ch chan []byte) messenger.Envelope {
	t.Helper()
	select {
	case frame := <-ch:
		var env messenger.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return env
	default:
		t.Fatal("expected a frame on the channel")
	}
	return messenger.Envelope{}
}

func TestCreateRoom_MakesHostAndRoom(t *testing.T) {
	d, reg := newTestDispatcher()
	caller := &fakeCaller{id: "conn-a"}
	ch := make(chan []byte, 4)
	reg.Connections.Insert("conn-a", ch)

	d.Dispatch(context.Background(), caller, []byte(`{"createRoom":{"name":"A","avatarPath":""}}`))

	env := recvEnvelope(t, ch)
	if env.Response != messenger.VariantCreateRoomResponse {
		t.Fatalf("unexpected response: %s", env.Response)
	}

	user, ok := reg.Users.GetByID("conn-a")
	if !ok || !user.IsHost {
		t.Fatalf("expected a host user to be created: %+v", user)
	}
	if reg.Rooms.Len() != 1 {
		t.Fatalf("expected exactly one room, got %d", reg.Rooms.Len())
	}
}

func TestCreateRoom_RejectsDuplicateUser(t *testing.T) {
	d, reg := newTestDispatcher()
	caller := &fakeCaller{id: "conn-a"}
	ch := make(chan []byte, 4)
	reg.Connections.Insert("conn-a", ch)

	d.Dispatch(context.Background(), caller, []byte(`{"createRoom":{"name":"A","avatarPath":""}}`))
	<-ch
	d.Dispatch(context.Background(), caller, []byte(`{"createRoom":{"name":"A2","avatarPath":""}}`))

	env := recvEnvelope(t, ch)
	if env.Response != messenger.VariantErrorResponse {
		t.Fatalf("expected error response, got %s", env.Response)
	}
}

// B1: a 7th joinRoom for a room already at 6 fails and does not mutate state.
func TestJoinRoom_RoomFull(t *testing.T) {
	d, reg := newTestDispatcher()
	roomID := "r1"
	reg.Rooms.Insert(roomID, registry.Room{ID: roomID, MaxPlayers: registry.MaxPlayers, CurrentPlayers: registry.MaxPlayers})

	caller := &fakeCaller{id: "conn-full"}
	ch := make(chan []byte, 4)
	reg.Connections.Insert("conn-full", ch)

	d.Dispatch(context.Background(), caller, []byte(`{"joinRoom":{"name":"X","avatarPath":"","roomId":"r1"}}`))

	env := recvEnvelope(t, ch)
	if env.Response != messenger.VariantErrorResponse {
		t.Fatalf("expected error, got %s", env.Response)
	}
	room, _ := reg.Rooms.GetByID(roomID)
	if room.CurrentPlayers != registry.MaxPlayers {
		t.Fatalf("room full rejection must not mutate state, got current_players=%d", room.CurrentPlayers)
	}
	if reg.Users.ContainsKey("conn-full") {
		t.Fatal("rejected joiner should not be inserted into Users")
	}
}

func TestJoinRoom_EmptyRoomPromotesJoinerToHost(t *testing.T) {
	d, reg := newTestDispatcher()
	roomID := "r1"
	reg.Rooms.Insert(roomID, registry.Room{ID: roomID, MaxPlayers: registry.MaxPlayers, CurrentPlayers: 0})

	caller := &fakeCaller{id: "conn-b"}
	ch := make(chan []byte, 4)
	reg.Connections.Insert("conn-b", ch)

	d.Dispatch(context.Background(), caller, []byte(`{"joinRoom":{"name":"B","avatarPath":"","roomId":"r1"}}`))

	user, ok := reg.Users.GetByID("conn-b")
	if !ok || !user.IsHost {
		t.Fatalf("expected joiner into an empty room to become host: %+v", user)
	}
}

// B2: startGame from a non-host fails; the host can subsequently start.
func TestStartGame_NonHostRejected_HostSucceeds(t *testing.T) {
	d, reg := newTestDispatcher()
	tokens := auth.NewService(testSecret)
	roomID := "r1"
	reg.Rooms.Insert(roomID, registry.Room{ID: roomID, MaxPlayers: registry.MaxPlayers, CurrentPlayers: 2})
	reg.Users.Insert("host", registry.User{ID: "host", RoomID: roomID, IsHost: true})
	reg.Users.Insert("guest", registry.User{ID: "guest", RoomID: roomID, IsHost: false})
	hostCh := make(chan []byte, 4)
	guestCh := make(chan []byte, 4)
	reg.Connections.Insert("host", hostCh)
	reg.Connections.Insert("guest", guestCh)

	guestToken, _ := tokens.Issue(auth.Subject{ID: "guest"})
	caller := &fakeCaller{id: "guest"}
	d.Dispatch(context.Background(), caller, []byte(`{"startGame":{"packPath":"/does/not/exist.json"},"token":"`+guestToken+`"}`))

	env := recvEnvelope(t, guestCh)
	if env.Response != messenger.VariantErrorResponse {
		t.Fatalf("expected non-host start to be rejected, got %s", env.Response)
	}
	if reg.Games.ContainsKey(roomID) {
		t.Fatal("non-host startGame must not create a game entry")
	}

	packPath := filepath.Join(t.TempDir(), "p.json")
	packJSON := `{"name":"p","questions":[{"text":"q1","answers":[{"number":1,"text":"a"}],"correct_answer":1,"duration_sec":0}]}`
	if err := os.WriteFile(packPath, []byte(packJSON), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	hostToken, _ := tokens.Issue(auth.Subject{ID: "host"})
	d.Dispatch(context.Background(), &fakeCaller{id: "host"}, []byte(`{"startGame":{"packPath":"`+packPath+`"},"token":"`+hostToken+`"}`))

	env = recvEnvelope(t, hostCh)
	if env.Response != messenger.VariantStartGame {
		t.Fatalf("expected the host's start to broadcast startGame, got %s", env.Response)
	}
}

func TestReconnectRoom_RebindsConnectionAndCancelsTimeout(t *testing.T) {
	d, reg := newTestDispatcher()
	tokens := auth.NewService(testSecret)
	roomID := "r1"
	reg.Rooms.Insert(roomID, registry.Room{ID: roomID, MaxPlayers: registry.MaxPlayers, CurrentPlayers: 1})
	reg.Users.Insert("u1", registry.User{ID: "u1", RoomID: roomID, IsHost: true})
	reg.UserTimeouts.Insert("u1", make(chan struct{}))

	newConnCh := make(chan []byte, 4)
	reg.Connections.Insert("new-conn", newConnCh)

	token, _ := tokens.Issue(auth.Subject{ID: "u1", RoomID: roomID})
	caller := &fakeCaller{id: "new-conn"}
	d.Dispatch(context.Background(), caller, []byte(`{"reconnectRoom":{},"token":"`+token+`"}`))

	if caller.ConnID() != "u1" {
		t.Fatalf("expected caller rebind to u1, got %s", caller.ConnID())
	}
	if reg.UserTimeouts.ContainsKey("u1") {
		t.Fatal("expected pending user-timeout to be cancelled on reconnect")
	}
	if reg.Connections.ContainsKey("new-conn") {
		t.Fatal("expected connection-id key to move off the temporary id")
	}
	if !reg.Connections.ContainsKey("u1") {
		t.Fatal("expected connection registered under u1 after rebind")
	}

	env := recvEnvelope(t, newConnCh)
	if env.Response != messenger.VariantUpdateUserList {
		t.Fatalf("expected updateUserList, got %s", env.Response)
	}
}

func TestReconnectRoom_RemovedUserYieldsAuthError(t *testing.T) {
	d, reg := newTestDispatcher()
	tokens := auth.NewService(testSecret)
	ch := make(chan []byte, 4)
	reg.Connections.Insert("conn-x", ch)

	token, _ := tokens.Issue(auth.Subject{ID: "ghost"})
	caller := &fakeCaller{id: "conn-x"}
	d.Dispatch(context.Background(), caller, []byte(`{"reconnectRoom":{},"token":"`+token+`"}`))

	env := recvEnvelope(t, ch)
	if env.Response != messenger.VariantErrorResponse {
		t.Fatalf("expected errorResponse, got %s", env.Response)
	}
	var payload messenger.ErrorResponse
	b, _ := json.Marshal(env.Data)
	json.Unmarshal(b, &payload)
	if payload.ErrorCode != messenger.ErrorCodeAuth {
		t.Fatalf("expected auth error code, got %d", payload.ErrorCode)
	}
}

func TestWriteAnswer_NoGameInProgress(t *testing.T) {
	d, reg := newTestDispatcher()
	tokens := auth.NewService(testSecret)
	reg.Users.Insert("u1", registry.User{ID: "u1", RoomID: "r1"})
	ch := make(chan []byte, 4)
	reg.Connections.Insert("u1", ch)

	token, _ := tokens.Issue(auth.Subject{ID: "u1", RoomID: "r1"})
	caller := &fakeCaller{id: "u1"}
	d.Dispatch(context.Background(), caller, []byte(`{"writeAnswer":{"answer":1},"token":"`+token+`"}`))

	env := recvEnvelope(t, ch)
	if env.Response != messenger.VariantErrorResponse {
		t.Fatalf("expected error when no game is in progress, got %s", env.Response)
	}
}

func TestChangeUsername_MutatesSilently(t *testing.T) {
	d, reg := newTestDispatcher()
	tokens := auth.NewService(testSecret)
	reg.Users.Insert("u1", registry.User{ID: "u1", Name: "old"})
	ch := make(chan []byte, 4)
	reg.Connections.Insert("u1", ch)

	token, _ := tokens.Issue(auth.Subject{ID: "u1"})
	caller := &fakeCaller{id: "u1"}
	d.Dispatch(context.Background(), caller, []byte(`{"changeUsername":{"newName":"new"},"token":"`+token+`"}`))

	user, _ := reg.Users.GetByID("u1")
	if user.Name != "new" {
		t.Fatalf("expected name updated, got %q", user.Name)
	}
	select {
	case <-ch:
		t.Fatal("changeUsername must not broadcast")
	default:
	}
}

func TestParseCommand_MalformedFrameYieldsParseError(t *testing.T) {
	d, reg := newTestDispatcher()
	caller := &fakeCaller{id: "conn-a"}
	ch := make(chan []byte, 4)
	reg.Connections.Insert("conn-a", ch)

	d.Dispatch(context.Background(), caller, []byte(`not json at all`))

	env := recvEnvelope(t, ch)
	if env.Response != messenger.VariantErrorResponse {
		t.Fatalf("expected errorResponse for malformed frame, got %s", env.Response)
	}
	var payload messenger.ErrorResponse
	b, _ := json.Marshal(env.Data)
	json.Unmarshal(b, &payload)
	if payload.ErrorCode != messenger.ErrorCodeGeneral {
		t.Fatalf("expected general error code 0, got %d", payload.ErrorCode)
	}
}
