// Package session implements the Command Dispatcher, Game Runner,
// Timeout Runner, and Connection Session (spec.md §4.D–G): the session
// state engine wired on top of the Registry and Messenger. It adapts the
// teacher's Client/Room/Hub (internal/v1/session) — accept, readPump,
// writePump, per-room broadcast — to the quiz lobby's command protocol
// and timed game loop.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/kirillsirotkin/quizlobby/internal/auth"
	"github.com/kirillsirotkin/quizlobby/internal/clock"
	"github.com/kirillsirotkin/quizlobby/internal/logging"
	"github.com/kirillsirotkin/quizlobby/internal/messenger"
	"github.com/kirillsirotkin/quizlobby/internal/metrics"
	"github.com/kirillsirotkin/quizlobby/internal/pack"
	"github.com/kirillsirotkin/quizlobby/internal/registry"
)

var tracer = otel.Tracer("quizlobby/session")

// colorPalette is the fixed 9-color set user colors are sampled from
// (spec.md §6).
var colorPalette = []string{
	"#000000", "#FFFF00", "#00FFFF", "#FF0000", "#00FF00",
	"#A020F0", "#964B00", "#FFA500", "#00FFFF",
}

func pickColor(r clock.Rand) string {
	n := r.IntN(len(colorPalette))
	if n < 0 || n >= len(colorPalette) {
		return "#FF0000"
	}
	return colorPalette[n]
}

// Caller is the Connection Session's view as seen by the Dispatcher: the
// connection-id a frame arrived on, and the ability to rebind it on
// successful reconnect (spec.md §9 "Mutable connection identity").
type Caller interface {
	ConnID() string
	Rebind(id string)
}

// Dispatcher parses inbound frames and carries out spec.md §4.D's
// unauthenticated and authenticated operations.
type Dispatcher struct {
	reg     *registry.Registry
	msg     *messenger.Messenger
	tokens  *auth.Service
	clk     clock.Clock
	rnd     clock.Rand
	timeout *TimeoutRunner

	questionGapSec int
	timerTickSec   int
}

// NewDispatcher builds a Dispatcher with questionGapSec/timerTickSec set
// to 2 and 1 respectively, matching spec.md §4.E's driver loop; tests
// override them via WithGameTiming (zero included) to run in bounded
// wall time.
func NewDispatcher(reg *registry.Registry, msg *messenger.Messenger, tokens *auth.Service, clk clock.Clock, rnd clock.Rand, timeout *TimeoutRunner) *Dispatcher {
	return &Dispatcher{
		reg: reg, msg: msg, tokens: tokens, clk: clk, rnd: rnd, timeout: timeout,
		questionGapSec: 2, timerTickSec: 1,
	}
}

// WithGameTiming overrides the Game Runner's inter-question and
// per-tick delays, in seconds.
func (d *Dispatcher) WithGameTiming(questionGapSec, timerTickSec int) *Dispatcher {
	d.questionGapSec = questionGapSec
	d.timerTickSec = timerTickSec
	return d
}

// Dispatch parses raw and carries out the matching operation. Parse
// failures reply with errorResponse{code=0} and never close the
// connection (spec.md §4.D, §7).
func (d *Dispatcher) Dispatch(ctx context.Context, caller Caller, raw []byte) {
	ctx, span := tracer.Start(ctx, "dispatch")
	defer span.End()

	unauth, authd, err := parseCommand(raw)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("parse", "error").Inc()
		d.reply(caller.ConnID(), "parse error", messenger.ErrorCodeGeneral)
		return
	}

	switch {
	case unauth != nil:
		d.dispatchUnauthenticated(ctx, caller, unauth)
	case authd != nil:
		d.dispatchAuthenticated(ctx, caller, authd)
	}
}

func (d *Dispatcher) reply(connID, errText string, code int) {
	d.msg.Send(messenger.VariantErrorResponse, messenger.ErrorResponse{ErrorText: errText, ErrorCode: code}, connID)
}

// timed observes CommandDuration for one named operation.
func timed(name string, fn func()) {
	start := time.Now()
	fn()
	metrics.CommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func (d *Dispatcher) dispatchUnauthenticated(ctx context.Context, caller Caller, cmd *UnauthenticatedCommand) {
	switch {
	case cmd.CreateRoom != nil:
		timed("createRoom", func() { d.handleCreateRoom(ctx, caller, cmd.CreateRoom) })
	case cmd.JoinRoom != nil:
		timed("joinRoom", func() { d.handleJoinRoom(ctx, caller, cmd.JoinRoom) })
	case cmd.Heartbeat != nil:
		timed("heartbeat", func() { d.handleHeartbeat(ctx, caller) })
	}
}

func (d *Dispatcher) dispatchAuthenticated(ctx context.Context, caller Caller, cmd *AuthenticatedCommand) {
	claims, err := d.tokens.Verify(cmd.Token)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("auth", "error").Inc()
		d.reply(caller.ConnID(), "invalid or expired token", messenger.ErrorCodeAuth)
		return
	}

	switch {
	case cmd.ReconnectRoom != nil:
		timed("reconnectRoom", func() { d.handleReconnectRoom(ctx, caller, claims) })
	case cmd.StartGame != nil:
		timed("startGame", func() { d.handleStartGame(ctx, claims, cmd.StartGame) })
	case cmd.GetUserList != nil:
		timed("getUserList", func() { d.handleGetUserList(ctx, claims) })
	case cmd.BroadcastMessage != nil:
		timed("broadcastMessage", func() { d.handleBroadcastMessage(ctx, claims, cmd.BroadcastMessage) })
	case cmd.WriteAnswer != nil:
		timed("writeAnswer", func() { d.handleWriteAnswer(ctx, claims, cmd.WriteAnswer) })
	case cmd.ChangeUsername != nil:
		timed("changeUsername", func() { d.handleChangeUsername(ctx, claims, cmd.ChangeUsername) })
	case cmd.ChangeAvatar != nil:
		timed("changeAvatar", func() { d.handleChangeAvatar(ctx, claims, cmd.ChangeAvatar) })
	}
}

func (d *Dispatcher) handleCreateRoom(ctx context.Context, caller Caller, cmd *CreateRoomCmd) {
	connID := caller.ConnID()
	if d.reg.Users.ContainsKey(connID) {
		metrics.CommandsTotal.WithLabelValues("createRoom", "rejected").Inc()
		d.reply(connID, "User already exists", messenger.ErrorCodeGeneral)
		return
	}

	roomID := uuid.NewString()
	user := registry.User{
		ID: connID, Name: cmd.Name, AvatarPath: cmd.AvatarPath,
		RoomID: roomID, IsHost: true, UserColor: pickColor(d.rnd),
	}
	token, err := d.tokens.Issue(auth.Subject{
		ID: user.ID, Name: user.Name, AvatarPath: user.AvatarPath,
		RoomID: user.RoomID, IsHost: user.IsHost, UserColor: user.UserColor,
	})
	if err != nil {
		logging.Error(ctx, "issue token for createRoom", zap.Error(err))
		d.reply(connID, "internal error", messenger.ErrorCodeGeneral)
		return
	}

	// Insert U then R, preserving invariant 1: every user's roomId must
	// identify an existing room once the user becomes visible.
	d.reg.Users.Insert(user.ID, user)
	d.reg.Rooms.Insert(roomID, registry.Room{ID: roomID, MaxPlayers: registry.MaxPlayers, HostID: connID, CurrentPlayers: 1})
	metrics.ActiveRooms.Inc()
	metrics.RoomPlayers.WithLabelValues(roomID).Set(1)

	userList := messenger.ToWireUsers([]registry.User{user})
	d.msg.Send(messenger.VariantCreateRoomResponse, messenger.CreateRoomResponse{Token: token, UserList: userList}, connID)
	d.msg.BroadcastRoomExcept(messenger.VariantUpdateUserList, messenger.UpdateUserListResponse{UserList: userList}, []registry.User{user}, connID)
	metrics.CommandsTotal.WithLabelValues("createRoom", "ok").Inc()
}

func (d *Dispatcher) handleJoinRoom(ctx context.Context, caller Caller, cmd *JoinRoomCmd) {
	connID := caller.ConnID()
	if d.reg.Users.ContainsKey(connID) {
		metrics.CommandsTotal.WithLabelValues("joinRoom", "rejected").Inc()
		d.reply(connID, "User already exists", messenger.ErrorCodeGeneral)
		return
	}

	room, ok := d.reg.Rooms.GetByID(cmd.RoomID)
	if !ok {
		metrics.CommandsTotal.WithLabelValues("joinRoom", "rejected").Inc()
		d.reply(connID, "Room does not exist", messenger.ErrorCodeGeneral)
		return
	}
	if room.CurrentPlayers >= registry.MaxPlayers {
		metrics.CommandsTotal.WithLabelValues("joinRoom", "rejected").Inc()
		d.reply(connID, "Room is full", messenger.ErrorCodeGeneral)
		return
	}
	if d.reg.Games.ContainsKey(cmd.RoomID) {
		metrics.CommandsTotal.WithLabelValues("joinRoom", "rejected").Inc()
		d.reply(connID, "Game is in progress", messenger.ErrorCodeGeneral)
		return
	}

	user := registry.User{
		ID: connID, Name: cmd.Name, AvatarPath: cmd.AvatarPath,
		RoomID: cmd.RoomID, IsHost: false, UserColor: pickColor(d.rnd),
	}
	token, err := d.tokens.Issue(auth.Subject{
		ID: user.ID, Name: user.Name, AvatarPath: user.AvatarPath,
		RoomID: user.RoomID, IsHost: user.IsHost, UserColor: user.UserColor,
	})
	if err != nil {
		logging.Error(ctx, "issue token for joinRoom", zap.Error(err))
		d.reply(connID, "internal error", messenger.ErrorCodeGeneral)
		return
	}
	d.reg.Users.Insert(user.ID, user)

	after, err := d.reg.IncrementPlayers(cmd.RoomID)
	if err != nil {
		logging.Warn(ctx, "room vanished during joinRoom", zap.String("room_id", cmd.RoomID))
		d.reply(connID, "Room does not exist", messenger.ErrorCodeGeneral)
		return
	}
	if after == 1 {
		// Every prior member departed before this join landed; the
		// empty-room edge case promotes the new arrival to host.
		_ = d.reg.SetHost(connID, true)
		_ = d.reg.Rooms.EditByID(cmd.RoomID, func(r *registry.Room) { r.HostID = connID })
	}
	metrics.RoomPlayers.WithLabelValues(cmd.RoomID).Set(float64(after))

	userList := messenger.ToWireUsers(d.reg.UsersInRoom(cmd.RoomID))
	d.msg.Send(messenger.VariantJoinRoomResponse, messenger.JoinRoomResponse{Token: token, UserList: userList}, connID)
	d.msg.BroadcastRoomExcept(messenger.VariantUpdateUserList, messenger.UpdateUserListResponse{UserList: userList}, d.reg.UsersInRoom(cmd.RoomID), connID)
	metrics.CommandsTotal.WithLabelValues("joinRoom", "ok").Inc()
}

func (d *Dispatcher) handleHeartbeat(ctx context.Context, caller Caller) {
	logging.Info(ctx, "heartbeat", zap.String("connection_id", caller.ConnID()))
	metrics.CommandsTotal.WithLabelValues("heartbeat", "ok").Inc()
}

func (d *Dispatcher) handleReconnectRoom(ctx context.Context, caller Caller, claims *auth.Claims) {
	connID := caller.ConnID()

	if d.reg.Connections.ContainsKey(claims.ID) {
		d.reply(connID, "User already active", messenger.ErrorCodeGeneral)
		return
	}
	if !d.reg.Connections.ContainsKey(connID) {
		d.reply(connID, "Cannot find connection channel", messenger.ErrorCodeGeneral)
		return
	}
	if !d.reg.Users.ContainsKey(claims.ID) {
		d.reply(connID, "User has been removed", messenger.ErrorCodeAuth)
		return
	}

	ch, _ := d.reg.Connections.GetByID(connID)
	d.reg.Connections.RemoveByID(connID)
	d.reg.Connections.Insert(claims.ID, ch)
	caller.Rebind(claims.ID)

	d.timeout.CancelUser(claims.ID)

	user, _ := d.reg.Users.GetByID(claims.ID)
	userList := messenger.ToWireUsers(d.reg.UsersInRoom(user.RoomID))
	d.msg.Send(messenger.VariantUpdateUserList, messenger.UpdateUserListResponse{UserList: userList}, claims.ID)
	metrics.CommandsTotal.WithLabelValues("reconnectRoom", "ok").Inc()
}

func (d *Dispatcher) handleStartGame(ctx context.Context, claims *auth.Claims, cmd *StartGameCmd) {
	user, ok := d.reg.Users.GetByID(claims.ID)
	if !ok {
		d.reply(claims.ID, "User does not exist", messenger.ErrorCodeGeneral)
		return
	}
	if d.reg.Games.ContainsKey(user.RoomID) {
		d.reply(claims.ID, "Game in progress", messenger.ErrorCodeGeneral)
		return
	}
	if !user.IsHost {
		metrics.CommandsTotal.WithLabelValues("startGame", "rejected").Inc()
		d.reply(claims.ID, "Only host can start game", messenger.ErrorCodeGeneral)
		return
	}

	p, err := pack.Load(cmd.PackPath)
	if err != nil {
		logging.Warn(ctx, "load pack", zap.String("path", cmd.PackPath), zap.Error(err))
		d.reply(claims.ID, fmt.Sprintf("could not load pack: %v", err), messenger.ErrorCodeGeneral)
		return
	}

	roster := d.reg.UsersInRoom(user.RoomID)
	d.msg.BroadcastRoomAll(messenger.VariantStartGame, messenger.StartGameResponse{}, roster)

	runner := NewGameRunner(d.reg, d.msg, d.clk, d.questionGapSec, d.timerTickSec)
	go runner.Run(ctx, user.RoomID, p, roster)
	metrics.CommandsTotal.WithLabelValues("startGame", "ok").Inc()
}

func (d *Dispatcher) handleGetUserList(ctx context.Context, claims *auth.Claims) {
	user, ok := d.reg.Users.GetByID(claims.ID)
	if !ok {
		d.reply(claims.ID, "User does not exist", messenger.ErrorCodeGeneral)
		return
	}
	userList := messenger.ToWireUsers(d.reg.UsersInRoom(user.RoomID))
	d.msg.Send(messenger.VariantUpdateUserList, messenger.UpdateUserListResponse{UserList: userList}, claims.ID)
}

func (d *Dispatcher) handleBroadcastMessage(ctx context.Context, claims *auth.Claims, cmd *BroadcastMessageCmd) {
	user, ok := d.reg.Users.GetByID(claims.ID)
	if !ok {
		d.reply(claims.ID, "User does not exist", messenger.ErrorCodeGeneral)
		return
	}
	roster := d.reg.UsersInRoom(user.RoomID)
	d.msg.BroadcastRoomAll(messenger.VariantNewMessage, messenger.NewMessageResponse{Author: claims.ID, Text: cmd.Text}, roster)
}

func (d *Dispatcher) handleWriteAnswer(ctx context.Context, claims *auth.Claims, cmd *WriteAnswerCmd) {
	user, ok := d.reg.Users.GetByID(claims.ID)
	if !ok {
		d.reply(claims.ID, "User does not exist", messenger.ErrorCodeGeneral)
		return
	}
	ch, ok := d.reg.Games.GetByID(user.RoomID)
	if !ok {
		d.reply(claims.ID, "No game in progress", messenger.ErrorCodeGeneral)
		return
	}
	select {
	case ch <- registry.Answer{UserID: claims.ID, Value: cmd.Answer}:
	default:
		logging.Warn(ctx, "game ingest channel full, dropping answer", zap.String("room_id", user.RoomID), zap.String("user_id", claims.ID))
	}
}

func (d *Dispatcher) handleChangeUsername(ctx context.Context, claims *auth.Claims, cmd *ChangeUsernameCmd) {
	if err := d.reg.Users.EditByID(claims.ID, func(u *registry.User) { u.Name = cmd.NewName }); err != nil {
		d.reply(claims.ID, "User does not exist", messenger.ErrorCodeGeneral)
	}
}

func (d *Dispatcher) handleChangeAvatar(ctx context.Context, claims *auth.Claims, cmd *ChangeAvatarCmd) {
	if err := d.reg.Users.EditByID(claims.ID, func(u *registry.User) { u.AvatarPath = cmd.NewAvatarPath }); err != nil {
		d.reply(claims.ID, "User does not exist", messenger.ErrorCodeGeneral)
	}
}
