package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnauthenticatedCommand is the first command-envelope shape the
// Dispatcher tries to parse (spec.md §4.D, §6): exactly one of
// createRoom, joinRoom, or heartbeat, no token.
type UnauthenticatedCommand struct {
	CreateRoom *CreateRoomCmd `json:"createRoom,omitempty"`
	JoinRoom   *JoinRoomCmd   `json:"joinRoom,omitempty"`
	Heartbeat  *struct{}      `json:"heartbeat,omitempty"`
}

type CreateRoomCmd struct {
	Name       string `json:"name"`
	AvatarPath string `json:"avatarPath"`
}

type JoinRoomCmd struct {
	Name       string `json:"name"`
	AvatarPath string `json:"avatarPath"`
	RoomID     string `json:"roomId"`
}

// AuthenticatedCommand is the second shape tried: any one operation
// paired with a bearer token (spec.md §4.D, §6).
type AuthenticatedCommand struct {
	Token            string                `json:"token"`
	ReconnectRoom    *struct{}             `json:"reconnectRoom,omitempty"`
	StartGame        *StartGameCmd         `json:"startGame,omitempty"`
	GetUserList      *struct{}             `json:"getUserList,omitempty"`
	BroadcastMessage *BroadcastMessageCmd  `json:"broadcastMessage,omitempty"`
	WriteAnswer      *WriteAnswerCmd       `json:"writeAnswer,omitempty"`
	ChangeUsername   *ChangeUsernameCmd    `json:"changeUsername,omitempty"`
	ChangeAvatar     *ChangeAvatarCmd      `json:"changeAvatar,omitempty"`
}

type StartGameCmd struct {
	PackPath string `json:"packPath"`
}

type BroadcastMessageCmd struct {
	Text string `json:"text"`
}

type WriteAnswerCmd struct {
	Answer int `json:"answer"`
}

type ChangeUsernameCmd struct {
	NewName string `json:"newName"`
}

type ChangeAvatarCmd struct {
	NewAvatarPath string `json:"newAvatarPath"`
}

func (c *UnauthenticatedCommand) operationCount() int {
	n := 0
	if c.CreateRoom != nil {
		n++
	}
	if c.JoinRoom != nil {
		n++
	}
	if c.Heartbeat != nil {
		n++
	}
	return n
}

func (c *AuthenticatedCommand) operationCount() int {
	n := 0
	if c.ReconnectRoom != nil {
		n++
	}
	if c.StartGame != nil {
		n++
	}
	if c.GetUserList != nil {
		n++
	}
	if c.BroadcastMessage != nil {
		n++
	}
	if c.WriteAnswer != nil {
		n++
	}
	if c.ChangeUsername != nil {
		n++
	}
	if c.ChangeAvatar != nil {
		n++
	}
	return n
}

// strictUnmarshal rejects unknown top-level keys, so a frame shaped for
// one command arm never silently decodes as the other.
func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseCommand attempts the unauthenticated shape first, then the
// authenticated shape, per spec.md §4.D's parse policy.
func parseCommand(raw []byte) (*UnauthenticatedCommand, *AuthenticatedCommand, error) {
	var unauth UnauthenticatedCommand
	if err := strictUnmarshal(raw, &unauth); err == nil && unauth.operationCount() == 1 {
		return &unauth, nil, nil
	}

	var auth AuthenticatedCommand
	if err := strictUnmarshal(raw, &auth); err == nil && auth.Token != "" && auth.operationCount() == 1 {
		return nil, &auth, nil
	}

	return nil, nil, fmt.Errorf("envelope matches neither the unauthenticated nor the authenticated command shape")
}
