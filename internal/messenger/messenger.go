// Package messenger implements the Messenger (spec.md §4.B): typed
// outbound fan-out over the Registry's Connections index. It never
// blocks on a slow peer. Its only Registry access is one
// Connections.GetByID read per recipient, which takes the Connections
// index's lock, so callers must not hold a Registry lock while calling
// it (spec.md §4.A's reentrancy rule).
package messenger

import (
	"encoding/json"

	"github.com/kirillsirotkin/quizlobby/internal/logging"
	"github.com/kirillsirotkin/quizlobby/internal/metrics"
	"github.com/kirillsirotkin/quizlobby/internal/registry"
	"go.uber.org/zap"
)

// Envelope is the tagged-union wire response shape (spec.md §4.B, §6).
type Envelope struct {
	Response string `json:"response"`
	Data     any    `json:"data"`
}

// User is the wire shape of a lobby participant (spec.md §6 "User object").
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AvatarPath string `json:"avatarPath"`
	RoomID     string `json:"roomId"`
	IsHost     bool   `json:"isHost"`
	UserColor  string `json:"userColor"`
}

func toWireUser(u registry.User) User {
	return User{
		ID:         u.ID,
		Name:       u.Name,
		AvatarPath: u.AvatarPath,
		RoomID:     u.RoomID,
		IsHost:     u.IsHost,
		UserColor:  u.UserColor,
	}
}

// ToWireUsers converts a roster slice to its wire representation,
// preserving order.
func ToWireUsers(users []registry.User) []User {
	out := make([]User, len(users))
	for i, u := range users {
		out[i] = toWireUser(u)
	}
	return out
}

// Response variant payloads (spec.md §6).
type CreateRoomResponse struct {
	Token    string `json:"token"`
	UserList []User `json:"userList"`
}

type JoinRoomResponse struct {
	Token    string `json:"token"`
	UserList []User `json:"userList"`
}

type UpdateUserListResponse struct {
	UserList []User `json:"userList"`
}

type NewMessageResponse struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

type StartGameResponse struct{}

type QuestionResponse struct {
	Question string `json:"question"`
}

type WireAnswer struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

type AnswersResponse struct {
	Answers []WireAnswer `json:"answers"`
	Timer   int          `json:"timer"`
}

type TimerResponse struct {
	Timer int `json:"timer"`
}

type CorrectAnswerResponse struct {
	Answers       map[string]int `json:"answers"`
	CorrectAnswer int            `json:"correct_answer"`
}

type ScoresResponse struct {
	Scores map[string]int `json:"scores"`
}

type ErrorResponse struct {
	ErrorText string `json:"errorText"`
	ErrorCode int    `json:"errorCode"`
}

// Response variant names (spec.md §6 table).
const (
	VariantCreateRoomResponse    = "createRoomResponse"
	VariantJoinRoomResponse      = "joinRoomResponse"
	VariantUpdateUserList        = "updateUserList"
	VariantNewMessage            = "newMessage"
	VariantStartGame             = "startGame"
	VariantQuestionResponse      = "questionResponse"
	VariantAnswersResponse       = "answersResponse"
	VariantTimerResponse         = "timerResponse"
	VariantCorrectAnswerResponse = "correctAnswerResponse"
	VariantScoresResponse        = "scoresResponse"
	VariantErrorResponse         = "errorResponse"
)

// Error codes (spec.md §7).
const (
	ErrorCodeGeneral = 0
	ErrorCodeAuth    = 2
)

// Messenger performs outbound fan-out by resolving user/connection ids
// to outbound channels held in the Registry.
type Messenger struct {
	reg *registry.Registry
}

// New builds a Messenger bound to reg.
func New(reg *registry.Registry) *Messenger {
	return &Messenger{reg: reg}
}

// Send serializes response under variant and enqueues it on the outbound
// channel for connID. A missing connID is not an error — the peer is
// already gone and will be reclaimed by the Timeout Runner (spec.md §4.B).
func (m *Messenger) Send(variant string, data any, connID string) {
	frame, err := json.Marshal(Envelope{Response: variant, Data: data})
	if err != nil {
		logging.Error(nil, "marshal outbound envelope", zap.String("variant", variant), zap.Error(err))
		metrics.WebsocketEvents.WithLabelValues("marshal_error").Inc()
		return
	}
	ch, ok := m.reg.Connections.GetByID(connID)
	if !ok {
		metrics.WebsocketEvents.WithLabelValues("send_dropped").Inc()
		return
	}
	select {
	case ch <- frame:
		metrics.WebsocketEvents.WithLabelValues("sent").Inc()
	default:
		// Outbound channel is full: the peer's writer is stalled.
		// Drop rather than block, per spec.md §7 "Transport" — the
		// peer will be reclaimed by the Timeout Runner.
		metrics.WebsocketEvents.WithLabelValues("send_dropped").Inc()
	}
}

// BroadcastRoomAll sends response to every user in users (spec.md §4.B).
func (m *Messenger) BroadcastRoomAll(variant string, data any, users []registry.User) {
	metrics.BroadcastFanout.Observe(float64(len(users)))
	for _, u := range users {
		m.Send(variant, data, u.ID)
	}
}

// BroadcastRoomExcept sends response to every user in users other than
// exceptID (spec.md §4.B).
func (m *Messenger) BroadcastRoomExcept(variant string, data any, users []registry.User, exceptID string) {
	count := 0
	for _, u := range users {
		if u.ID == exceptID {
			continue
		}
		count++
	}
	metrics.BroadcastFanout.Observe(float64(count))
	for _, u := range users {
		if u.ID == exceptID {
			continue
		}
		m.Send(variant, data, u.ID)
	}
}
