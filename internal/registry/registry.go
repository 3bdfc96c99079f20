// Package registry owns the in-memory state graph shared by every other
// core component: connections, users, rooms, games, and pending-removal
// timers. It is adapted from the teacher's Hub (internal/v1/session/hub.go)
// which held a single room map behind one mutex; this version splits each
// concern into its own lock per spec.md §4.A/§5, since the quiz lobby
// needs five independently-synchronized indices rather than one.
package registry

import (
	"errors"
	"fmt"
)

// User is a lobby participant (spec.md §3 "User").
type User struct {
	ID         string
	Name       string
	AvatarPath string
	RoomID     string
	IsHost     bool
	UserColor  string
}

// Room is a lobby container (spec.md §3 "Room").
type Room struct {
	ID             string
	MaxPlayers     int
	HostID         string
	CurrentPlayers int
}

// Answer is one submitted response, carried on a Game's inbound channel
// (spec.md §4.D "writeAnswer").
type Answer struct {
	UserID string
	Value  int
}

// MaxPlayers is the fixed room capacity (spec.md §3).
const MaxPlayers = 6

// Registry bundles the five indices named in spec.md §4.A. Each index is
// independently locked; callers needing more than one must acquire them
// in the fixed order Connections → Users → Rooms → Games → UserTimeouts
// (spec.md §5) and must never invoke caller-supplied code — Messenger
// sends, most of all — while holding one of these locks.
type Registry struct {
	Connections *orderedMap[string, chan []byte]
	Users       *orderedMap[string, User]
	Rooms       *orderedMap[string, Room]
	Games       *orderedMap[string, chan Answer]
	UserTimeouts *orderedMap[string, chan struct{}]
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		Connections:  newOrderedMap[string, chan []byte](),
		Users:        newOrderedMap[string, User](),
		Rooms:        newOrderedMap[string, Room](),
		Games:        newOrderedMap[string, chan Answer](),
		UserTimeouts: newOrderedMap[string, chan struct{}](),
	}
}

// ErrRoomNotFound is returned by room-mutating helpers when the target
// room is missing.
var ErrRoomNotFound = errors.New("room does not exist")

// UsersInRoom derives the room's roster by filtering Users on RoomID,
// rather than maintaining a back-pointer list on Room (spec.md §9
// "Cyclic references"). Order matches user insertion order.
func (r *Registry) UsersInRoom(roomID string) []User {
	return r.Users.Filter(func(u User) bool { return u.RoomID == roomID })
}

// HostCount reports how many users in roomID carry the host flag; used
// by invariant checks (spec.md §8 I1) and by tests.
func (r *Registry) HostCount(roomID string) int {
	count := 0
	for _, u := range r.UsersInRoom(roomID) {
		if u.IsHost {
			count++
		}
	}
	return count
}

// IncrementPlayers atomically increments a room's CurrentPlayers and
// returns the post-increment value. Returns ErrRoomNotFound if roomID
// does not exist. It does not check MaxPlayers; callers check capacity
// before calling (spec.md §4.D.1 joinRoom step 3 happens before this).
func (r *Registry) IncrementPlayers(roomID string) (int, error) {
	var after int
	err := r.Rooms.EditByID(roomID, func(room *Room) {
		room.CurrentPlayers++
		after = room.CurrentPlayers
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return after, nil
}

// DecrementPlayers atomically decrements a room's CurrentPlayers and
// returns the post-decrement value.
func (r *Registry) DecrementPlayers(roomID string) (int, error) {
	var after int
	err := r.Rooms.EditByID(roomID, func(room *Room) {
		room.CurrentPlayers--
		after = room.CurrentPlayers
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return after, nil
}

// SetHost mutates a single user's IsHost flag in place.
func (r *Registry) SetHost(userID string, isHost bool) error {
	return r.Users.EditByID(userID, func(u *User) { u.IsHost = isHost })
}
