package websocket

import (
	"errors"
	"sort"
	"time"
)

var ErrUnknownConnection = errors.New("unknown connection")

// ConnectionRecord describes one live transport session.
type ConnectionRecord struct {
	ID          string
	UserID      string // empty until register-user
	CurrentRoom string // last joined room, diagnostics only
	ConnectedAt time.Time
}

type set map[string]struct{}

// Registry maps users and rooms to live connections.
//
// A Registry is not safe for concurrent use. The Hub owns it and mutates it
// from its event loop only.
type Registry struct {
	conns     map[string]*ConnectionRecord
	users     map[string]set // user id -> connection ids
	rooms     map[string]set // room id -> connection ids
	connRooms map[string]set // connection id -> room ids
}

func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]*ConnectionRecord),
		users:     make(map[string]set),
		rooms:     make(map[string]set),
		connRooms: make(map[string]set),
	}
}

// Connect records a new anonymous connection.
func (r *Registry) Connect(connID string) ConnectionRecord {
	rec, ok := r.conns[connID]
	if !ok {
		rec = &ConnectionRecord{ID: connID, ConnectedAt: time.Now()}
		r.conns[connID] = rec
	}
	return *rec
}

// Register binds connID to userID. firstSession is true when the user had no
// other connection before. Registering under a different user moves the
// connection; vacated then names the previous user if that left them with
// no connection.
func (r *Registry) Register(connID, userID string) (firstSession bool, vacated string, err error) {
	rec, ok := r.conns[connID]
	if !ok {
		return false, "", ErrUnknownConnection
	}
	if rec.UserID == userID {
		return false, "", nil
	}
	if rec.UserID != "" && r.removeFromUser(rec.UserID, connID) {
		vacated = rec.UserID
	}

	conns := r.users[userID]
	if conns == nil {
		conns = make(set)
		r.users[userID] = conns
	}
	firstSession = len(conns) == 0
	conns[connID] = struct{}{}
	rec.UserID = userID
	return firstSession, vacated, nil
}

// JoinRoom adds connID to roomID. Membership is additive: earlier rooms are
// kept. added is false when the connection already was a member.
func (r *Registry) JoinRoom(connID, roomID string) (added bool, err error) {
	rec, ok := r.conns[connID]
	if !ok {
		return false, ErrUnknownConnection
	}
	rec.CurrentRoom = roomID

	members := r.rooms[roomID]
	if members == nil {
		members = make(set)
		r.rooms[roomID] = members
	}
	if _, ok := members[connID]; ok {
		return false, nil
	}
	members[connID] = struct{}{}

	joined := r.connRooms[connID]
	if joined == nil {
		joined = make(set)
		r.connRooms[connID] = joined
	}
	joined[roomID] = struct{}{}
	return true, nil
}

// Disconnect removes connID from every index. lastSession reports that the
// owning user has no connection left.
func (r *Registry) Disconnect(connID string) (rec ConnectionRecord, lastSession bool, ok bool) {
	stored, ok := r.conns[connID]
	if !ok {
		return ConnectionRecord{}, false, false
	}
	delete(r.conns, connID)

	for roomID := range r.connRooms[connID] {
		if members := r.rooms[roomID]; members != nil {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	delete(r.connRooms, connID)

	if stored.UserID != "" {
		lastSession = r.removeFromUser(stored.UserID, connID)
	}
	return *stored, lastSession, true
}

func (r *Registry) removeFromUser(userID, connID string) (empty bool) {
	conns := r.users[userID]
	if conns == nil {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

func (r *Registry) Lookup(connID string) (ConnectionRecord, bool) {
	rec, ok := r.conns[connID]
	if !ok {
		return ConnectionRecord{}, false
	}
	return *rec, true
}

// Connections returns the connection ids registered for userID, sorted.
func (r *Registry) Connections(userID string) []string {
	return sorted(r.users[userID])
}

// RoomMembers returns the connection ids subscribed to roomID, sorted.
func (r *Registry) RoomMembers(roomID string) []string {
	return sorted(r.rooms[roomID])
}

// Rooms returns the rooms connID has joined, sorted.
func (r *Registry) Rooms(connID string) []string {
	return sorted(r.connRooms[connID])
}

// InRoom reports whether connID has joined roomID.
func (r *Registry) InRoom(connID, roomID string) bool {
	_, ok := r.rooms[roomID][connID]
	return ok
}

func (r *Registry) IsOnline(userID string) bool {
	return len(r.users[userID]) > 0
}

type RegistryStats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
	Rooms       int `json:"rooms"`
}

func (r *Registry) Stats() RegistryStats {
	return RegistryStats{
		Connections: len(r.conns),
		Users:       len(r.users),
		Rooms:       len(r.rooms),
	}
}

func sorted(s set) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
