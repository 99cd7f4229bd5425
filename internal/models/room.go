package models

import "time"

// RoomKind enumerates the room variants. Derived rooms are open rooms that
// carry a SourceRoomID back to the room their messages were copied from.
type RoomKind string

const (
	RoomOpen   RoomKind = "open"
	RoomClosed RoomKind = "closed"
	RoomThread RoomKind = "thread"
	RoomDirect RoomKind = "direct"
)

// Room represents a container of messages.
type Room struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Kind            RoomKind  `json:"kind"`
	ParentMessageID *int64    `json:"parent_message_id,omitempty"` // set only on thread rooms
	SourceRoomID    *int64    `json:"source_room_id,omitempty"`    // set only on derived rooms
	CreatorID       int64     `json:"creator_id"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsThread reports whether the room is nested under a parent message.
func (r *Room) IsThread() bool {
	return r.Kind == RoomThread
}

// IsDirect reports whether the room is a direct-message room.
func (r *Room) IsDirect() bool {
	return r.Kind == RoomDirect
}

// IsDerived reports whether the room was materialized from another room's
// messages by the promotion pipeline.
func (r *Room) IsDerived() bool {
	return r.SourceRoomID != nil
}
