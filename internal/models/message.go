package models

import "time"

// Message represents an immutable content unit belonging to one room.
// Copies made by the promotion pipeline carry OriginalMessageID back to the
// message they were copied from.
type Message struct {
	ID                int64     `json:"id"`
	RoomID            int64     `json:"room_id"`
	CreatorID         int64     `json:"creator_id"`
	Body              string    `json:"body"`
	ClientMessageID   string    `json:"client_message_id"`
	OriginalMessageID *int64    `json:"original_message_id,omitempty"`
	AttachmentName    string    `json:"attachment_name,omitempty"`
	LinkTitle         string    `json:"link_title,omitempty"`
	LinkDescription   string    `json:"link_description,omitempty"`
	InFeed            bool      `json:"in_feed"`
	Active            bool      `json:"active"`
	MentionsEveryone  bool      `json:"mentions_everyone"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	// Populated by store queries that join related rows.
	CreatorName string     `json:"creator_name,omitempty"`
	Room        *Room      `json:"-"`
	Reactions   []Reaction `json:"reactions,omitempty"`
}

// IsCopy reports whether the message was copied into a derived room.
func (m *Message) IsCopy() bool {
	return m.OriginalMessageID != nil
}

// HasAttachment reports whether the message carries an attached file.
func (m *Message) HasAttachment() bool {
	return m.AttachmentName != ""
}

// HasLinkPreview reports whether an unfurled link preview is attached.
func (m *Message) HasLinkPreview() bool {
	return m.LinkTitle != "" || m.LinkDescription != ""
}

// Reaction is an emoji reaction left on a message.
type Reaction struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
