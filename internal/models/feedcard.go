package models

import "time"

// CardKind distinguishes automatically detected cards from manual promotions.
type CardKind string

const (
	CardAutomated CardKind = "automated"
	CardPromoted  CardKind = "promoted"
)

// FeedCard is the persisted record of one promoted story. Each card points at
// exactly one derived room holding the copied conversation.
type FeedCard struct {
	ID                 int64     `json:"id"`
	RoomID             int64     `json:"room_id"`
	Title              string    `json:"title"`
	Summary            string    `json:"summary"`
	Kind               CardKind  `json:"kind"`
	PromotedByID       *int64    `json:"promoted_by_id,omitempty"`
	PreviewMessageID   *int64    `json:"preview_message_id,omitempty"`
	MessageFingerprint string    `json:"message_fingerprint"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// Populated by store queries that join the derived room.
	Room *Room `json:"-"`
}

// Automated reports whether the card was created by the detection pipeline.
func (c *FeedCard) Automated() bool {
	return c.Kind == CardAutomated
}
