// Package feed implements the conversation-detection and promotion pipeline:
// activity tracking, scanning, deduplication, and the materialization of
// detected conversations into derived rooms with feed cards.
package feed

import "errors"

var (
	// ErrEmptyMessageIDs means a promotion was attempted with no messages.
	ErrEmptyMessageIDs = errors.New("feed: message IDs cannot be empty")
	// ErrTitleRequired means a promotion was attempted without a title.
	ErrTitleRequired = errors.New("feed: title is required")
	// ErrInvalidKind means the card kind was neither automated nor promoted.
	ErrInvalidKind = errors.New("feed: kind must be automated or promoted")
	// ErrMessagesNotFound means one or more requested messages do not exist
	// or are inactive.
	ErrMessagesNotFound = errors.New("feed: one or more messages not found")
	// ErrCardNotFound means a continuation referenced a missing feed card.
	ErrCardNotFound = errors.New("feed: feed card not found")
)

// InvalidConversationError reports why a set of messages cannot be combined
// into one derived room.
type InvalidConversationError struct {
	Reason string
}

func (e *InvalidConversationError) Error() string {
	return "feed: invalid conversation: " + e.Reason
}
