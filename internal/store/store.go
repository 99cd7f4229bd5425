package store

import (
	"context"
	"errors"
	"time"

	"github.com/feedscout/feedscout/internal/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// CreateRoomParams holds the fields for a new room.
type CreateRoomParams struct {
	Name            string
	Kind            models.RoomKind
	ParentMessageID *int64
	SourceRoomID    *int64
	CreatorID       int64
}

// CreateMessageParams holds the fields for a new message.
type CreateMessageParams struct {
	RoomID           int64
	CreatorID        int64
	Body             string
	ClientMessageID  string
	AttachmentName   string
	LinkTitle        string
	LinkDescription  string
	MentionsEveryone bool
}

// CreateFeedCardParams holds the fields for a new feed card.
type CreateFeedCardParams struct {
	RoomID             int64
	Title              string
	Summary            string
	Kind               models.CardKind
	PromotedByID       *int64
	PreviewMessageID   *int64
	MessageFingerprint string
}

// Store is the query surface shared by the database handle and transactions.
// Methods that return a single entity yield ErrNotFound when no row matches.
type Store interface {
	// Users
	CreateUser(ctx context.Context, name string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)

	// Rooms
	CreateRoom(ctx context.Context, params CreateRoomParams) (*models.Room, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	// ParentRoom resolves the room containing a thread room's parent message.
	// Returns ErrNotFound when the room has no parent message.
	ParentRoom(ctx context.Context, room *models.Room) (*models.Room, error)
	// ActiveThreadRoomIDs lists thread rooms nested under the given room with
	// message activity since the cutoff, most recently active first.
	ActiveThreadRoomIDs(ctx context.Context, roomID int64, since time.Time, limit int) ([]int64, error)
	// ThreadRoomIDs lists active thread rooms hanging off the given message.
	ThreadRoomIDs(ctx context.Context, parentMessageID int64) ([]int64, error)
	// AddMember grants a user membership in a room; re-adding is a no-op.
	AddMember(ctx context.Context, roomID, userID int64) error

	// Messages
	CreateMessage(ctx context.Context, params CreateMessageParams) (*models.Message, error)
	// AddReaction records an emoji reaction on a message.
	AddReaction(ctx context.Context, messageID, userID int64, content string) error
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	// MessagesByIDs loads active messages with creator, room and reactions
	// populated, ordered by creation time.
	MessagesByIDs(ctx context.Context, ids []int64) ([]*models.Message, error)
	RecentWindowMessages(ctx context.Context, roomIDs []int64, since time.Time, limit int) ([]*models.Message, error)
	// WindowMessages lists active messages in the rooms between start and end
	// inclusive, oldest first.
	WindowMessages(ctx context.Context, roomIDs []int64, start, end time.Time, limit int) ([]*models.Message, error)
	BacklogWindowMessages(ctx context.Context, roomIDs []int64, before, floor time.Time, limit int) ([]*models.Message, error)
	ContextWindowMessages(ctx context.Context, roomIDs []int64, before, floor time.Time, limit int) ([]*models.Message, error)
	// GlobalScanMessages lists active not-in-feed messages across eligible
	// rooms (direct and derived rooms excluded), oldest first.
	GlobalScanMessages(ctx context.Context, since time.Time, limit int) ([]*models.Message, error)
	FilterNotInFeed(ctx context.Context, ids []int64) ([]int64, error)
	MarkMessagesInFeed(ctx context.Context, ids []int64) error

	// Derived-room copies
	CopyMessage(ctx context.Context, roomID int64, original *models.Message) (*models.Message, error)
	FindCopyByOriginal(ctx context.Context, roomID, originalID int64) (*models.Message, error)
	FindCopyByClientID(ctx context.Context, roomID int64, clientMessageID string) (*models.Message, error)
	// CopiedOriginalIDs lists the original message ids already copied into the
	// given derived room.
	CopiedOriginalIDs(ctx context.Context, roomID int64) ([]int64, error)
	// SiblingCopiedOriginalIDs lists original ids copied into other derived
	// rooms sharing the same source room.
	SiblingCopiedOriginalIDs(ctx context.Context, sourceRoomID, excludeRoomID int64) ([]int64, error)
	CopyMemberships(ctx context.Context, fromRoomID, toRoomID int64) (int, error)

	// Feed cards
	CreateFeedCard(ctx context.Context, params CreateFeedCardParams) (*models.FeedCard, error)
	GetFeedCard(ctx context.Context, id int64) (*models.FeedCard, error)
	FindCardByFingerprint(ctx context.Context, fingerprint string) (*models.FeedCard, error)
	// RecentFeedCards lists cards updated since the cutoff with their derived
	// room populated, most recently updated first. A non-nil sourceRoomID
	// restricts the listing to cards derived from that room.
	RecentFeedCards(ctx context.Context, since time.Time, sourceRoomID *int64, limit int) ([]*models.FeedCard, error)
	ListFeedCards(ctx context.Context, limit int) ([]*models.FeedCard, error)
	// TouchFeedCard bumps updated_at and optionally replaces the summary.
	TouchFeedCard(ctx context.Context, cardID int64, summary *string) error
	CountActiveRoomMessages(ctx context.Context, roomID int64) (int, error)
}

// DataStore is the full relational store: the shared query surface plus
// lifecycle and transaction support.
type DataStore interface {
	Store

	// InTx runs fn inside a single transaction; the Store passed to fn sees
	// uncommitted writes and everything rolls back if fn returns an error.
	InTx(ctx context.Context, fn func(tx Store) error) error
	Close()
	Ping(ctx context.Context) error
}
