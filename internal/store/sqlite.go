package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/feedscout/feedscout/internal/models"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore handles SQLite database operations. All query methods live on
// the embedded queries value so transactions expose the same surface.
type SQLiteStore struct {
	db *sql.DB
	queries
}

type queries struct {
	db DBTX
}

var _ DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/feedscout.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/feedscout.db"
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, queries: queries{db: db}}

	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'open',
		parent_message_id INTEGER REFERENCES messages(id),
		source_room_id INTEGER REFERENCES rooms(id),
		creator_id INTEGER NOT NULL REFERENCES users(id),
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id INTEGER NOT NULL REFERENCES rooms(id),
		creator_id INTEGER NOT NULL REFERENCES users(id),
		body TEXT NOT NULL DEFAULT '',
		client_message_id TEXT NOT NULL,
		original_message_id INTEGER REFERENCES messages(id),
		attachment_name TEXT NOT NULL DEFAULT '',
		link_title TEXT NOT NULL DEFAULT '',
		link_description TEXT NOT NULL DEFAULT '',
		in_feed INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		mentions_everyone INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL REFERENCES messages(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		content TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS memberships (
		room_id INTEGER NOT NULL REFERENCES rooms(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		involvement TEXT NOT NULL DEFAULT 'mentions',
		active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (room_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS feed_cards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id INTEGER NOT NULL REFERENCES rooms(id),
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		promoted_by_id INTEGER REFERENCES users(id),
		preview_message_id INTEGER REFERENCES messages(id),
		message_fingerprint TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- A source message is copied into a given derived room at most once.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_room_original
		ON messages(room_id, original_message_id) WHERE original_message_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_feed ON messages(in_feed, active, created_at);
	CREATE INDEX IF NOT EXISTS idx_rooms_parent_message ON rooms(parent_message_id);
	CREATE INDEX IF NOT EXISTS idx_rooms_source ON rooms(source_room_id);
	CREATE INDEX IF NOT EXISTS idx_reactions_message ON reactions(message_id);
	CREATE INDEX IF NOT EXISTS idx_feed_cards_updated ON feed_cards(updated_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a single transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(queries{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// CreateUser creates a new user record.
func (q queries) CreateUser(ctx context.Context, name string) (*models.User, error) {
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO users (name, active, created_at) VALUES (?, 1, ?)
	`, name, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.User{ID: id, Name: name, Active: true, CreatedAt: now}, nil
}

// GetUser retrieves a user by ID.
func (q queries) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	var active int
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, active, created_at FROM users WHERE id = ?
	`, id).Scan(&user.ID, &user.Name, &active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	user.Active = active == 1
	return user, nil
}

const roomColumns = `id, name, kind, parent_message_id, source_room_id, creator_id, active, created_at, updated_at`

func scanRoom(row interface{ Scan(...any) error }) (*models.Room, error) {
	room := &models.Room{}
	var active int
	err := row.Scan(
		&room.ID,
		&room.Name,
		&room.Kind,
		&room.ParentMessageID,
		&room.SourceRoomID,
		&room.CreatorID,
		&active,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	room.Active = active == 1
	return room, nil
}

// CreateRoom creates a new room.
func (q queries) CreateRoom(ctx context.Context, params CreateRoomParams) (*models.Room, error) {
	kind := params.Kind
	if kind == "" {
		kind = models.RoomOpen
	}
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO rooms (name, kind, parent_message_id, source_room_id, creator_id, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`, params.Name, kind, params.ParentMessageID, params.SourceRoomID, params.CreatorID, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return q.GetRoom(ctx, id)
}

// GetRoom retrieves a room by ID.
func (q queries) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	room, err := scanRoom(q.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return room, nil
}

// ParentRoom resolves the room containing a thread room's parent message.
func (q queries) ParentRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	if room.ParentMessageID == nil {
		return nil, ErrNotFound
	}
	parent, err := scanRoom(q.db.QueryRowContext(ctx, `
		SELECT r.`+strings.ReplaceAll(roomColumns, ", ", ", r.")+`
		FROM rooms r
		JOIN messages m ON m.room_id = r.id
		WHERE m.id = ?
	`, *room.ParentMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return parent, nil
}

// ActiveThreadRoomIDs lists recently active thread rooms under a room.
func (q queries) ActiveThreadRoomIDs(ctx context.Context, roomID int64, since time.Time, limit int) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT r.id
		FROM rooms r
		JOIN messages pm ON pm.id = r.parent_message_id
		JOIN messages m ON m.room_id = r.id AND m.active = 1
		WHERE r.kind = 'thread' AND r.active = 1 AND pm.room_id = ?
		  AND m.created_at >= ?
		GROUP BY r.id
		ORDER BY MAX(m.created_at) DESC
		LIMIT ?
	`, roomID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// ThreadRoomIDs lists active thread rooms hanging off the given message.
func (q queries) ThreadRoomIDs(ctx context.Context, parentMessageID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM rooms
		WHERE kind = 'thread' AND active = 1 AND parent_message_id = ?
		ORDER BY id
	`, parentMessageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// AddMember grants a user membership in a room.
func (q queries) AddMember(ctx context.Context, roomID, userID int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO memberships (room_id, user_id, involvement, active)
		VALUES (?, ?, 'mentions', 1)
	`, roomID, userID)
	return err
}

// AddReaction records an emoji reaction on a message.
func (q queries) AddReaction(ctx context.Context, messageID, userID int64, content string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO reactions (message_id, user_id, content) VALUES (?, ?, ?)
	`, messageID, userID, content)
	return err
}

const messageColumns = `
	m.id, m.room_id, m.creator_id, m.body, m.client_message_id, m.original_message_id,
	m.attachment_name, m.link_title, m.link_description, m.in_feed, m.active,
	m.mentions_everyone, m.created_at, m.updated_at,
	u.name,
	r.id, r.name, r.kind, r.parent_message_id, r.source_room_id, r.creator_id, r.active, r.created_at, r.updated_at`

const messageFrom = `
	FROM messages m
	JOIN users u ON u.id = m.creator_id
	JOIN rooms r ON r.id = m.room_id`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	msg := &models.Message{Room: &models.Room{}}
	var inFeed, active, mentions, roomActive int
	err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.CreatorID,
		&msg.Body,
		&msg.ClientMessageID,
		&msg.OriginalMessageID,
		&msg.AttachmentName,
		&msg.LinkTitle,
		&msg.LinkDescription,
		&inFeed,
		&active,
		&mentions,
		&msg.CreatedAt,
		&msg.UpdatedAt,
		&msg.CreatorName,
		&msg.Room.ID,
		&msg.Room.Name,
		&msg.Room.Kind,
		&msg.Room.ParentMessageID,
		&msg.Room.SourceRoomID,
		&msg.Room.CreatorID,
		&roomActive,
		&msg.Room.CreatedAt,
		&msg.Room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.InFeed = inFeed == 1
	msg.Active = active == 1
	msg.MentionsEveryone = mentions == 1
	msg.Room.Active = roomActive == 1
	return msg, nil
}

func (q queries) selectMessages(ctx context.Context, clause string, args ...any) ([]*models.Message, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+messageColumns+messageFrom+` `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := q.attachReactions(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (q queries) attachReactions(ctx context.Context, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]int64, len(messages))
	byID := make(map[int64]*models.Message, len(messages))
	for i, msg := range messages {
		ids[i] = msg.ID
		byID[msg.ID] = msg
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, message_id, user_id, content, created_at
		FROM reactions WHERE message_id IN (`+placeholders(len(ids))+`)
		ORDER BY created_at
	`, asAny(ids)...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var reaction models.Reaction
		if err := rows.Scan(&reaction.ID, &reaction.MessageID, &reaction.UserID, &reaction.Content, &reaction.CreatedAt); err != nil {
			return err
		}
		if msg, ok := byID[reaction.MessageID]; ok {
			msg.Reactions = append(msg.Reactions, reaction)
		}
	}
	return rows.Err()
}

// CreateMessage creates a new message.
func (q queries) CreateMessage(ctx context.Context, params CreateMessageParams) (*models.Message, error) {
	clientID := params.ClientMessageID
	if clientID == "" {
		clientID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO messages (room_id, creator_id, body, client_message_id, attachment_name,
			link_title, link_description, in_feed, active, mentions_everyone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 1, ?, ?, ?)
	`, params.RoomID, params.CreatorID, params.Body, clientID, params.AttachmentName,
		params.LinkTitle, params.LinkDescription, boolInt(params.MentionsEveryone), now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return q.GetMessage(ctx, id)
}

// GetMessage retrieves a message by ID.
func (q queries) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	messages, err := q.selectMessages(ctx, `WHERE m.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrNotFound
	}
	return messages[0], nil
}

// MessagesByIDs loads active messages with related rows, oldest first.
func (q queries) MessagesByIDs(ctx context.Context, ids []int64) ([]*models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return q.selectMessages(ctx, `
		WHERE m.id IN (`+placeholders(len(ids))+`) AND m.active = 1
		ORDER BY m.created_at, m.id
	`, asAny(ids)...)
}

// RecentWindowMessages lists active messages in the given rooms since the
// cutoff, newest first.
func (q queries) RecentWindowMessages(ctx context.Context, roomIDs []int64, since time.Time, limit int) ([]*models.Message, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	args := append(asAny(roomIDs), since, limit)
	return q.selectMessages(ctx, `
		WHERE m.room_id IN (`+placeholders(len(roomIDs))+`) AND m.active = 1
		  AND m.created_at >= ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?
	`, args...)
}

// WindowMessages lists active messages in the given rooms between start and
// end inclusive, oldest first.
func (q queries) WindowMessages(ctx context.Context, roomIDs []int64, start, end time.Time, limit int) ([]*models.Message, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	args := append(asAny(roomIDs), start, end, limit)
	return q.selectMessages(ctx, `
		WHERE m.room_id IN (`+placeholders(len(roomIDs))+`) AND m.active = 1
		  AND m.created_at >= ? AND m.created_at <= ?
		ORDER BY m.created_at, m.id
		LIMIT ?
	`, args...)
}

// BacklogWindowMessages lists older not-in-feed messages in the given rooms,
// newest first.
func (q queries) BacklogWindowMessages(ctx context.Context, roomIDs []int64, before, floor time.Time, limit int) ([]*models.Message, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	args := append(asAny(roomIDs), before, floor, limit)
	return q.selectMessages(ctx, `
		WHERE m.room_id IN (`+placeholders(len(roomIDs))+`) AND m.active = 1
		  AND m.created_at < ? AND m.created_at >= ? AND m.in_feed = 0
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?
	`, args...)
}

// ContextWindowMessages lists older messages regardless of in_feed status,
// newest first. These provide disambiguation context only.
func (q queries) ContextWindowMessages(ctx context.Context, roomIDs []int64, before, floor time.Time, limit int) ([]*models.Message, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	args := append(asAny(roomIDs), before, floor, limit)
	return q.selectMessages(ctx, `
		WHERE m.room_id IN (`+placeholders(len(roomIDs))+`) AND m.active = 1
		  AND m.created_at < ? AND m.created_at >= ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?
	`, args...)
}

// GlobalScanMessages lists active not-in-feed messages across eligible rooms,
// oldest first. Direct and derived rooms are excluded.
func (q queries) GlobalScanMessages(ctx context.Context, since time.Time, limit int) ([]*models.Message, error) {
	return q.selectMessages(ctx, `
		WHERE m.active = 1 AND m.in_feed = 0
		  AND r.kind != 'direct' AND r.source_room_id IS NULL
		  AND m.created_at >= ?
		ORDER BY m.created_at, m.id
		LIMIT ?
	`, since, limit)
}

// FilterNotInFeed returns the subset of ids whose messages are not yet in any
// feed card.
func (q queries) FilterNotInFeed(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM messages WHERE id IN (`+placeholders(len(ids))+`) AND in_feed = 0
	`, asAny(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// MarkMessagesInFeed flags messages as having contributed to a feed card.
func (q queries) MarkMessagesInFeed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE messages SET in_feed = 1 WHERE id IN (`+placeholders(len(ids))+`)
	`, asAny(ids)...)
	return err
}

// CopyMessage copies a source message into a derived room, preserving
// timestamps, attachment markers and reactions, with a back-pointer to the
// original.
func (q queries) CopyMessage(ctx context.Context, roomID int64, original *models.Message) (*models.Message, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO messages (room_id, creator_id, body, client_message_id, original_message_id,
			attachment_name, link_title, link_description, in_feed, active, mentions_everyone,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 1, ?, ?, ?)
	`, roomID, original.CreatorID, original.Body, original.ClientMessageID, original.ID,
		original.AttachmentName, original.LinkTitle, original.LinkDescription,
		boolInt(original.MentionsEveryone), original.CreatedAt, original.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO reactions (message_id, user_id, content, created_at)
		SELECT ?, user_id, content, created_at FROM reactions WHERE message_id = ?
	`, id, original.ID)
	if err != nil {
		return nil, err
	}
	return q.GetMessage(ctx, id)
}

// FindCopyByOriginal finds the copy of a source message inside a room.
func (q queries) FindCopyByOriginal(ctx context.Context, roomID, originalID int64) (*models.Message, error) {
	messages, err := q.selectMessages(ctx, `
		WHERE m.room_id = ? AND m.original_message_id = ?
	`, roomID, originalID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrNotFound
	}
	return messages[0], nil
}

// FindCopyByClientID finds a message in a room by client message id.
func (q queries) FindCopyByClientID(ctx context.Context, roomID int64, clientMessageID string) (*models.Message, error) {
	messages, err := q.selectMessages(ctx, `
		WHERE m.room_id = ? AND m.client_message_id = ?
	`, roomID, clientMessageID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrNotFound
	}
	return messages[0], nil
}

// CopiedOriginalIDs lists original message ids already copied into a room.
func (q queries) CopiedOriginalIDs(ctx context.Context, roomID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT original_message_id FROM messages
		WHERE room_id = ? AND original_message_id IS NOT NULL
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// SiblingCopiedOriginalIDs lists original ids claimed by other derived rooms
// sharing the same source room.
func (q queries) SiblingCopiedOriginalIDs(ctx context.Context, sourceRoomID, excludeRoomID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT m.original_message_id
		FROM messages m
		JOIN rooms r ON r.id = m.room_id
		WHERE r.source_room_id = ? AND r.id != ? AND m.original_message_id IS NOT NULL
	`, sourceRoomID, excludeRoomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// CopyMemberships copies active memberships of active users from one room to
// another, skipping users already present. Returns the number copied.
func (q queries) CopyMemberships(ctx context.Context, fromRoomID, toRoomID int64) (int, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO memberships (room_id, user_id, involvement, active)
		SELECT ?, ms.user_id, ms.involvement, 1
		FROM memberships ms
		JOIN users u ON u.id = ms.user_id AND u.active = 1
		WHERE ms.room_id = ? AND ms.active = 1
	`, toRoomID, fromRoomID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const cardColumns = `
	c.id, c.room_id, c.title, c.summary, c.kind, c.promoted_by_id, c.preview_message_id,
	c.message_fingerprint, c.created_at, c.updated_at`

func scanCard(row interface{ Scan(...any) error }) (*models.FeedCard, error) {
	card := &models.FeedCard{}
	err := row.Scan(
		&card.ID,
		&card.RoomID,
		&card.Title,
		&card.Summary,
		&card.Kind,
		&card.PromotedByID,
		&card.PreviewMessageID,
		&card.MessageFingerprint,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return card, nil
}

// CreateFeedCard creates a new feed card.
func (q queries) CreateFeedCard(ctx context.Context, params CreateFeedCardParams) (*models.FeedCard, error) {
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO feed_cards (room_id, title, summary, kind, promoted_by_id, preview_message_id,
			message_fingerprint, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, params.RoomID, params.Title, params.Summary, params.Kind, params.PromotedByID,
		params.PreviewMessageID, params.MessageFingerprint, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return q.GetFeedCard(ctx, id)
}

// GetFeedCard retrieves a feed card by ID with its derived room populated.
func (q queries) GetFeedCard(ctx context.Context, id int64) (*models.FeedCard, error) {
	cards, err := q.selectCards(ctx, `WHERE c.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, ErrNotFound
	}
	return cards[0], nil
}

// FindCardByFingerprint looks up a card by its message fingerprint.
func (q queries) FindCardByFingerprint(ctx context.Context, fingerprint string) (*models.FeedCard, error) {
	cards, err := q.selectCards(ctx, `WHERE c.message_fingerprint = ?`, fingerprint)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, ErrNotFound
	}
	return cards[0], nil
}

// RecentFeedCards lists cards updated since the cutoff, most recent first.
func (q queries) RecentFeedCards(ctx context.Context, since time.Time, sourceRoomID *int64, limit int) ([]*models.FeedCard, error) {
	if sourceRoomID != nil {
		return q.selectCards(ctx, `
			WHERE c.updated_at >= ? AND r.source_room_id = ?
			ORDER BY c.updated_at DESC LIMIT ?
		`, since, *sourceRoomID, limit)
	}
	return q.selectCards(ctx, `
		WHERE c.updated_at >= ?
		ORDER BY c.updated_at DESC LIMIT ?
	`, since, limit)
}

// ListFeedCards lists the most recently created cards.
func (q queries) ListFeedCards(ctx context.Context, limit int) ([]*models.FeedCard, error) {
	return q.selectCards(ctx, `ORDER BY c.created_at DESC LIMIT ?`, limit)
}

func (q queries) selectCards(ctx context.Context, clause string, args ...any) ([]*models.FeedCard, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+cardColumns+`,
			r.`+strings.ReplaceAll(roomColumns, ", ", ", r.")+`
		FROM feed_cards c
		JOIN rooms r ON r.id = c.room_id
		`+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*models.FeedCard
	for rows.Next() {
		card := &models.FeedCard{Room: &models.Room{}}
		var roomActive int
		err := rows.Scan(
			&card.ID,
			&card.RoomID,
			&card.Title,
			&card.Summary,
			&card.Kind,
			&card.PromotedByID,
			&card.PreviewMessageID,
			&card.MessageFingerprint,
			&card.CreatedAt,
			&card.UpdatedAt,
			&card.Room.ID,
			&card.Room.Name,
			&card.Room.Kind,
			&card.Room.ParentMessageID,
			&card.Room.SourceRoomID,
			&card.Room.CreatorID,
			&roomActive,
			&card.Room.CreatedAt,
			&card.Room.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		card.Room.Active = roomActive == 1
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// TouchFeedCard bumps updated_at and optionally replaces the summary.
func (q queries) TouchFeedCard(ctx context.Context, cardID int64, summary *string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE feed_cards SET updated_at = ?, summary = COALESCE(?, summary) WHERE id = ?
	`, time.Now().UTC(), summary, cardID)
	return err
}

// CountActiveRoomMessages counts active messages in a room.
func (q queries) CountActiveRoomMessages(ctx context.Context, roomID int64) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE room_id = ? AND active = 1
	`, roomID).Scan(&count)
	return count, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func asAny(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
