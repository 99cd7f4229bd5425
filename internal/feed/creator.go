package feed

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/metrics"
	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

// CreateParams describes one promotion, automated or manual.
type CreateParams struct {
	MessageIDs       []int64
	Title            string
	Summary          string
	KeyInsight       string
	PreviewMessageID *int64
	Kind             models.CardKind
	PromotedByID     *int64
}

// Result is the derived room plus feed card a promotion resolved to.
type Result struct {
	Room *models.Room
	Card *models.FeedCard
}

// Creator materializes a conversation into a derived room with copied
// messages, copied memberships, and a feed card. Creation is atomic and
// idempotent: an existing card with the same fingerprint is returned as-is.
type Creator struct {
	db     store.DataStore
	logger zerolog.Logger
}

// NewCreator builds a creator.
func NewCreator(db store.DataStore, logger zerolog.Logger) *Creator {
	return &Creator{
		db:     db,
		logger: logger.With().Str("component", "creator").Logger(),
	}
}

// Create validates and materializes a promotion.
func (c *Creator) Create(ctx context.Context, params CreateParams) (*Result, error) {
	if len(params.MessageIDs) == 0 {
		return nil, ErrEmptyMessageIDs
	}
	if params.Title == "" {
		return nil, ErrTitleRequired
	}
	if params.Kind != models.CardAutomated && params.Kind != models.CardPromoted {
		return nil, ErrInvalidKind
	}

	messages, err := c.db.MessagesByIDs(ctx, params.MessageIDs)
	if err != nil {
		return nil, err
	}
	if len(messages) != len(params.MessageIDs) {
		return nil, ErrMessagesNotFound
	}

	analysis, err := Analyze(ctx, c.db, messages, nil)
	if err != nil {
		return nil, err
	}
	if !analysis.Valid {
		return nil, &InvalidConversationError{Reason: analysis.Reason}
	}
	sourceRoom := analysis.SourceRoom

	fingerprint := Fingerprint(params.MessageIDs)
	if existing, err := c.db.FindCardByFingerprint(ctx, fingerprint); err == nil {
		room, err := c.db.GetRoom(ctx, existing.RoomID)
		if err != nil {
			return nil, err
		}
		c.logger.Info().Int64("card_id", existing.ID).Msg("fingerprint already promoted, returning existing card")
		return &Result{Room: room, Card: existing}, nil
	} else if err != store.ErrNotFound {
		return nil, err
	}

	var result Result
	err = c.db.InTx(ctx, func(tx store.Store) error {
		roomName := params.KeyInsight
		if roomName == "" {
			roomName = params.Title
		}
		creatorID := messages[0].CreatorID
		if params.PromotedByID != nil {
			creatorID = *params.PromotedByID
		}

		room, err := tx.CreateRoom(ctx, store.CreateRoomParams{
			Name:         roomName,
			Kind:         models.RoomOpen,
			SourceRoomID: &sourceRoom.ID,
			CreatorID:    creatorID,
		})
		if err != nil {
			return err
		}

		copied, err := tx.CopyMemberships(ctx, sourceRoom.ID, room.ID)
		if err != nil {
			return err
		}
		c.logger.Info().Int64("room_id", room.ID).Int("memberships", copied).Msg("copied memberships from source room")

		for _, msg := range messages {
			if _, err := tx.CopyMessage(ctx, room.ID, msg); err != nil {
				return err
			}
		}

		previewID, err := c.resolvePreview(ctx, tx, room.ID, params.PreviewMessageID, messages)
		if err != nil {
			return err
		}

		card, err := tx.CreateFeedCard(ctx, store.CreateFeedCardParams{
			RoomID:             room.ID,
			Title:              params.Title,
			Summary:            params.Summary,
			Kind:               params.Kind,
			PromotedByID:       params.PromotedByID,
			PreviewMessageID:   previewID,
			MessageFingerprint: fingerprint,
		})
		if err != nil {
			return err
		}

		if err := tx.MarkMessagesInFeed(ctx, params.MessageIDs); err != nil {
			return err
		}

		result = Result{Room: room, Card: card}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CardsCreated.WithLabelValues(string(params.Kind)).Inc()
	c.logger.Info().
		Int64("room_id", result.Room.ID).
		Int64("card_id", result.Card.ID).
		Str("title", result.Card.Title).
		Msg("created feed card")
	return &result, nil
}

// resolvePreview maps the preview choice, an original message ID, onto the
// copy living in the derived room. Falls back to client_message_id matching,
// then to no preview; a missing preview never fails the promotion.
func (c *Creator) resolvePreview(ctx context.Context, tx store.Store, roomID int64, previewMessageID *int64, messages []*models.Message) (*int64, error) {
	if previewMessageID == nil {
		return nil, nil
	}

	copied, err := tx.FindCopyByOriginal(ctx, roomID, *previewMessageID)
	if err == nil {
		return &copied.ID, nil
	}
	if err != store.ErrNotFound {
		return nil, err
	}

	for _, msg := range messages {
		if msg.ID != *previewMessageID {
			continue
		}
		copied, err := tx.FindCopyByClientID(ctx, roomID, msg.ClientMessageID)
		if err == nil {
			return &copied.ID, nil
		}
		if err != store.ErrNotFound {
			return nil, err
		}
	}

	c.logger.Warn().Int64("preview_message_id", *previewMessageID).Msg("preview message not found among copies")
	return nil, nil
}
