package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/ai"
	"github.com/feedscout/feedscout/internal/config"
	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

const (
	dedupCardWindow = 7 * 24 * time.Hour
	dedupCardLimit  = 20
)

// Action is the deduplicator's verdict for a candidate conversation.
type Action string

const (
	// ActionSkip means the conversation is already captured; do nothing.
	ActionSkip Action = "skip"
	// ActionNewTopic means the conversation deserves its own card.
	ActionNewTopic Action = "new_topic"
	// ActionContinuation means the conversation extends an existing card.
	ActionContinuation Action = "continuation"
)

// Decision is the outcome of a dedup check. Card is set for skip and
// continuation verdicts; Fingerprint is set whenever the exact-match stage
// computed one.
type Decision struct {
	Action      Action
	Card        *models.FeedCard
	Reason      string
	Fingerprint string
	Similarity  float64
}

// Deduplicator decides whether a detected conversation duplicates or extends
// an existing card. An exact fingerprint match short-circuits; otherwise the
// completion gateway compares the candidate against recent cards. Gateway
// failures and unverifiable card references degrade to new_topic, which at
// worst creates a redundant card instead of losing a conversation.
type Deduplicator struct {
	db        store.DataStore
	completer ai.Completer
	cfg       *config.Config
	logger    zerolog.Logger
}

// NewDeduplicator builds a deduplicator.
func NewDeduplicator(db store.DataStore, completer ai.Completer, cfg *config.Config, logger zerolog.Logger) *Deduplicator {
	return &Deduplicator{
		db:        db,
		completer: completer,
		cfg:       cfg,
		logger:    logger.With().Str("component", "deduplicator").Logger(),
	}
}

// Check runs both dedup stages. A non-nil sourceRoomID restricts the semantic
// stage to cards derived from that room.
func (d *Deduplicator) Check(ctx context.Context, conversation models.Conversation, sourceRoomID *int64) (Decision, error) {
	fingerprint := Fingerprint(conversation.MessageIDs)

	existing, err := d.db.FindCardByFingerprint(ctx, fingerprint)
	if err == nil {
		d.logger.Info().Int64("card_id", existing.ID).Msg("exact fingerprint match")
		return Decision{Action: ActionSkip, Card: existing, Reason: "exact_fingerprint_match", Fingerprint: fingerprint}, nil
	}
	if err != store.ErrNotFound {
		return Decision{}, err
	}

	decision, err := d.checkTopicSimilarity(ctx, conversation, sourceRoomID)
	if err != nil {
		return Decision{}, err
	}
	decision.Fingerprint = fingerprint
	return decision, nil
}

func (d *Deduplicator) checkTopicSimilarity(ctx context.Context, conversation models.Conversation, sourceRoomID *int64) (Decision, error) {
	since := time.Now().Add(-dedupCardWindow)
	cards, err := d.db.RecentFeedCards(ctx, since, sourceRoomID, dedupCardLimit)
	if err != nil {
		return Decision{}, err
	}
	if len(cards) == 0 {
		return Decision{Action: ActionNewTopic}, nil
	}

	cardsBlock, err := d.formatCards(ctx, cards)
	if err != nil {
		return Decision{}, err
	}
	prompt := ai.BuildDeduplicationPrompt(formatCandidate(conversation), cardsBlock)

	response, err := d.completer.Complete(ctx, ai.Request{
		Prompt:         prompt,
		Model:          d.cfg.AIModel,
		ResponseFormat: ai.DeduplicationFormat(),
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("dedup completion failed")
		return Decision{Action: ActionNewTopic, Reason: "completion failed"}, nil
	}

	var parsed struct {
		Action          string  `json:"action"`
		RelatedCardID   *int64  `json:"related_card_id"`
		SimilarityScore float64 `json:"similarity_score"`
		Reasoning       string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		d.logger.Error().Err(err).Msg("failed to parse dedup response")
		return Decision{Action: ActionNewTopic, Reason: "parse error"}, nil
	}

	switch parsed.Action {
	case "new_topic":
		d.logger.Info().Str("reasoning", parsed.Reasoning).Msg("new topic")
		return Decision{Action: ActionNewTopic, Reason: parsed.Reasoning}, nil
	case "continuation":
		card, ok, err := d.resolveCard(ctx, parsed.RelatedCardID)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return Decision{Action: ActionNewTopic, Reason: "related card not found"}, nil
		}
		d.logger.Info().Int64("card_id", card.ID).Str("reasoning", parsed.Reasoning).Msg("continuation")
		return Decision{Action: ActionContinuation, Card: card, Reason: parsed.Reasoning, Similarity: parsed.SimilarityScore}, nil
	case "duplicate":
		card, ok, err := d.resolveCard(ctx, parsed.RelatedCardID)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return Decision{Action: ActionNewTopic, Reason: "duplicate card not found"}, nil
		}
		d.logger.Info().Int64("card_id", card.ID).Str("reasoning", parsed.Reasoning).Msg("duplicate")
		return Decision{Action: ActionSkip, Card: card, Reason: "duplicate", Similarity: parsed.SimilarityScore}, nil
	default:
		d.logger.Warn().Str("action", parsed.Action).Msg("unknown dedup action")
		return Decision{Action: ActionNewTopic, Reason: "unknown action"}, nil
	}
}

// resolveCard verifies a card ID the model claims to reference. A missing or
// nil ID is not an error; the caller downgrades to new_topic.
func (d *Deduplicator) resolveCard(ctx context.Context, id *int64) (*models.FeedCard, bool, error) {
	if id == nil {
		d.logger.Warn().Msg("dedup verdict without card ID")
		return nil, false, nil
	}
	card, err := d.db.GetFeedCard(ctx, *id)
	if err == store.ErrNotFound {
		d.logger.Warn().Int64("card_id", *id).Msg("dedup referenced unknown card")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return card, true, nil
}

func (d *Deduplicator) formatCards(ctx context.Context, cards []*models.FeedCard) (string, error) {
	lines := make([]string, 0, len(cards))
	for _, card := range cards {
		messageCount, err := d.db.CountActiveRoomMessages(ctx, card.RoomID)
		if err != nil {
			return "", err
		}
		hoursAgo := time.Since(card.UpdatedAt).Hours()
		lines = append(lines, fmt.Sprintf("[ID: %d] Title: %q | Summary: %q | %d messages | Last updated: %.1fh ago",
			card.ID, card.Title, card.Summary, messageCount, hoursAgo))
	}
	return strings.Join(lines, "\n"), nil
}

func formatCandidate(conversation models.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Title: %q\n", conversation.Title)
	fmt.Fprintf(&b, "- Summary: %q\n", conversation.Summary)
	fmt.Fprintf(&b, "- Message IDs: %v\n", conversation.MessageIDs)
	fmt.Fprintf(&b, "- Participants: %s\n", strings.Join(conversation.Participants, ", "))
	fmt.Fprintf(&b, "- Topic tags: %s", strings.Join(conversation.TopicTags, ", "))
	return b.String()
}
