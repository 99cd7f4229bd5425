package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/ai"
	"github.com/feedscout/feedscout/internal/config"
	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

const (
	promotionContextWindow = 12 * time.Hour
	promotionContextLimit  = 100
	maxExpansionRounds     = 3
	promotionTimeout       = 120 * time.Second
)

// Detector reconstructs the complete conversation around one promoted
// message: it loads the surrounding window, asks the gateway which messages
// belong together, widens the window around the answer until it stabilizes,
// and finally generates a title, summary and room label. Unlike the scanner,
// a manual promotion is user-facing, so gateway failures propagate instead of
// degrading.
type Detector struct {
	db        store.DataStore
	completer ai.Completer
	cfg       *config.Config
	logger    zerolog.Logger
}

// NewDetector builds a detector.
func NewDetector(db store.DataStore, completer ai.Completer, cfg *config.Config, logger zerolog.Logger) *Detector {
	return &Detector{
		db:        db,
		completer: completer,
		cfg:       cfg,
		logger:    logger.With().Str("component", "detector").Logger(),
	}
}

// Detect builds the conversation candidate for one promoted message.
func (d *Detector) Detect(ctx context.Context, promotedID int64) (*models.Conversation, error) {
	promoted, err := d.db.GetMessage(ctx, promotedID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessagesNotFound
		}
		return nil, err
	}
	if promoted.Room != nil && promoted.Room.IsDerived() {
		return nil, &InvalidConversationError{Reason: "cannot promote a message from a derived room"}
	}

	start := promoted.CreatedAt.Add(-promotionContextWindow)
	end := promoted.CreatedAt.Add(promotionContextWindow)

	messages, err := d.fetchContext(ctx, promoted, start, end)
	if err != nil {
		return nil, err
	}

	related, err := d.relatedIDs(ctx, promoted, messages)
	if err != nil {
		return nil, err
	}

	// Widen the window around what the gateway selected until nothing new
	// shows up. Bounded so a chatty room cannot loop forever.
	for round := 0; round < maxExpansionRounds; round++ {
		subset := filterByIDs(messages, related)
		if len(subset) == 0 {
			break
		}
		newStart := subset[0].CreatedAt.Add(-promotionContextWindow)
		newEnd := subset[len(subset)-1].CreatedAt.Add(promotionContextWindow)
		if !newStart.Before(start) && !newEnd.After(end) {
			break
		}
		if newStart.Before(start) {
			start = newStart
		}
		if newEnd.After(end) {
			end = newEnd
		}

		expanded, err := d.fetchContext(ctx, promoted, start, end)
		if err != nil {
			return nil, err
		}
		if !hasNewMessages(messages, expanded) {
			break
		}
		messages = expanded

		related, err = d.relatedIDs(ctx, promoted, messages)
		if err != nil {
			return nil, err
		}
	}

	subset := filterByIDs(messages, related)
	if len(subset) == 0 {
		subset = []*models.Message{promoted}
		related = []int64{promoted.ID}
	}

	described, err := d.describe(ctx, subset)
	if err != nil {
		return nil, err
	}

	d.logger.Info().
		Int64("promoted_message_id", promoted.ID).
		Int("messages", len(related)).
		Str("title", described.Title).
		Msg("reconstructed conversation around promoted message")

	return &models.Conversation{
		MessageIDs:       related,
		Title:            described.Title,
		Summary:          ai.TruncateSummary(described.Summary, ai.SummaryMaxChars),
		KeyInsight:       described.KeyInsight,
		Participants:     participantNames(subset),
		PreviewMessageID: previewWithin(described.PreviewMessageID, related),
	}, nil
}

// fetchContext loads the promoted message's room plus any threads hanging off
// it within the window. A promoted thread reply drags the thread's root
// message in as an anchor even when the root falls outside the window.
func (d *Detector) fetchContext(ctx context.Context, promoted *models.Message, start, end time.Time) ([]*models.Message, error) {
	roomIDs := []int64{promoted.RoomID}
	threadIDs, err := d.db.ThreadRoomIDs(ctx, promoted.ID)
	if err != nil {
		return nil, err
	}
	roomIDs = append(roomIDs, threadIDs...)

	messages, err := d.db.WindowMessages(ctx, roomIDs, start, end, promotionContextLimit)
	if err != nil {
		return nil, err
	}

	if promoted.Room != nil && promoted.Room.IsThread() && promoted.Room.ParentMessageID != nil {
		if !containsMessageID(messages, *promoted.Room.ParentMessageID) {
			parent, err := d.db.GetMessage(ctx, *promoted.Room.ParentMessageID)
			if err == nil {
				messages = append(messages, parent)
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
	}

	sortByCreatedAt(messages)
	return messages, nil
}

type relatedResponse struct {
	RelatedMessageIDs []int64 `json:"related_message_ids"`
	ConversationFlow  string  `json:"conversation_flow"`
	Reasoning         string  `json:"reasoning"`
}

func (d *Detector) relatedIDs(ctx context.Context, promoted *models.Message, messages []*models.Message) ([]int64, error) {
	prompt := ai.BuildRelatedMessagesPrompt(
		formatMessageLine(promoted),
		FormatTranscript(messages),
		int(promotionContextWindow.Hours()),
	)

	response, err := d.completer.Complete(ctx, ai.Request{
		Prompt:         prompt,
		Model:          d.cfg.AIModel,
		ResponseFormat: ai.RelatedMessagesFormat(),
		Timeout:        promotionTimeout,
	})
	if err != nil {
		return nil, err
	}

	var parsed relatedResponse
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("parsing related-message response: %w", err)
	}

	available := make(map[int64]bool, len(messages))
	for _, msg := range messages {
		available[msg.ID] = true
	}
	// The promoted message belongs to its own conversation no matter what the
	// gateway says.
	available[promoted.ID] = true

	seen := make(map[int64]bool, len(parsed.RelatedMessageIDs)+1)
	ids := make([]int64, 0, len(parsed.RelatedMessageIDs)+1)
	for _, id := range append(parsed.RelatedMessageIDs, promoted.ID) {
		if available[id] && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type promotionDescription struct {
	Title            string `json:"title"`
	Summary          string `json:"summary"`
	KeyInsight       string `json:"key_insight"`
	PreviewMessageID *int64 `json:"preview_message_id"`
}

func (d *Detector) describe(ctx context.Context, messages []*models.Message) (*promotionDescription, error) {
	response, err := d.completer.Complete(ctx, ai.Request{
		Prompt:         ai.BuildPromotionPrompt(FormatTranscript(messages)),
		Model:          d.cfg.AIModel,
		ResponseFormat: ai.PromotionFormat(),
		Timeout:        promotionTimeout,
	})
	if err != nil {
		return nil, err
	}

	var parsed promotionDescription
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("parsing title-summary response: %w", err)
	}
	if parsed.Title == "" {
		return nil, errors.New("title-summary response missing title")
	}
	return &parsed, nil
}

func filterByIDs(messages []*models.Message, ids []int64) []*models.Message {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	subset := make([]*models.Message, 0, len(ids))
	for _, msg := range messages {
		if want[msg.ID] {
			subset = append(subset, msg)
		}
	}
	return subset
}

func hasNewMessages(old, expanded []*models.Message) bool {
	seen := make(map[int64]bool, len(old))
	for _, msg := range old {
		seen[msg.ID] = true
	}
	for _, msg := range expanded {
		if !seen[msg.ID] {
			return true
		}
	}
	return false
}

func containsMessageID(messages []*models.Message, id int64) bool {
	for _, msg := range messages {
		if msg.ID == id {
			return true
		}
	}
	return false
}

func participantNames(messages []*models.Message) []string {
	seen := make(map[string]bool, len(messages))
	var names []string
	for _, msg := range messages {
		if msg.CreatorName != "" && !seen[msg.CreatorName] {
			seen[msg.CreatorName] = true
			names = append(names, msg.CreatorName)
		}
	}
	return names
}

func previewWithin(previewID *int64, ids []int64) *int64 {
	if previewID == nil {
		return nil
	}
	for _, id := range ids {
		if id == *previewID {
			return previewID
		}
	}
	return nil
}
