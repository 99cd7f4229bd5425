package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/ai"
	"github.com/feedscout/feedscout/internal/config"
	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

const (
	globalScanLimit  = 500
	backlogWindow    = 7 * 24 * time.Hour
	detectionTimeout = 120 * time.Second
)

// Scanner assembles a message window, asks the completion gateway to detect
// conversations in it, and filters the result down to candidates the pipeline
// can trust. Gateway failures and malformed output yield an empty result, not
// an error; a scan that finds nothing is a normal outcome.
type Scanner struct {
	db        store.DataStore
	completer ai.Completer
	cfg       *config.Config
	logger    zerolog.Logger
}

// NewScanner builds a scanner.
func NewScanner(db store.DataStore, completer ai.Completer, cfg *config.Config, logger zerolog.Logger) *Scanner {
	return &Scanner{
		db:        db,
		completer: completer,
		cfg:       cfg,
		logger:    logger.With().Str("component", "scanner").Logger(),
	}
}

// Scan detects conversations. A nil room runs the global scan over all
// eligible rooms; a non-nil room runs a focused scan over that room and its
// recently active threads.
func (s *Scanner) Scan(ctx context.Context, room *models.Room) ([]models.Conversation, error) {
	if !s.cfg.EnableAutomatedScans {
		return nil, nil
	}

	messages, err := s.fetchMessages(ctx, room)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	s.logScanWindow(room, messages)

	conversations, err := s.detect(ctx, room, messages)
	if err != nil {
		return nil, err
	}
	return s.applyCap(conversations), nil
}

func (s *Scanner) fetchMessages(ctx context.Context, room *models.Room) ([]*models.Message, error) {
	if room == nil {
		since := time.Now().Add(-s.cfg.GlobalLookback())
		return s.db.GlobalScanMessages(ctx, since, globalScanLimit)
	}

	if !room.Active || room.IsDirect() || room.IsDerived() {
		return nil, nil
	}

	lookbackStart := time.Now().Add(-s.cfg.RoomScanLookback())
	floor := time.Now().Add(-backlogWindow)

	roomIDs := []int64{room.ID}
	threadIDs, err := s.db.ActiveThreadRoomIDs(ctx, room.ID, lookbackStart, s.cfg.RoomScanThreadLimit)
	if err != nil {
		return nil, err
	}
	roomIDs = append(roomIDs, threadIDs...)

	recent, err := s.db.RecentWindowMessages(ctx, roomIDs, lookbackStart, s.cfg.RoomScanMessageLimit)
	if err != nil {
		return nil, err
	}

	messages := recent
	if remaining := s.cfg.RoomScanMessageLimit - len(recent); remaining > 0 {
		backlog, err := s.db.BacklogWindowMessages(ctx, roomIDs, lookbackStart, floor, remaining+s.cfg.RoomScanContextBackfill)
		if err != nil {
			return nil, err
		}
		messages = mergeMessages(messages, backlog)
	}
	sortByCreatedAt(messages)

	// Pull a little older context so the model sees how the window started.
	if s.cfg.RoomScanContextBackfill > 0 && len(messages) > 0 {
		earliest := messages[0].CreatedAt
		contextMsgs, err := s.db.ContextWindowMessages(ctx, roomIDs, earliest, floor, s.cfg.RoomScanContextBackfill)
		if err != nil {
			return nil, err
		}
		messages = mergeMessages(messages, contextMsgs)
		sortByCreatedAt(messages)
	}

	return messages, nil
}

func mergeMessages(a, b []*models.Message) []*models.Message {
	seen := make(map[int64]bool, len(a))
	merged := make([]*models.Message, 0, len(a)+len(b))
	for _, msg := range a {
		if !seen[msg.ID] {
			seen[msg.ID] = true
			merged = append(merged, msg)
		}
	}
	for _, msg := range b {
		if !seen[msg.ID] {
			seen[msg.ID] = true
			merged = append(merged, msg)
		}
	}
	return merged
}

func sortByCreatedAt(messages []*models.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

func (s *Scanner) logScanWindow(room *models.Room, messages []*models.Message) {
	if room == nil {
		s.logger.Info().
			Int("messages", len(messages)).
			Int("lookback_hours", s.cfg.LookbackHours).
			Msg("scanning global window")
		return
	}

	lookbackStart := time.Now().Add(-s.cfg.RoomScanLookback())
	recent, inFeed := 0, 0
	for _, msg := range messages {
		if !msg.CreatedAt.Before(lookbackStart) {
			recent++
		}
		if msg.InFeed {
			inFeed++
		}
	}
	s.logger.Info().
		Int64("room_id", room.ID).
		Str("room_name", room.Name).
		Int("messages", len(messages)).
		Int("recent", recent).
		Int("backlog", len(messages)-recent).
		Int("already_in_feed", inFeed).
		Msg("scanning room window")
}

type detectedConversation struct {
	MessageIDs       []int64  `json:"message_ids"`
	Title            string   `json:"title"`
	Summary          string   `json:"summary"`
	Participants     []string `json:"participants"`
	TopicTags        []string `json:"topic_tags"`
	KeyInsight       string   `json:"key_insight"`
	PreviewMessageID *int64   `json:"preview_message_id"`
}

type detectionResponse struct {
	Conversations []detectedConversation `json:"conversations"`
}

func (s *Scanner) detect(ctx context.Context, room *models.Room, messages []*models.Message) ([]models.Conversation, error) {
	transcript := FormatTranscript(messages)
	prompt := ai.BuildDetectionPrompt(transcript, s.windowDescription(room))

	response, err := s.completer.Complete(ctx, ai.Request{
		Prompt:         prompt,
		Model:          s.cfg.AIModel,
		ResponseFormat: ai.DetectionFormat(),
		Timeout:        detectionTimeout,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("detection completion failed")
		return nil, nil
	}

	var parsed detectionResponse
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		s.logger.Error().Err(err).Msg("failed to parse detection response")
		return nil, nil
	}
	s.logger.Info().Int("detected", len(parsed.Conversations)).Msg("detection complete")

	// Single-message candidates are allowed on room scans so they can be
	// checked as continuations; global scans require a real exchange.
	minMessages := 2
	if room != nil {
		minMessages = 1
	}

	available := make(map[int64]bool, len(messages))
	byID := make(map[int64]*models.Message, len(messages))
	for _, msg := range messages {
		available[msg.ID] = true
		byID[msg.ID] = msg
	}

	var detected []models.Conversation
	for _, conv := range parsed.Conversations {
		validIDs := make([]int64, 0, len(conv.MessageIDs))
		for _, id := range conv.MessageIDs {
			if available[id] {
				validIDs = append(validIDs, id)
			}
		}
		if len(validIDs) < len(conv.MessageIDs) {
			s.logger.Warn().
				Int("invalid", len(conv.MessageIDs)-len(validIDs)).
				Str("title", conv.Title).
				Msg("detection returned unknown message IDs")
		}
		if len(validIDs) < minMessages {
			continue
		}

		selected := make([]*models.Message, 0, len(validIDs))
		for _, id := range validIDs {
			selected = append(selected, byID[id])
		}

		// Global scans need a real exchange between people, not a monologue.
		if room == nil && distinctCreators(selected) < 2 {
			s.logger.Info().Str("title", conv.Title).Msg("skipping single-participant conversation")
			continue
		}

		analysis, err := Analyze(ctx, s.db, selected, room)
		if err != nil {
			return nil, err
		}
		if !analysis.Valid {
			s.logger.Info().Str("reason", analysis.Reason).Msg("skipping conversation")
			continue
		}

		s.logger.Info().
			Str("title", conv.Title).
			Int("messages", len(validIDs)).
			Msg("detected conversation")

		detected = append(detected, models.Conversation{
			MessageIDs:       validIDs,
			Title:            conv.Title,
			Summary:          ai.TruncateSummary(conv.Summary, ai.SummaryMaxChars),
			KeyInsight:       conv.KeyInsight,
			Participants:     conv.Participants,
			TopicTags:        conv.TopicTags,
			PreviewMessageID: conv.PreviewMessageID,
		})
	}
	return detected, nil
}

func distinctCreators(messages []*models.Message) int {
	seen := make(map[int64]bool, len(messages))
	for _, msg := range messages {
		seen[msg.CreatorID] = true
	}
	return len(seen)
}

func (s *Scanner) windowDescription(room *models.Room) string {
	if room == nil {
		return fmt.Sprintf("last %d hours, across all rooms", s.cfg.LookbackHours)
	}
	return fmt.Sprintf("last %d hours in #%s plus older backlog", s.cfg.RoomScanLookbackHours, room.Name)
}

func (s *Scanner) applyCap(conversations []models.Conversation) []models.Conversation {
	limit := s.cfg.MaxConversationsPerScan
	if limit <= 0 || len(conversations) <= limit {
		return conversations
	}
	s.logger.Info().
		Int("received", len(conversations)).
		Int("limit", limit).
		Msg("capping detected conversations")
	return conversations[:limit]
}

// FormatTranscript renders messages into the line format the detection prompt
// expects, one message per line with thread context, reactions, and
// attachment or link-preview markers.
func FormatTranscript(messages []*models.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, formatMessageLine(msg))
	}
	return strings.Join(lines, "\n")
}

func formatMessageLine(msg *models.Message) string {
	roomName := ""
	threadContext := "top-level"
	if msg.Room != nil {
		roomName = msg.Room.Name
		if msg.Room.IsThread() && msg.Room.ParentMessageID != nil {
			threadContext = fmt.Sprintf("thread-reply-to-%d", *msg.Room.ParentMessageID)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[ID: %d] @%s (%s in #%s, %s): %q",
		msg.ID, msg.CreatorName, msg.CreatedAt.Format("2006-01-02 15:04:05"), roomName, threadContext, msg.Body)

	if len(msg.Reactions) > 0 {
		contents := make([]string, 0, len(msg.Reactions))
		for _, r := range msg.Reactions {
			content := r.Content
			if content == "" {
				content = "👍"
			}
			contents = append(contents, content)
		}
		fmt.Fprintf(&b, "\nReactions: %s", strings.Join(contents, ", "))
	}

	var metadata []string
	if msg.HasAttachment() {
		metadata = append(metadata, "HAS_ATTACHMENT")
	}
	if msg.HasLinkPreview() {
		metadata = append(metadata, fmt.Sprintf("LINK_PREVIEW: Link: %q - %s", msg.LinkTitle, msg.LinkDescription))
	}
	if len(metadata) > 0 {
		fmt.Fprintf(&b, "\n  [%s]", strings.Join(metadata, " | "))
	}
	return b.String()
}
