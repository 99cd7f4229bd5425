package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/feedscout/feedscout/internal/ai"
	"github.com/feedscout/feedscout/internal/feed"
	"github.com/feedscout/feedscout/internal/models"
)

// PromoteRequest is the manual-promotion payload. Two shapes are accepted:
// a single message_id hands conversation reconstruction and naming to the
// detector; explicit message_ids plus a title promote exactly that set.
type PromoteRequest struct {
	MessageID        *int64  `json:"message_id,omitempty"`
	MessageIDs       []int64 `json:"message_ids"`
	Title            string  `json:"title"`
	Summary          string  `json:"summary"`
	KeyInsight       string  `json:"key_insight,omitempty"`
	PreviewMessageID *int64  `json:"preview_message_id,omitempty"`
	PromotedByID     *int64  `json:"promoted_by_id,omitempty"`
}

// PromoteResponse is the manual-promotion response.
type PromoteResponse struct {
	Room *models.Room     `json:"room"`
	Card *models.FeedCard `json:"card"`
}

// Promote handles POST /promotions: a user-initiated promotion of a message
// set into a derived room plus card. Repeating a promotion of the same set
// returns the existing card.
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	var req PromoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.MessageID != nil && len(req.MessageIDs) == 0 {
		conv, err := h.detector.Detect(r.Context(), *req.MessageID)
		if err != nil {
			h.promoteError(w, err)
			return
		}
		req.MessageIDs = conv.MessageIDs
		if req.Title == "" {
			req.Title = conv.Title
		}
		if req.Summary == "" {
			req.Summary = conv.Summary
		}
		if req.KeyInsight == "" {
			req.KeyInsight = conv.KeyInsight
		}
		if req.PreviewMessageID == nil {
			req.PreviewMessageID = conv.PreviewMessageID
		}
	}

	result, err := h.creator.Create(r.Context(), feed.CreateParams{
		MessageIDs:       req.MessageIDs,
		Title:            req.Title,
		Summary:          req.Summary,
		KeyInsight:       req.KeyInsight,
		PreviewMessageID: req.PreviewMessageID,
		Kind:             models.CardPromoted,
		PromotedByID:     req.PromotedByID,
	})
	if err != nil {
		h.promoteError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, PromoteResponse{Room: result.Room, Card: result.Card})
}

func (h *Handler) promoteError(w http.ResponseWriter, err error) {
	var invalidErr *feed.InvalidConversationError
	var aiErr *ai.Error
	switch {
	case errors.Is(err, feed.ErrEmptyMessageIDs),
		errors.Is(err, feed.ErrTitleRequired):
		h.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &invalidErr):
		h.Error(w, http.StatusUnprocessableEntity, invalidErr.Reason)
	case errors.Is(err, feed.ErrMessagesNotFound):
		h.Error(w, http.StatusNotFound, "one or more messages not found")
	case errors.As(err, &aiErr):
		h.logger.Error().Err(err).Msg("promotion AI step failed")
		h.Error(w, http.StatusBadGateway, "AI processing failed")
	default:
		h.logger.Error().Err(err).Msg("promotion failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}
