package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/feedscout/feedscout/internal/models"
	"github.com/feedscout/feedscout/internal/store"
)

// PostMessageRequest is the message-ingest payload.
type PostMessageRequest struct {
	CreatorID        int64  `json:"creator_id"`
	Body             string `json:"body"`
	ClientMessageID  string `json:"client_message_id,omitempty"`
	AttachmentName   string `json:"attachment_name,omitempty"`
	LinkTitle        string `json:"link_title,omitempty"`
	LinkDescription  string `json:"link_description,omitempty"`
	MentionsEveryone bool   `json:"mentions_everyone,omitempty"`
}

// TrackingInfo surfaces what the activity tracker decided for this message.
type TrackingInfo struct {
	Status           string `json:"status"`
	Triggered        bool   `json:"triggered"`
	MessageCount     int    `json:"message_count"`
	ParticipantCount int    `json:"participant_count"`
}

// PostMessageResponse is the message-ingest response.
type PostMessageResponse struct {
	Message  *models.Message `json:"message"`
	Tracking TrackingInfo    `json:"tracking"`
}

// PostMessage handles POST /rooms/{id}/messages: it persists the message,
// records activity, and enqueues a room scan when a trigger fires. Tracking
// problems never fail the request; the message is already stored.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room id")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Body == "" {
		h.Error(w, http.StatusUnprocessableEntity, "body is required")
		return
	}
	if req.CreatorID <= 0 {
		h.Error(w, http.StatusUnprocessableEntity, "creator_id is required")
		return
	}

	room, err := h.db.GetRoom(r.Context(), roomID)
	if err == store.ErrNotFound {
		h.Error(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load room")
		h.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !room.Active {
		h.Error(w, http.StatusGone, "room is inactive")
		return
	}

	clientMessageID := req.ClientMessageID
	if clientMessageID == "" {
		clientMessageID = uuid.NewString()
	}

	message, err := h.db.CreateMessage(r.Context(), store.CreateMessageParams{
		RoomID:           room.ID,
		CreatorID:        req.CreatorID,
		Body:             req.Body,
		ClientMessageID:  clientMessageID,
		AttachmentName:   req.AttachmentName,
		LinkTitle:        req.LinkTitle,
		LinkDescription:  req.LinkDescription,
		MentionsEveryone: req.MentionsEveryone,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create message")
		h.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	result := h.tracker.Record(r.Context(), message)
	if result.Triggered {
		if err := h.queue.EnqueueRoomScan(r.Context(), result.RoomID, string(result.Status)); err != nil {
			h.logger.Error().Err(err).Int64("room_id", result.RoomID).Msg("failed to enqueue room scan")
		}
	}

	h.JSON(w, http.StatusCreated, PostMessageResponse{
		Message: message,
		Tracking: TrackingInfo{
			Status:           string(result.Status),
			Triggered:        result.Triggered,
			MessageCount:     result.MessageCount,
			ParticipantCount: result.ParticipantCount,
		},
	})
}
