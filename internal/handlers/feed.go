package handlers

import (
	"net/http"
	"strconv"

	"github.com/feedscout/feedscout/internal/models"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

// FeedCardView is one card in the feed listing.
type FeedCardView struct {
	*models.FeedCard
	RoomName string `json:"room_name,omitempty"`
}

// FeedResponse is the feed listing response.
type FeedResponse struct {
	Cards []FeedCardView `json:"cards"`
}

// Feed handles GET /feed: the most recently updated cards, newest first.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > maxFeedLimit {
			n = maxFeedLimit
		}
		limit = n
	}

	cards, err := h.db.ListFeedCards(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list feed cards")
		h.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]FeedCardView, 0, len(cards))
	for _, card := range cards {
		view := FeedCardView{FeedCard: card}
		if card.Room != nil {
			view.RoomName = card.Room.Name
		}
		views = append(views, view)
	}
	h.JSON(w, http.StatusOK, FeedResponse{Cards: views})
}
