package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/feed"
	"github.com/feedscout/feedscout/internal/jobs"
	"github.com/feedscout/feedscout/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	activity *store.ActivityStore
	tracker  *feed.Tracker
	detector *feed.Detector
	creator  *feed.Creator
	queue    *jobs.Queue
	logger   zerolog.Logger
}

// NewHandler creates a Handler with the given dependencies.
func NewHandler(db store.DataStore, activity *store.ActivityStore, tracker *feed.Tracker, detector *feed.Detector, creator *feed.Creator, queue *jobs.Queue, logger zerolog.Logger) *Handler {
	return &Handler{
		db:       db,
		activity: activity,
		tracker:  tracker,
		detector: detector,
		creator:  creator,
		queue:    queue,
		logger:   logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
