package models

// Conversation is the transient output of a detection scan. It is never
// persisted as-is; the promotion pipeline materializes it into a derived room
// plus a feed card.
type Conversation struct {
	MessageIDs       []int64  `json:"message_ids"`
	Title            string   `json:"title"`
	Summary          string   `json:"summary"`
	KeyInsight       string   `json:"key_insight"` // ultra-short room label
	Participants     []string `json:"participants"`
	TopicTags        []string `json:"topic_tags"`
	PreviewMessageID *int64   `json:"preview_message_id,omitempty"`
}
