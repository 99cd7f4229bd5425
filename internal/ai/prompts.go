package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SummaryMaxChars is the hard cap on card summaries. Enforced after the
// completion returns; the schema alone is not trusted.
const SummaryMaxChars = 140

// TruncateSummary trims a summary to the hard cap, cutting at a word boundary
// where possible.
func TruncateSummary(text string, max int) string {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) <= max {
		return t
	}
	runes := []rune(t)
	cut := string(runes[:max-1])
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

// DetectionFormat is the response schema for conversation detection.
func DetectionFormat() *ResponseFormat {
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchema{
			Name: "conversation_detection",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"conversations": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"message_ids": map[string]any{
									"type":        "array",
									"items":       map[string]any{"type": "integer"},
									"description": "Array of message IDs forming one conversation",
								},
								"title": map[string]any{
									"type":        "string",
									"description": "Proposed title (8-12 words, sentence case)",
								},
								"summary": map[string]any{
									"type":        "string",
									"description": "Proposed summary (140 characters max, one or two sentences, complete thought)",
								},
								"participants": map[string]any{
									"type":        "array",
									"items":       map[string]any{"type": "string"},
									"description": "Participant usernames",
								},
								"topic_tags": map[string]any{
									"type":        "array",
									"items":       map[string]any{"type": "string"},
									"description": "Topic tags for deduplication",
								},
								"key_insight": map[string]any{
									"type":        "string",
									"description": "Ultra-short room name (2-4 words, 20 chars max)",
								},
								"preview_message_id": map[string]any{
									"type":        []string{"integer", "null"},
									"description": "ID of message that best hooks readers, or null",
								},
							},
							"required": []string{"message_ids", "title", "summary", "participants", "topic_tags", "key_insight", "preview_message_id"},
						},
					},
				},
				"required": []string{"conversations"},
			},
		},
	}
}

// RelatedMessagesFormat is the response schema for reconstructing the
// conversation around a promoted message.
func RelatedMessagesFormat() *ResponseFormat {
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchema{
			Name: "related_message_detection",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"related_message_ids": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "integer"},
						"description": "Message IDs forming one coherent conversation with the promoted message",
					},
					"conversation_flow": map[string]any{
						"type":        "string",
						"description": "Brief description of the conversation arc",
					},
					"reasoning": map[string]any{
						"type":        "string",
						"description": "Why these messages form one conversation",
					},
				},
				"required": []string{"related_message_ids", "conversation_flow", "reasoning"},
			},
		},
	}
}

// PromotionFormat is the response schema for the title/summary pass over a
// manually promoted conversation.
func PromotionFormat() *ResponseFormat {
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchema{
			Name: "title_summary_generation",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "Title in 8-12 words, sentence case",
					},
					"summary": map[string]any{
						"type":        "string",
						"description": "Summary in 140 characters max, complete thought",
						"maxLength":   SummaryMaxChars,
					},
					"key_insight": map[string]any{
						"type":        "string",
						"description": "Ultra-short phrase (2-4 words, 20 characters max)",
					},
					"preview_message_id": map[string]any{
						"type":        []string{"integer", "null"},
						"description": "ID of the message that best hooks readers, or null",
					},
				},
				"required": []string{"title", "summary", "key_insight", "preview_message_id"},
			},
		},
	}
}

// DeduplicationFormat is the response schema for the dedup decision.
func DeduplicationFormat() *ResponseFormat {
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchema{
			Name: "deduplication_decision",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action": map[string]any{
						"type":        "string",
						"enum":        []string{"new_topic", "continuation", "duplicate"},
						"description": "Action to take",
					},
					"related_card_id": map[string]any{
						"type":        []string{"integer", "null"},
						"description": "ID of related card if continuation or duplicate",
					},
					"similarity_score": map[string]any{
						"type":        "number",
						"minimum":     0.0,
						"maximum":     1.0,
						"description": "Similarity score 0.0-1.0",
					},
					"reasoning": map[string]any{
						"type":        "string",
						"description": "Why this decision",
					},
				},
				"required": []string{"action", "related_card_id", "similarity_score", "reasoning"},
			},
		},
	}
}

const titleGuidelines = `TITLE GUIDELINES (8-12 words):
- Write like you're posting to a forum or telling a friend about it
- Use sentence case: only capitalize the first word and proper nouns
- Be specific and conversational, avoid corporate jargon
- Lead with the interesting part: what would make someone click?
- Good: "Made $900 in 3 days offering snow removal with just a shovel"
- Bad: "Discussion About Marketing Challenges" (title case, vague, boring)`

const summaryGuidelines = `SUMMARY GUIDELINES (STRICT: 140 characters max, one or two sentences):
- CRITICAL: must be 140 characters or less AND end with a complete thought
- Do not cut off mid-sentence or mid-word
- Casual and conversational, what actually happened, skip the corporate speak
- Specific details over generic descriptions
- If you're approaching the limit, wrap up the sentence naturally`

const keyInsightGuidelines = `KEY_INSIGHT (2-4 words, 20 characters max):
- Ultra-short room name capturing the core topic
- Casual and direct: "Snow removal win", "Marketing struggles"
- Never generic: "A conversation" is useless`

const previewMessageGuidelines = `PREVIEW_MESSAGE_ID (optional, can be null):
- Select a message that adds visual or contextual value beyond the title/summary
- Prefer messages with [LINK_PREVIEW] or [HAS_ATTACHMENT]: they add visual richness
- Otherwise pick the most compelling text: specific numbers, the question that
  sparked the discussion, a surprising quote
- Return null for pure reactions, simple agreements, or messages that just
  restate the title; null for roughly half of conversations is expected
- Return just the message ID number, not the [ID: 123] format, or null`

const completenessInstructions = `CRITICAL: include ALL messages that form the COMPLETE conversation. A reader
should be able to follow the entire story without missing any part.
- Follow the chronological discussion flow; subtopics emerging is normal and
  does NOT split a conversation
- Include every response and follow-up from engaged participants, all thread
  replies, and all questions with their answers
- Only exclude a message if it is from a non-participant, about an unrelated
  topic, and has no conversational connection to the discussion
- When in ANY doubt, include the message; completeness beats brevity`

// BuildDetectionPrompt renders the conversation-detection prompt over a
// formatted transcript. windowDesc describes the scanned window, e.g.
// "last 2 hours, across all rooms".
func BuildDetectionPrompt(transcript, windowDesc string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are scanning recent messages from a professional community chat to identify interesting conversations worth promoting to the shared home feed.

RECENT MESSAGES (%s):
%s

Thread context values:
- "top-level" = main room message
- "thread-reply-to-X" = reply in thread under message X

NOTE: messages may include [LINK_PREVIEW] showing the title and description of
unfurled links. Messages marked with [HAS_ATTACHMENT] have files attached.

TASK:
Identify genuinely interesting conversations from these messages. Be SELECTIVE:
only meaningful conversations that provide value to the wider community.

QUALITY CRITERIA (a conversation should meet at least one):
1. Engagement and depth: 4+ messages of back-and-forth, or 3+ participants,
   or significant reactions on messages
2. Valuable content: specific wins or milestones, interesting problems with
   solutions, actionable advice, relatable struggles, substantive Q&A
3. Community value: others would learn from it or it sparks real discussion

MINIMUM REQUIREMENTS:
- NEW conversations: at least 2 messages from 2 different participants
- Potential CONTINUATIONS: single valuable messages ARE allowed, they will be
  checked against existing cards
- Some substance beyond small talk

EXCLUDE:
- Single-message announcements, unless clearly continuing an existing discussion
- Pure banter without substance
- One-person monologues, unless part of an ongoing topic

MESSAGE SELECTION FOR EACH CONVERSATION:
%s

%s

%s

TOPIC TAGS:
- 2-5 lowercase hyphenated tags capturing the core topic, used for deduplication

%s

%s

CRITICAL REQUIREMENTS:
- If nothing meets the criteria, return an empty array: {"conversations": []}
- Quality over quantity: one excellent conversation beats ten mediocre ones
- When in doubt, DON'T include it
`, windowDesc, transcript, completenessInstructions, titleGuidelines, summaryGuidelines, keyInsightGuidelines, previewMessageGuidelines)
	return b.String()
}

// BuildRelatedMessagesPrompt renders the prompt asking which context messages
// belong to the conversation around one promoted message. promoted is the
// formatted line for that message; transcript covers the surrounding window.
func BuildRelatedMessagesPrompt(promoted, transcript string, windowHours int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `A moderator promoted this message as interesting:

PROMOTED MESSAGE:
%s

CONTEXT (±%d hours in the same room):
%s

Thread context values:
- "top-level" = main room message
- "thread-reply-to-X" = reply in thread under message X

TASK:
%s

OUTPUT FORMAT (JSON):
{
  "related_message_ids": [123, 124, 125],
  "conversation_flow": "How the conversation evolved from start to finish",
  "reasoning": "Why these messages form one complete conversation, including ALL engaged participants"
}
`, promoted, windowHours, transcript, completenessInstructions)
	return b.String()
}

// BuildPromotionPrompt renders the title/summary prompt over the reconstructed
// conversation transcript.
func BuildPromotionPrompt(conversation string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Generate a title and summary for this conversation being promoted to the community home feed.

CONVERSATION MESSAGES (chronological):
%s

NOTE: messages may include [LINK_PREVIEW] showing the title and description of
unfurled links. Messages marked with [HAS_ATTACHMENT] have files attached.

REQUIREMENTS:

%s

%s

%s

%s

TONE GUIDE:
- Write like a human, not a corporate blog
- Conversational and direct, skip the business jargon
- Lead with what's interesting or surprising
- Specific details beat generic descriptions

OUTPUT FORMAT (JSON):
{
  "title": "string (8-12 words, sentence case only)",
  "summary": "string (STRICT: 140 characters max, complete thoughts only)",
  "key_insight": "Ultra-short phrase (2-4 words, 20 characters max)",
  "preview_message_id": number or null
}
`, conversation, titleGuidelines, summaryGuidelines, keyInsightGuidelines, previewMessageGuidelines)
	return b.String()
}

// BuildDeduplicationPrompt renders the dedup-decision prompt. candidate and
// existingCards are pre-formatted blocks.
func BuildDeduplicationPrompt(candidate, existingCards string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You detected this new conversation:

NEW CONVERSATION:
%s

EXISTING FEED CARDS (last 7 days, sorted by most recently updated):

%s

TASK:
Determine if the new conversation is:

1. NEW_TOPIC - genuinely different topic, create new card
2. CONTINUATION - ongoing discussion of an existing topic (specify which card ID)
3. DUPLICATE - same conversation already captured (specify which card ID)

CONTINUATION CRITERIA:
- Same core topic as an existing card
- Overlapping participants (at least 1-2 in common)
- Natural extension of the previous discussion, not a revival after weeks

WHEN MULTIPLE CONTENDERS:
- Compare every candidate card and pick the SINGLE best match
- Require overlapping participants or very clear topical continuity to choose
  continuation
- Break ties by choosing the card updated most recently
- If you are uncertain, choose NEW_TOPIC instead of guessing

Favor CONTINUATION over creating duplicate cards about the same topic; only
choose NEW_TOPIC when it is truly a different angle.

DUPLICATE CRITERIA:
- Exact same messages or nearly identical content already captured

OUTPUT FORMAT (JSON):
{
  "action": "new_topic|continuation|duplicate",
  "related_card_id": number or null,
  "similarity_score": 0.0-1.0,
  "reasoning": "Why this decision (1-2 sentences)"
}
`, candidate, existingCards)
	return b.String()
}
