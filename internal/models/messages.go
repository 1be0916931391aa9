// Package models defines the data structures the agent publishes and persists.
package models

import "time"

// Message type discriminators carried in the "type" field of every
// outbound data message.
const (
	MessageTypeTranscription = "transcription"
	MessageTypeAgentStatus   = "agent_status"
)

// TranscriptMessage is broadcast to all room participants for every
// non-empty transcript, interim or final. Delivery is fire-and-forget.
type TranscriptMessage struct {
	Type        string   `json:"type"`
	Text        string   `json:"text"`
	IsFinal     bool     `json:"isFinal"`
	Participant string   `json:"participant"`
	Timestamp   string   `json:"timestamp"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// NewTranscriptMessage builds a TranscriptMessage with an ISO-8601 timestamp.
// Confidence is passed through when the speech engine supplies one, absent otherwise.
func NewTranscriptMessage(text string, isFinal bool, participant string, confidence *float64, at time.Time) TranscriptMessage {
	return TranscriptMessage{
		Type:        MessageTypeTranscription,
		Text:        text,
		IsFinal:     isFinal,
		Participant: participant,
		Timestamp:   at.Format(time.RFC3339),
		Confidence:  confidence,
	}
}

// HeartbeatMessage reports the number of tracks currently being transcribed.
// Regenerated every tick; it carries no identity of its own.
type HeartbeatMessage struct {
	Type             string `json:"type"`
	Status           string `json:"status"`
	ProcessingTracks int    `json:"processing_tracks"`
	Timestamp        string `json:"timestamp"`
}

// NewHeartbeatMessage builds a HeartbeatMessage for the given session count.
func NewHeartbeatMessage(processingTracks int, at time.Time) HeartbeatMessage {
	return HeartbeatMessage{
		Type:             MessageTypeAgentStatus,
		Status:           "active",
		ProcessingTracks: processingTracks,
		Timestamp:        at.Format(time.RFC3339),
	}
}

// TranscriptRecord is the durable form of a final transcript. Records are
// append-only; nothing in this system mutates or deletes them.
type TranscriptRecord struct {
	Timestamp   string `json:"timestamp"`
	Participant string `json:"participant"`
	Text        string `json:"text"`
	Room        string `json:"room"`
}
