package domain

import "time"

// Role constants for message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in a conversation transcript. Transcripts are
// append-only; insertion order is the conversation order.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Raw       string    `json:"raw,omitempty"`       // unrendered source text
	AudioURL  string    `json:"audio_url,omitempty"` // optional TTS attachment
	Timestamp time.Time `json:"timestamp"`
}

// UserMessage builds a user-role message stamped now.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Raw: content, Timestamp: time.Now()}
}

// AssistantMessage builds an assistant-role message stamped now.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Raw: content, Timestamp: time.Now()}
}

// ChatResult is the backend's answer to one send.
type ChatResult struct {
	SessionID string  `json:"session_id"` // assigned by the backend when the session was unsaved
	Message   Message `json:"message"`
	Intent    string  `json:"intent,omitempty"`
}

// IntentEmergency marks a backend answer produced by the emergency flow.
const IntentEmergency = "emergency"
