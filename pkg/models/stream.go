package models

// StreamEventType discriminates streaming events on the wire.
type StreamEventType string

const (
	StreamEventStart    StreamEventType = "start"
	StreamEventChunk    StreamEventType = "chunk"
	StreamEventMetadata StreamEventType = "metadata"
	StreamEventDone     StreamEventType = "done"
	StreamEventError    StreamEventType = "error"
)

// StreamEvent is one frame of an incremental answer delivery.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Text           string          `json:"text,omitempty"`
	Metadata       *StreamMetadata `json:"metadata,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// StreamMetadata is the payload of the metadata event, emitted once after
// the final chunk.
type StreamMetadata struct {
	Intent          Intent   `json:"intent"`
	DataSources     []string `json:"data_sources"`
	Confidence      float64  `json:"confidence"`
	RecordsAnalyzed int      `json:"records_analyzed"`
	LatencyMs       int64    `json:"latency_ms"`
	FallbackUsed    bool     `json:"fallback_used"`
}

// NewErrorEvent builds a terminal error event.
func NewErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: StreamEventError, Message: message}
}
