package agent

import (
	"context"
	"time"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

// Streamer replays a fully completed answer as an ordered event sequence.
// Generation is not incremental from the provider: the whole answer exists
// before the first chunk is emitted.
type Streamer struct {
	chunkSize  int
	chunkDelay time.Duration
}

// NewStreamer creates a streaming responder. Non-positive arguments fall
// back to 20-character chunks with a 30ms pacing delay.
func NewStreamer(chunkSize int, chunkDelay time.Duration) *Streamer {
	if chunkSize <= 0 {
		chunkSize = 20
	}
	if chunkDelay < 0 {
		chunkDelay = 30 * time.Millisecond
	}
	return &Streamer{chunkSize: chunkSize, chunkDelay: chunkDelay}
}

// Stream emits start, the content chunks, metadata, then done on the event
// channel. The caller owns the channel and closes it after Stream returns.
// A cancelled context stops pacing early; the caller decides whether to
// surface that as an error event.
func (s *Streamer) Stream(ctx context.Context, conversationID string, result *models.AgentResult, events chan<- models.StreamEvent) {
	events <- models.StreamEvent{
		Type:           models.StreamEventStart,
		ConversationID: conversationID,
	}

	// Chunk on rune boundaries so a multi-byte character is never split
	// across two events; every chunk must be valid UTF-8 on its own.
	content := []rune(result.Content)
	for start := 0; start < len(content); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(content) {
			end = len(content)
		}

		events <- models.StreamEvent{
			Type: models.StreamEventChunk,
			Text: string(content[start:end]),
		}

		if end < len(content) && s.chunkDelay > 0 {
			select {
			case <-time.After(s.chunkDelay):
			case <-ctx.Done():
				// Client is gone; stop pacing but fall through so the
				// remaining events drain into the buffered channel.
			}
		}
	}

	events <- models.StreamEvent{
		Type: models.StreamEventMetadata,
		Metadata: &models.StreamMetadata{
			Intent:          result.Metadata.Intent,
			DataSources:     result.Metadata.DataSources,
			Confidence:      result.Metadata.Confidence,
			RecordsAnalyzed: result.Metadata.RecordsAnalyzed,
			LatencyMs:       result.Metadata.ProcessingTimeMs,
			FallbackUsed:    result.FallbackUsed,
		},
	}

	events <- models.StreamEvent{Type: models.StreamEventDone}
}
