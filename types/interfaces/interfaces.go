package interfaces

import (
	"context"

	"github.com/maastricht-university/harmon/types"
)

// Generator is the LLM collaborator. Failures are reported as *types.ProviderError.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts types.GenerateOptions) (string, error)
}

// Store is the append-only transcript and notes log keyed by conversation id.
type Store interface {
	AppendNote(ctx context.Context, conversationID string, note types.Note) error
	AppendTranscriptSegment(ctx context.Context, conversationID string, segment types.Segment) error
	// RecentSegments returns at most limit segments, oldest first.
	RecentSegments(ctx context.Context, conversationID string, limit int) ([]types.Segment, error)
	Notes(ctx context.Context, conversationID string) ([]types.Note, error)
	// CreateDiscussion keeps the first record written for an id.
	CreateDiscussion(ctx context.Context, d types.Discussion) error
	// Discussions lists every known discussion, oldest first.
	Discussions(ctx context.Context) ([]types.Discussion, error)
	Close() error
}

// EventSink is the transport collaborator receiving one event per processed utterance.
type EventSink interface {
	Publish(ctx context.Context, event types.PipelineEvent) error
}
