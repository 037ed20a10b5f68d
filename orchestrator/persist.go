package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maastricht-university/harmon/types"
)

type SessionBundle struct {
	SessionID      string                `json:"session_id"`
	ConversationID string                `json:"conversation_id"`
	Source         string                `json:"source"`
	GeneratedAt    time.Time             `json:"generated_at"`
	Interventions  int                   `json:"interventions"`
	Commands       int                   `json:"commands"`
	Events         []types.PipelineEvent `json:"events"`
}

// Replay processes utterances in order as one conversation, then closes it.
func (p *Pipeline) Replay(ctx context.Context, conversationID string, utts []types.Utterance) ([]types.PipelineEvent, error) {
	if err := p.Open(conversationID); err != nil {
		return nil, err
	}
	defer func() { _ = p.Close(conversationID) }()

	events := make([]types.PipelineEvent, 0, len(utts))
	for _, u := range utts {
		u.ConversationID = conversationID
		ev, err := p.Process(ctx, u)
		if err != nil {
			return events, fmt.Errorf("replay utterance %d: %w", u.SequenceIndex, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func mkSessionDir(outputsRoot string, now time.Time) (string, string, error) {
	sid := "session_" + now.Format("20060102-150405")
	dir := filepath.Join(outputsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Export writes the events of a run to <outputs>/session_<ts>/events.json.
func Export(outputsRoot, conversationID, source string, events []types.PipelineEvent) (string, error) {
	now := time.Now()
	sid, dir, err := mkSessionDir(outputsRoot, now)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	bundle := SessionBundle{
		SessionID:      sid,
		ConversationID: conversationID,
		Source:         source,
		GeneratedAt:    now.UTC(),
		Events:         events,
	}
	for _, ev := range events {
		if ev.Assessment.NeedsIntervention {
			bundle.Interventions++
		}
		if ev.Command != nil {
			bundle.Commands++
		}
	}
	path := filepath.Join(dir, "events.json")
	if err := writeJSON(path, bundle); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return path, nil
}
