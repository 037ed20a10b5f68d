package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/harmon/config"
	"github.com/maastricht-university/harmon/types"
	"github.com/maastricht-university/harmon/types/interfaces"
)

func exerciseStore(t *testing.T, st interfaces.Store) {
	t.Helper()
	ctx := context.Background()
	conv := "conv-" + uuid.NewString()
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendTranscriptSegment(ctx, conv, types.Segment{
			ID:        uuid.NewString(),
			Text:      fmt.Sprintf("line %d", i),
			Sequence:  uint64(i),
			Timestamp: at.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, st.AppendTranscriptSegment(ctx, "other-"+conv, types.Segment{ID: uuid.NewString(), Text: "elsewhere"}))

	recent, err := st.RecentSegments(ctx, conv, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "line 2", recent[0].Text)
	assert.Equal(t, "line 4", recent[2].Text)
	assert.Equal(t, uint64(4), recent[2].Sequence)
	assert.True(t, at.Add(4*time.Second).Equal(recent[2].Timestamp))

	all, err := st.RecentSegments(ctx, conv, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	note := types.Note{ID: uuid.NewString(), Point: "ship on monday", Solutions: []string{"a", "b"}, Timestamp: at}
	require.NoError(t, st.AppendNote(ctx, conv, note))
	require.NoError(t, st.AppendNote(ctx, conv, types.Note{ID: uuid.NewString(), Point: "second"}))

	notes, err := st.Notes(ctx, conv)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, note.Point, notes[0].Point)
	assert.Equal(t, note.Solutions, notes[0].Solutions)
	assert.Equal(t, "second", notes[1].Point)

	none, err := st.Notes(ctx, "missing-"+conv)
	require.NoError(t, err)
	assert.Empty(t, none)

	named := "named-" + conv
	require.NoError(t, st.CreateDiscussion(ctx, types.Discussion{ID: named, Title: "Budget review", Created: at.Add(time.Hour)}))
	require.NoError(t, st.CreateDiscussion(ctx, types.Discussion{ID: named, Title: "ignored"}))
	require.NoError(t, st.AppendNote(ctx, named, types.Note{ID: uuid.NewString(), Point: "keep title"}))

	discs, err := st.Discussions(ctx)
	require.NoError(t, err)
	byID := map[string]types.Discussion{}
	for _, d := range discs {
		byID[d.ID] = d
	}
	require.Contains(t, byID, conv)
	require.Contains(t, byID, "other-"+conv)
	require.Contains(t, byID, named)
	assert.Equal(t, "Budget review", byID[named].Title)
	assert.Empty(t, byID[conv].Title)
	assert.True(t, at.Equal(byID[conv].Created), "registered by the first segment")
	assert.NotContains(t, byID, "missing-"+conv)
}

func TestMemoryDiscussionsOrder(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.CreateDiscussion(ctx, types.Discussion{ID: "b", Created: at}))
	require.NoError(t, st.CreateDiscussion(ctx, types.Discussion{ID: "a", Created: at}))
	require.NoError(t, st.CreateDiscussion(ctx, types.Discussion{ID: "old", Created: at.Add(-time.Minute)}))
	require.NoError(t, st.CreateDiscussion(ctx, types.Discussion{ID: "now"}))

	discs, err := st.Discussions(ctx)
	require.NoError(t, err)
	ids := make([]string, len(discs))
	for i, d := range discs {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"old", "a", "b", "now"}, ids)
	assert.False(t, discs[3].Created.IsZero())
}

func TestMemory(t *testing.T) {
	st := NewMemory()
	exerciseStore(t, st)
	require.NoError(t, st.Close())
}

func TestMemoryReturnsCopies(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	require.NoError(t, st.AppendTranscriptSegment(ctx, "c", types.Segment{Text: "a"}))
	segs, _ := st.RecentSegments(ctx, "c", 10)
	segs[0].Text = "mutated"
	again, _ := st.RecentSegments(ctx, "c", 10)
	assert.Equal(t, "a", again[0].Text)
}

func TestSQLite(t *testing.T) {
	st, err := New(context.Background(), config.Store{
		Backend: config.BackendSQLite,
		DSN:     filepath.Join(t.TempDir(), "harmon.db"),
	})
	require.NoError(t, err)
	defer st.Close()
	exerciseStore(t, st)
}

func TestSQLiteGeneratesMissingIDs(t *testing.T) {
	st, err := New(context.Background(), config.Store{
		Backend: config.BackendSQLite,
		DSN:     filepath.Join(t.TempDir(), "harmon.db"),
	})
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.AppendTranscriptSegment(ctx, "c", types.Segment{Text: "one"}))
	require.NoError(t, st.AppendTranscriptSegment(ctx, "c", types.Segment{Text: "two"}))
	segs, err := st.RecentSegments(ctx, "c", 10)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.NotEqual(t, segs[0].ID, segs[1].ID)
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("HARMON_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HARMON_TEST_REDIS_ADDR not set")
	}
	st, err := New(context.Background(), config.Store{Backend: config.BackendRedis, Redis: config.Redis{Addr: addr}})
	require.NoError(t, err)
	defer st.Close()
	exerciseStore(t, st)
}

func TestUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), config.Store{Backend: "mongo"})
	require.Error(t, err)
}
