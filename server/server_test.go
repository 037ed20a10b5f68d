package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/harmon/config"
	"github.com/maastricht-university/harmon/emotion"
	"github.com/maastricht-university/harmon/orchestrator"
	"github.com/maastricht-university/harmon/store"
	"github.com/maastricht-university/harmon/types"
)

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, system, user string, _ types.GenerateOptions) (string, error) {
	if strings.Contains(system, "translator") {
		return "hola", nil
	}
	return "reply to: " + user, nil
}

func newTestServer(t *testing.T) (*Server, *orchestrator.Pipeline) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c := &config.Root{}
	c.Wake = config.Wake{Token: "harmon"}
	c.Emotion = emotion.DefaultConfig()
	c.LLM = config.LLM{TimeoutSeconds: 5}
	c.Store = config.Store{RecentLimit: 50, TimeoutSeconds: 1, PersistTranscript: true}

	hub := NewHub(nil)
	p := orchestrator.NewPipeline(c, orchestrator.Deps{
		Generator: echoGenerator{},
		Store:     store.NewMemory(),
		Sink:      hub,
	})
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	s := New(Options{Pipeline: p, Hub: hub, Services: map[string]string{"llm": "fake"}})
	return s, p
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"llm": "fake"}, body["services"])
}

func TestAnalyzeSentiment(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/analyze_sentiment", map[string]string{"text": "I love this, it is wonderful"})
	require.Equal(t, http.StatusOK, w.Code)
	score := decode[types.SentimentScore](t, w)
	assert.Equal(t, types.CategoryPositive, score.Category)

	w = do(t, s, http.MethodPost, "/api/analyze_sentiment", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessCommand(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/process_command", map[string]string{"text": "harmon translate hello to spanish"})
	require.Equal(t, http.StatusOK, w.Code)
	cmd := decode[types.Command](t, w)
	assert.Equal(t, types.CommandTranslate, cmd.Kind)
	assert.Equal(t, "hello", cmd.Param(types.ParamContent))
	assert.Equal(t, "spanish", cmd.Param(types.ParamTargetLanguage))

	w = do(t, s, http.MethodPost, "/api/process_command", map[string]string{"text": "hey bot recap", "wake_token": "hey bot"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.CommandSummarize, decode[types.Command](t, w).Kind)

	w = do(t, s, http.MethodPost, "/api/process_command", map[string]string{"text": "summarize this conversation"})
	require.Equal(t, http.StatusOK, w.Code)
	cmd = decode[types.Command](t, w)
	assert.Equal(t, types.CommandSummarize, cmd.Kind)
	assert.Equal(t, "this conversation", cmd.Param(types.ParamContext))
}

func TestTranslate(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/translate", map[string]string{"text": "hello", "target_language": "Spanish"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[types.Response](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "hola", resp.TranslatedText)
	assert.Equal(t, "es", resp.LanguageCode)

	w = do(t, s, http.MethodPost, "/api/translate", map[string]string{"text": "", "target_language": "fr"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decode[types.Response](t, w).Success)
}

func TestGenerateResponse(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/generate_response", map[string]any{
		"command_type":         "summarize",
		"parameters":           map[string]string{"context": "current_conversation"},
		"conversation_history": []string{"we disagree on the plan", "let's vote"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[types.Response](t, w)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Response, "Person 1: we disagree on the plan")

	w = do(t, s, http.MethodPost, "/api/generate_response", map[string]any{"command_type": "none"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeEmotion(t *testing.T) {
	s, _ := newTestServer(t)
	body := map[string]any{
		"conversation_id": "room-1",
		"sentiment_data":  map[string]any{"polarity": -0.8, "subjectivity": 0.9},
	}

	w := do(t, s, http.MethodPost, "/api/analyze_emotion", body)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[emotionResp](t, w)
	assert.True(t, first.NeedsIntervention)
	assert.Equal(t, types.EmotionAngry, first.Emotion)
	assert.NotEmpty(t, first.InterventionText)

	w = do(t, s, http.MethodPost, "/api/analyze_emotion", body)
	second := decode[emotionResp](t, w)
	assert.False(t, second.NeedsIntervention)
	assert.Empty(t, second.InterventionText)
}

func TestUtterancesAndDiscussions(t *testing.T) {
	s, _ := newTestServer(t)

	for i, text := range []string{"we should ship on friday", "harmon save this"} {
		w := do(t, s, http.MethodPost, "/api/utterances", map[string]any{"conversation_id": "room-2", "text": text, "sequence_index": i})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := do(t, s, http.MethodGet, "/api/discussions/room-2/transcript?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tr := decode[struct {
		Segments []types.Segment `json:"segments"`
	}](t, w)
	require.Len(t, tr.Segments, 1)
	assert.Equal(t, "harmon save this", tr.Segments[0].Text)

	w = do(t, s, http.MethodGet, "/api/discussions/room-2/notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	notes := decode[struct {
		Notes []types.Note `json:"notes"`
	}](t, w)
	require.Len(t, notes.Notes, 1)
	assert.Equal(t, "we should ship on friday", notes.Notes[0].Point)

	w = do(t, s, http.MethodGet, "/api/discussions/bad.id/notes", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodGet, "/api/discussions/room-2/transcript?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiscussions(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/discussions", map[string]string{"title": "Sprint retro"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[map[string]any](t, w)["discussion_id"].(string)
	require.NotEmpty(t, id)

	w = do(t, s, http.MethodPost, "/api/discussions", map[string]string{})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, s, http.MethodPost, "/api/utterances", map[string]any{"conversation_id": id, "text": "let's start"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/api/discussions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Discussions []types.Discussion `json:"discussions"`
	}](t, w)
	require.Len(t, list.Discussions, 2)
	titles := map[string]string{}
	for _, d := range list.Discussions {
		titles[d.ID] = d.Title
	}
	assert.Equal(t, "Sprint retro", titles[id])
	delete(titles, id)
	for _, title := range titles {
		assert.True(t, strings.HasPrefix(title, "Discussion "), title)
	}

	w = do(t, s, http.MethodGet, "/api/discussions/"+id+"/transcript", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "let's start")
}

func TestUtteranceValidation(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/utterances", map[string]any{"conversation_id": "", "text": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodPost, "/api/utterances", map[string]any{"conversation_id": "ok", "text": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversationLifecycle(t *testing.T) {
	s, p := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/conversations", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[map[string]string](t, w)["conversation_id"]
	require.NotEmpty(t, id)
	assert.True(t, p.Live(id))

	w = do(t, s, http.MethodDelete, "/api/conversations/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, p.Live(id))

	w = do(t, s, http.MethodDelete, "/api/conversations/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func readFrame(t *testing.T, conn *websocket.Conn) outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg outbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketSession(t *testing.T) {
	s, p := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?conversation_id=room-ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	hello := readFrame(t, conn)
	assert.Equal(t, frameStatus, hello.Type)
	assert.Equal(t, "connected", hello.Status)
	assert.Equal(t, "room-ws", hello.ConversationID)
	assert.True(t, p.Live("room-ws"))

	require.NoError(t, conn.WriteJSON(inbound{Type: frameStart}))
	started := readFrame(t, conn)
	assert.Equal(t, "started", started.Status)
	assert.NotEmpty(t, started.Message)

	require.NoError(t, conn.WriteJSON(inbound{Type: frameUtterance, Text: "harmon what is the capital of France"}))
	ev := readFrame(t, conn)
	require.Equal(t, frameEvent, ev.Type)
	require.NotNil(t, ev.Event)
	require.NotNil(t, ev.Event.Command)
	assert.Equal(t, types.CommandGeneralQuestion, ev.Event.Command.Kind)
	assert.Equal(t, "reply to: what is the capital of France", ev.Event.CommandResponse.Response)

	require.NoError(t, conn.WriteJSON(inbound{Type: "dance"}))
	assert.Equal(t, frameError, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()
	assert.Eventually(t, func() bool { return !p.Live("room-ws") }, 2*time.Second, 10*time.Millisecond)
	s.hub.mu.RLock()
	assert.Empty(t, s.hub.clients["room-ws"])
	s.hub.mu.RUnlock()
}

func TestWebSocketRejectsBadID(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/ws?conversation_id=no%20spaces", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
