package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/harmon/config"
	"github.com/maastricht-university/harmon/types"
)

func TestASR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "talk.wav", hdr.Filename)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "RIFF", string(body))
		_ = json.NewEncoder(w).Encode(ASRResp{
			Language: "en",
			Segments: []TransSeg{{Start: 0, End: 1, Text: " hello "}, {Start: 1, End: 2, Text: " "}, {Start: 2.5, End: 3, Text: "harmon summarize"}},
		})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "talk.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	resp, err := NewHTTP(time.Second).ASR(context.Background(), srv.URL+"/", path)
	require.NoError(t, err)
	assert.Equal(t, "en", resp.Language)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	utts := resp.Utterances("c1", start)
	require.Len(t, utts, 2)
	assert.Equal(t, "hello", utts[0].Text)
	assert.Equal(t, uint64(1), utts[1].SequenceIndex)
	assert.Equal(t, start.Add(2500*time.Millisecond), utts[1].Timestamp)
	assert.Equal(t, "c1", utts[1].ConversationID)
}

func TestASRServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := NewHTTP(time.Second).ASR(context.Background(), srv.URL, path)
	var pe *types.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestSentimentFunc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze_sentiment", r.URL.Path)
		var req SentimentReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "great job", req.Text)
		_, _ = w.Write([]byte(`{"polarity":0.8,"subjectivity":0.75,"sentiment":"positive"}`))
	}))
	defer srv.Close()

	p, s, err := NewHTTP(time.Second).SentimentFunc(srv.URL)(context.Background(), "great job")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, p, 1e-9)
	assert.InDelta(t, 0.75, s, 1e-9)
}

const chatReply = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"m",
"choices":[{"index":0,"message":{"role":"assistant","content":"Bonjour"},"finish_reason":"stop"}]}`

type chatRequest struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, got *chatRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatReply))
	}))
}

func TestChatCompletions(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, &got)
	defer srv.Close()

	gen := NewChatCompletions("sk-test", srv.URL+"/v1", "llama")
	text, err := gen.Generate(context.Background(), "sys", "hello", types.Temperature(0.3))
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", text)
	assert.Equal(t, "llama", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.3, *got.Temperature, 1e-6)
}

func TestChatCompletionsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewChatCompletions("sk-test", srv.URL+"/v1", "llama").Generate(context.Background(), "s", "u", types.GenerateOptions{})
	var pe *types.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, config.ProviderOpenAI, pe.Provider)
}

func TestOpenAISDK(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, &got)
	defer srv.Close()

	gen := NewOpenAISDK("sk-test", srv.URL+"/v1/", "gpt-4o-mini")
	text, err := gen.Generate(context.Background(), "sys", "hello", types.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", text)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Nil(t, got.Temperature)
}

type countingGenerator struct{ calls atomic.Int32 }

func (c *countingGenerator) Generate(context.Context, string, string, types.GenerateOptions) (string, error) {
	c.calls.Add(1)
	return "ok", nil
}

func TestLimitedHonoursContext(t *testing.T) {
	next := &countingGenerator{}
	lim := NewLimited(next, 0.001, 1)

	_, err := lim.Generate(context.Background(), "s", "u", types.GenerateOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = lim.Generate(ctx, "s", "u", types.GenerateOptions{})
	var pe *types.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestNewGenerator(t *testing.T) {
	gen, err := NewGenerator(config.LLM{Provider: config.ProviderNone})
	require.NoError(t, err)
	assert.Nil(t, gen)

	_, err = NewGenerator(config.LLM{Provider: config.ProviderOpenAI})
	require.ErrorIs(t, err, ErrNoAPIKey)

	gen, err = NewGenerator(config.LLM{Provider: config.ProviderOpenAISDK, APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAISDK{}, gen)

	gen, err = NewGenerator(config.LLM{Provider: config.ProviderOpenAI, APIKey: "k", Model: "m", RequestsPerSecond: 2})
	require.NoError(t, err)
	assert.IsType(t, &Limited{}, gen)

	gen, err = NewGenerator(config.LLM{Provider: config.ProviderOllama, Model: "llama3", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.IsType(t, &LangChain{}, gen)

	_, err = NewGenerator(config.LLM{Provider: "bard"})
	require.Error(t, err)
}

func TestDeepgramStream(t *testing.T) {
	up := websocket.Upgrader{}
	audio := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token dg-key", r.Header.Get("Authorization"))
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		mt, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, mt)
		audio <- msg

		frames := []string{
			`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`,
			`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello there"}]}}`,
			`{"type":"Metadata"}`,
			`{"results":{"channels":[{"alternatives":[{"transcript":"Harmon summarize"}]}]}}`,
		}
		for _, f := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	dg := NewDeepgram("ws"+strings.TrimPrefix(srv.URL, "http"), "dg-key", nil)
	require.True(t, dg.Enabled())
	stream, err := dg.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, stream.Send([]byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, <-audio)

	var got []string
	for len(got) < 2 {
		select {
		case text := <-stream.Transcripts():
			got = append(got, text)
		case <-time.After(2 * time.Second):
			t.Fatal("no transcript")
		}
	}
	assert.Equal(t, []string{"hello there", "Harmon summarize"}, got)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
}

func TestDeepgramStreamReportsDrop(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	stream, err := NewDeepgram("ws"+strings.TrimPrefix(srv.URL, "http"), "dg-key", nil).Open(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	for range stream.Transcripts() {
	}
	assert.Error(t, stream.Err())
}

func TestDeepgramNotConfigured(t *testing.T) {
	dg := NewDeepgram("", "", nil)
	assert.False(t, dg.Enabled())
	_, err := dg.Open(context.Background())
	require.Error(t, err)
}
