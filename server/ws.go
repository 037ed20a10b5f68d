package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/harmon/clients"
	"github.com/maastricht-university/harmon/types"
)

// Inbound frame types.
const (
	frameUtterance = "utterance"
	frameStart     = "start"
	frameStop      = "stop"
)

type inbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// session is one socket bound to one conversation. Utterances from typed
// frames and from the transcription stream share a queue so they reach the
// pipeline in arrival order.
type session struct {
	s      *Server
	c      *client
	log    logrus.FieldLogger
	ctx    context.Context
	queue  chan string
	seq    uint64
	mu     sync.Mutex
	stream *clients.Stream
	wg     sync.WaitGroup
}

func (s *Server) serveWS(c *gin.Context) {
	id := c.Query("conversation_id")
	if id == "" {
		id = uuid.NewString()
	}
	if !validID.MatchString(id) {
		abort(c, http.StatusBadRequest, &types.ValidationError{Field: "conversation_id", Reason: "invalid"})
		return
	}
	if err := s.p.Open(id); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		s:     s,
		c:     &client{conversationID: id, conn: conn, send: make(chan []byte, sendBuffer)},
		log:   s.log.WithField("conversation_id", id),
		ctx:   ctx,
		queue: make(chan string, sendBuffer),
	}
	s.hub.register(sess.c)
	go sess.c.writePump()
	sess.wg.Add(1)
	go sess.process()

	sess.status("connected", "")
	sess.read()

	// Disconnect tears the conversation down.
	sess.stopStream()
	cancel()
	sess.wg.Wait()
	s.hub.unregister(sess.c)
	if err := s.p.Close(id); err != nil && !errors.Is(err, types.ErrUnknownConversation) {
		sess.log.WithError(err).Warn("conversation teardown failed")
	}
	sess.log.Info("websocket closed")
}

func (ss *session) status(status, msg string) {
	ss.s.hub.sendTo(ss.c, outbound{Type: frameStatus, ConversationID: ss.c.conversationID, Status: status, Message: msg})
}

func (ss *session) fail(err error) {
	ss.s.hub.sendTo(ss.c, outbound{Type: frameError, ConversationID: ss.c.conversationID, Message: err.Error()})
}

func (ss *session) read() {
	conn := ss.c.conn
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ss.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if mt == websocket.BinaryMessage {
			ss.audio(data)
			continue
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			ss.fail(&types.ValidationError{Field: "frame", Reason: "not valid JSON"})
			continue
		}
		switch in.Type {
		case frameUtterance:
			ss.enqueue(in.Text)
		case frameStart:
			ss.startStream()
		case frameStop:
			ss.stopStream()
			ss.status("stopped", "")
		default:
			ss.fail(&types.ValidationError{Field: "type", Reason: "unknown frame type " + in.Type})
		}
	}
}

func (ss *session) enqueue(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	select {
	case ss.queue <- text:
	case <-ss.ctx.Done():
	}
}

func (ss *session) process() {
	defer ss.wg.Done()
	for {
		select {
		case <-ss.ctx.Done():
			return
		case text := <-ss.queue:
			u := types.Utterance{
				Text:           text,
				ConversationID: ss.c.conversationID,
				SequenceIndex:  ss.seq,
				Timestamp:      time.Now().UTC(),
			}
			ss.seq++
			// The event itself reaches the socket through the hub.
			if _, err := ss.s.p.Process(ss.ctx, u); err != nil && ss.ctx.Err() == nil {
				ss.fail(err)
			}
		}
	}
}

func (ss *session) audio(data []byte) {
	ss.mu.Lock()
	stream := ss.stream
	ss.mu.Unlock()
	if stream == nil {
		return
	}
	if err := stream.Send(data); err != nil {
		ss.log.WithError(err).Warn("forwarding audio failed")
		ss.fail(err)
		ss.stopStream()
	}
}

func (ss *session) startStream() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.stream != nil {
		ss.status("started", "")
		return
	}
	if !ss.s.dg.Enabled() {
		ss.status("started", "live transcription unavailable, send utterance frames")
		return
	}
	stream, err := ss.s.dg.Open(ss.ctx)
	if err != nil {
		ss.fail(err)
		return
	}
	ss.stream = stream
	ss.wg.Add(1)
	go func() {
		defer ss.wg.Done()
		for text := range stream.Transcripts() {
			ss.enqueue(text)
		}
		if err := stream.Err(); err != nil && ss.ctx.Err() == nil {
			ss.fail(types.NewProviderError("deepgram", "stream", err))
		}
	}()
	ss.status("started", "")
}

func (ss *session) stopStream() {
	ss.mu.Lock()
	stream := ss.stream
	ss.stream = nil
	ss.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}
}
