package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/harmon/types"
)

// Deepgram opens live transcription streams.
type Deepgram struct {
	url    string
	apiKey string
	dialer *websocket.Dialer
	log    logrus.FieldLogger
}

func NewDeepgram(url, apiKey string, log logrus.FieldLogger) *Deepgram {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Deepgram{url: url, apiKey: apiKey, dialer: websocket.DefaultDialer, log: log}
}

// Enabled reports whether a stream can be opened at all.
func (d *Deepgram) Enabled() bool { return d != nil && d.url != "" && d.apiKey != "" }

// dgResult covers both the live result shape and the batch shape.
type dgResult struct {
	Type    string `json:"type"`
	IsFinal *bool  `json:"is_final"`
	Channel struct {
		Alternatives []dgAlternative `json:"alternatives"`
	} `json:"channel"`
	Results struct {
		Channels []struct {
			Alternatives []dgAlternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type dgAlternative struct {
	Transcript string `json:"transcript"`
}

func (r dgResult) transcript() string {
	if r.IsFinal != nil && !*r.IsFinal {
		return ""
	}
	if len(r.Channel.Alternatives) > 0 {
		return strings.TrimSpace(r.Channel.Alternatives[0].Transcript)
	}
	if len(r.Results.Channels) > 0 && len(r.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(r.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

// Stream is one live connection. Send is safe for concurrent use.
type Stream struct {
	conn        *websocket.Conn
	transcripts chan string
	wmu         sync.Mutex
	closeOnce   sync.Once
	done        chan struct{}
	err         error
	log         logrus.FieldLogger
}

// Open dials the transcription service. Final transcripts are delivered on
// Transcripts until the stream ends.
func (d *Deepgram) Open(ctx context.Context) (*Stream, error) {
	if !d.Enabled() {
		return nil, types.NewProviderError("deepgram", "dial", errors.New("transcription not configured"))
	}
	h := http.Header{}
	h.Set("Authorization", "Token "+d.apiKey)
	conn, _, err := d.dialer.DialContext(ctx, d.url, h)
	if err != nil {
		return nil, types.NewProviderError("deepgram", "dial", err)
	}
	s := &Stream{
		conn:        conn,
		transcripts: make(chan string, 16),
		done:        make(chan struct{}),
		log:         d.log,
	}
	go s.read()
	return s, nil
}

func (s *Stream) read() {
	defer close(s.transcripts)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					s.err = err
					s.log.WithError(err).Warn("transcription stream ended")
				}
			}
			return
		}
		var r dgResult
		if err := json.Unmarshal(msg, &r); err != nil {
			s.log.WithError(err).Debug("skipping undecodable transcription frame")
			continue
		}
		text := r.transcript()
		if text == "" {
			continue
		}
		select {
		case s.transcripts <- text:
		case <-s.done:
			return
		}
	}
}

func (s *Stream) Transcripts() <-chan string { return s.transcripts }

// Err is the read error that ended the stream, if any. Valid once Transcripts is closed.
func (s *Stream) Err() error { return s.err }

func (s *Stream) Send(audio []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return types.NewProviderError("deepgram", "send", err)
	}
	return nil
}

// Close asks the service to flush and closes the connection.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.wmu.Lock()
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		s.wmu.Unlock()
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
