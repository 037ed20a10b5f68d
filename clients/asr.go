package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maastricht-university/harmon/types"
)

type TransSeg struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type ASRResp struct {
	Segments []TransSeg `json:"segments"`
	Language string     `json:"language"`
}

// Utterances turns the recognised segments into ordered utterances. Segment
// offsets are added to started.
func (r *ASRResp) Utterances(conversationID string, started time.Time) []types.Utterance {
	out := make([]types.Utterance, 0, len(r.Segments))
	for _, s := range r.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out = append(out, types.Utterance{
			Text:           text,
			ConversationID: conversationID,
			SequenceIndex:  uint64(len(out)),
			Timestamp:      started.Add(time.Duration(s.Start * float64(time.Second))),
		})
	}
	return out
}

// ASR uploads an audio file to the batch transcription service.
func (h *HTTP) ASR(ctx context.Context, url, audioPath string) (*ASRResp, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("asr open: %w", err)
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(url, "/")+"/transcribe", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out ASRResp
	if err := h.do(req, "asr", &out); err != nil {
		return nil, types.NewProviderError("asr", "transcribe", err)
	}
	return &out, nil
}
