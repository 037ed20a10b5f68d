package clients

import (
	"context"
	"strings"

	"github.com/maastricht-university/harmon/types"
)

type SentimentReq struct {
	Text string `json:"text"`
}

type SentimentResp struct {
	Polarity     float64 `json:"polarity"`
	Subjectivity float64 `json:"subjectivity"`
	Sentiment    string  `json:"sentiment"`
}

// Sentiment asks a remote scoring service for polarity and subjectivity.
func (h *HTTP) Sentiment(ctx context.Context, url, text string) (*SentimentResp, error) {
	var out SentimentResp
	if err := h.postJSON(ctx, "sentiment", strings.TrimRight(url, "/")+"/api/analyze_sentiment", SentimentReq{Text: text}, &out); err != nil {
		return nil, types.NewProviderError("sentiment", "analyze", err)
	}
	return &out, nil
}

// SentimentFunc binds the client to a service url for sentiment.NewRemote.
func (h *HTTP) SentimentFunc(url string) func(ctx context.Context, text string) (float64, float64, error) {
	return func(ctx context.Context, text string) (float64, float64, error) {
		r, err := h.Sentiment(ctx, url, text)
		if err != nil {
			return 0, 0, err
		}
		return r.Polarity, r.Subjectivity, nil
	}
}
