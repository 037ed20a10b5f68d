package sentiment

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/harmon/types"
)

// ScoreFunc calls an external sentiment service.
type ScoreFunc func(ctx context.Context, text string) (polarity, subjectivity float64, err error)

// Remote scores through an external service and falls back to a local scorer
// when the call fails or times out.
type Remote struct {
	call     ScoreFunc
	fallback Scorer
	timeout  time.Duration
	log      logrus.FieldLogger
}

func NewRemote(call ScoreFunc, fallback Scorer, timeout time.Duration, log logrus.FieldLogger) *Remote {
	if fallback == nil {
		fallback = Default()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Remote{call: call, fallback: fallback, timeout: timeout, log: log}
}

func (r *Remote) Score(text string) types.SentimentScore {
	if strings.TrimSpace(text) == "" {
		return types.SentimentScore{Category: types.CategoryNeutral}
	}
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	p, s, err := r.call(ctx, text)
	if err != nil {
		r.log.WithError(err).Warn("remote sentiment failed, using lexicon")
		return r.fallback.Score(text)
	}
	p = round(clamp(p, -1, 1))
	return types.SentimentScore{
		Polarity:     p,
		Subjectivity: round(clamp(s, 0, 1)),
		Category:     types.CategoryFor(p),
	}
}
