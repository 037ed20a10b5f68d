package clients

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/maastricht-university/harmon/types"
	"github.com/maastricht-university/harmon/types/interfaces"
)

// Limited throttles calls to a generator shared by every conversation.
type Limited struct {
	next interfaces.Generator
	lim  *rate.Limiter
}

func NewLimited(next interfaces.Generator, perSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) Generate(ctx context.Context, system, user string, opts types.GenerateOptions) (string, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return "", types.NewProviderError("limiter", "wait", err)
	}
	return l.next.Generate(ctx, system, user, opts)
}
