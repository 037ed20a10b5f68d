package orchestrator

import (
	"context"
	"time"

	"github.com/maastricht-university/harmon/emotion"
	"github.com/maastricht-university/harmon/types"
)

// conversation is owned by its actor goroutine; only run touches tracker,
// history and seq. refs is guarded by the pipeline mutex.
type conversation struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan job
	refs   int

	tracker *emotion.Tracker
	history []string
	seq     uint64
}

type job struct {
	ctx context.Context
	run func(ctx context.Context)
}

func (c *conversation) live() bool { return c.ctx.Err() == nil }

// next returns the running sequence index and advances it.
func (c *conversation) next() uint64 {
	s := c.seq
	c.seq++
	return s
}

// Open starts a conversation. Opening a live one is a no-op.
func (p *Pipeline) Open(id string) error {
	if id == "" {
		return &types.ValidationError{Field: "conversation_id", Reason: "is empty"}
	}
	c, err := p.open(id)
	if err != nil {
		return err
	}
	p.release(c)
	return nil
}

// open returns the conversation for id, starting it when needed, and holds it
// against idle eviction until release.
func (p *Pipeline) open(id string) (*conversation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return nil, &types.StateError{ConversationID: id, Err: types.ErrConversationClosed}
	}
	if c, ok := p.convs[id]; ok {
		c.refs++
		return c, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &conversation{
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		inbox:   make(chan job, p.inboxSize),
		tracker: emotion.NewTracker(p.emotionCfg),
		refs:    1,
	}
	p.convs[id] = c
	p.wg.Add(1)
	go p.run(c)
	p.log.WithField("conversation_id", id).Info("conversation opened")
	return c, nil
}

func (p *Pipeline) lookup(id string) (*conversation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.convs[id]
	return c, ok
}

// hold is lookup that also holds the conversation until release.
func (p *Pipeline) hold(id string) (*conversation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.convs[id]
	if ok {
		c.refs++
	}
	return c, ok
}

func (p *Pipeline) release(c *conversation) {
	p.mu.Lock()
	c.refs--
	p.mu.Unlock()
}

// evict closes c when nobody holds it. It reports whether c was closed.
func (p *Pipeline) evict(c *conversation) bool {
	p.mu.Lock()
	if p.convs[c.id] != c || c.refs > 0 {
		p.mu.Unlock()
		return false
	}
	delete(p.convs, c.id)
	p.mu.Unlock()

	c.cancel()
	p.log.WithField("conversation_id", c.id).Info("idle conversation closed")
	return true
}

// Close tears a conversation down. In-flight work is cancelled and its
// result discarded. Unknown ids are reported as a StateError.
func (p *Pipeline) Close(id string) error {
	p.mu.Lock()
	c, ok := p.convs[id]
	delete(p.convs, id)
	p.mu.Unlock()

	if !ok {
		p.log.WithField("conversation_id", id).Warn("close of unknown conversation")
		return &types.StateError{ConversationID: id, Err: types.ErrUnknownConversation}
	}
	c.cancel()
	p.log.WithField("conversation_id", id).Info("conversation closed")
	return nil
}

// Live reports whether id has an open conversation.
func (p *Pipeline) Live(id string) bool {
	_, ok := p.lookup(id)
	return ok
}

// Shutdown closes every conversation and waits for their actors to exit.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.shutdown = true
	convs := p.convs
	p.convs = make(map[string]*conversation)
	p.mu.Unlock()

	for _, c := range convs {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run serves c's inbox. With an idle timeout, a conversation that sees no
// work for that long is evicted.
func (p *Pipeline) run(c *conversation) {
	defer p.wg.Done()
	var (
		timer *time.Timer
		idle  <-chan time.Time
	)
	if p.idleTimeout > 0 {
		timer = time.NewTimer(p.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}
	for {
		select {
		case <-c.ctx.Done():
			return
		case j := <-c.inbox:
			p.exec(c, j)
		case <-idle:
			if p.evict(c) {
				return
			}
		}
		if timer != nil {
			timer.Reset(p.idleTimeout)
		}
	}
}

// exec bounds a job by both the caller's and the conversation's lifetime.
func (p *Pipeline) exec(c *conversation, j job) {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(j.ctx, cancel)
	defer stop()
	j.run(ctx)
}

type result[T any] struct {
	v   T
	err error
}

// call runs fn on c's actor and waits for it, the caller's ctx or the end of
// the conversation, whichever comes first.
func call[T any](ctx context.Context, p *Pipeline, c *conversation, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	reply := make(chan result[T], 1)
	j := job{ctx: ctx, run: func(ctx context.Context) {
		v, err := fn(ctx)
		reply <- result[T]{v, err}
	}}

	closed := func() (T, error) {
		return zero, &types.StateError{ConversationID: c.id, Err: types.ErrConversationClosed}
	}
	select {
	case c.inbox <- j:
	case <-c.ctx.Done():
		return closed()
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.v, r.err
	case <-c.ctx.Done():
		return closed()
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
