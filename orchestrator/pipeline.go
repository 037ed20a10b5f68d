// Package orchestrator runs each utterance through scoring, trend tracking,
// intervention and command handling, one actor per conversation.
package orchestrator

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/harmon/clients"
	"github.com/maastricht-university/harmon/command"
	cfg "github.com/maastricht-university/harmon/config"
	"github.com/maastricht-university/harmon/dispatch"
	"github.com/maastricht-university/harmon/emotion"
	"github.com/maastricht-university/harmon/intervention"
	"github.com/maastricht-university/harmon/sentiment"
	"github.com/maastricht-university/harmon/types"
	"github.com/maastricht-university/harmon/types/interfaces"
)

// Deps are the collaborators a pipeline is built around. Nil fields fall back
// to what the config selects.
type Deps struct {
	Generator interfaces.Generator
	Store     interfaces.Store
	Sink      interfaces.EventSink
	Scorer    sentiment.Scorer
	Log       logrus.FieldLogger
}

const defaultStoreTimeout = 5 * time.Second

type Pipeline struct {
	scorer     sentiment.Scorer
	matcher    *command.Matcher
	composer   *intervention.Composer
	dispatcher *dispatch.Dispatcher
	store      interfaces.Store
	sink       interfaces.EventSink
	emotionCfg emotion.Config

	persistTranscript bool
	storeTimeout      time.Duration
	idleTimeout       time.Duration
	inboxSize         int
	log               logrus.FieldLogger

	mu       sync.Mutex
	convs    map[string]*conversation
	shutdown bool
	wg       sync.WaitGroup
}

func NewPipeline(c *cfg.Root, d Deps) *Pipeline {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	llmTimeout := cfg.DurSeconds(c.LLM.TimeoutSeconds)
	storeTimeout := cfg.DurSeconds(c.Store.TimeoutSeconds)
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	scorer := d.Scorer
	if scorer == nil {
		scorer = sentiment.Default()
		if url := c.Services.Sentiment.URL; url != "" {
			h := clients.NewHTTP(llmTimeout)
			scorer = sentiment.NewRemote(h.SentimentFunc(url), sentiment.Default(), 5*time.Second, log)
		}
	}

	chooser := intervention.RandomChooser()
	if c.Intervention.Seed != 0 {
		chooser = intervention.SeededChooser(c.Intervention.Seed)
	}
	composer := intervention.NewComposer(d.Generator,
		intervention.WithChooser(chooser),
		intervention.WithTimeout(llmTimeout),
		intervention.WithHistoryTurns(c.Intervention.HistoryTurns),
		intervention.WithLogger(log),
	)
	dispatcher := dispatch.New(d.Generator, d.Store,
		dispatch.WithTimeout(llmTimeout),
		dispatch.WithHistoryTurns(c.LLM.HistoryTurns),
		dispatch.WithLogger(log),
	)

	return &Pipeline{
		scorer:            scorer,
		matcher:           command.NewMatcher(c.Wake.Token, c.Wake.Aliases...),
		composer:          composer,
		dispatcher:        dispatcher,
		store:             d.Store,
		sink:              d.Sink,
		emotionCfg:        c.Emotion,
		persistTranscript: c.Store.PersistTranscript && d.Store != nil,
		storeTimeout:      storeTimeout,
		idleTimeout:       cfg.DurSeconds(c.Pipeline.IdleTimeoutSeconds),
		inboxSize:         16,
		log:               log,
		convs:             make(map[string]*conversation),
	}
}

func (p *Pipeline) Scorer() sentiment.Scorer         { return p.scorer }
func (p *Pipeline) Matcher() *command.Matcher        { return p.matcher }
func (p *Pipeline) Composer() *intervention.Composer { return p.composer }
func (p *Pipeline) Store() interfaces.Store          { return p.store }

// Process runs one utterance through the conversation's actor. The event is
// also published to the sink unless the conversation ended meanwhile.
func (p *Pipeline) Process(ctx context.Context, u types.Utterance) (types.PipelineEvent, error) {
	if u.ConversationID == "" {
		return types.PipelineEvent{}, &types.ValidationError{Field: "conversation_id", Reason: "is empty"}
	}
	c, err := p.open(u.ConversationID)
	if err != nil {
		return types.PipelineEvent{}, err
	}
	defer p.release(c)
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}

	return call(ctx, p, c, func(ctx context.Context) (types.PipelineEvent, error) {
		return p.handle(ctx, c, u)
	})
}

func (p *Pipeline) handle(ctx context.Context, c *conversation, u types.Utterance) (types.PipelineEvent, error) {
	seq := c.next()
	c.history = append(c.history, u.Text)
	log := p.log.WithFields(logrus.Fields{"conversation_id": c.id, "sequence": seq})

	if p.persistTranscript {
		p.persist(ctx, c.id, u, seq, log)
	}

	score := p.scorer.Score(u.Text)
	ev := types.PipelineEvent{
		Utterance:  u,
		Sentiment:  score,
		Assessment: c.tracker.Assess(score, int64(seq)),
	}
	history := slices.Clone(c.history)

	if ev.Assessment.NeedsIntervention {
		ev.InterventionText = p.composer.Compose(ctx, ev.Assessment.InterventionType, history)
		log.WithField("intervention", ev.Assessment.InterventionType).Info("intervention triggered")
	}

	// Only utterances addressed to the assistant become commands.
	if cmd := p.matcher.Match(u.Text); cmd.Kind != types.CommandNone && p.matcher.Addressed(u.Text) {
		resp, _ := p.dispatcher.Dispatch(ctx, c.id, cmd, history)
		ev.Command = &cmd
		ev.CommandResponse = &resp
	}

	if !c.live() {
		log.Warn("conversation ended during processing, discarding event")
		return types.PipelineEvent{}, &types.StateError{ConversationID: c.id, Err: types.ErrConversationClosed}
	}
	if p.sink != nil {
		if err := p.sink.Publish(ctx, ev); err != nil {
			log.WithError(err).Warn("publish event failed")
		}
	}
	log.WithField("emotion", ev.Assessment.Emotion).Debug("utterance processed")
	return ev, nil
}

func (p *Pipeline) persist(ctx context.Context, id string, u types.Utterance, seq uint64, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	seg := types.Segment{ID: uuid.NewString(), Text: u.Text, Sequence: seq, Timestamp: u.Timestamp}
	if err := p.store.AppendTranscriptSegment(ctx, id, seg); err != nil {
		log.WithError(types.NewProviderError("store", "append segment", err)).Warn("transcript segment not saved")
	}
}

// Assess feeds an externally computed reading into the conversation's tracker.
// Intensity defaults when unknown.
func (p *Pipeline) Assess(ctx context.Context, conversationID string, polarity, intensity float64) (types.EmotionAssessment, error) {
	if conversationID == "" {
		return types.EmotionAssessment{}, &types.ValidationError{Field: "conversation_id", Reason: "is empty"}
	}
	c, err := p.open(conversationID)
	if err != nil {
		return types.EmotionAssessment{}, err
	}
	defer p.release(c)
	return call(ctx, p, c, func(context.Context) (types.EmotionAssessment, error) {
		return c.tracker.AssessReading(polarity, intensity, int64(c.next())), nil
	})
}

// History returns a copy of a live conversation's turns.
func (p *Pipeline) History(ctx context.Context, conversationID string) ([]string, error) {
	c, ok := p.hold(conversationID)
	if !ok {
		return nil, &types.StateError{ConversationID: conversationID, Err: types.ErrUnknownConversation}
	}
	defer p.release(c)
	return call(ctx, p, c, func(context.Context) ([]string, error) {
		return slices.Clone(c.history), nil
	})
}

// Dispatch runs a command outside the utterance flow. An empty history is
// taken from the live conversation when there is one.
func (p *Pipeline) Dispatch(ctx context.Context, conversationID string, cmd types.Command, history []string) (types.Response, error) {
	if len(history) == 0 && conversationID != "" {
		h, err := p.History(ctx, conversationID)
		if err != nil && !errors.Is(err, types.ErrUnknownConversation) {
			return types.Response{CommandType: cmd.Kind, Error: err.Error()}, err
		}
		history = h
	}
	return p.dispatcher.Dispatch(ctx, conversationID, cmd, history)
}
