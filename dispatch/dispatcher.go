// Package dispatch routes a matched command to its action and packages the
// uniform response envelope.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/harmon/prompt"
	"github.com/maastricht-university/harmon/types"
	"github.com/maastricht-university/harmon/types/interfaces"
)

// translationTemperature keeps translations close to literal.
const translationTemperature = 0.3

var placeholderSolutions = []string{"Suggested solution 1", "Suggested solution 2"}

type role struct {
	system string
	intro  string
}

var roles = map[types.CommandKind]role{
	types.CommandSummarize: {
		system: prompt.Assistant + " You provide concise, accurate summaries of conversations.",
		intro:  "Summarize the following conversation:",
	},
	types.CommandAdvice: {
		system: prompt.Assistant + " You provide thoughtful advice on how to improve communication and resolve conflicts.",
		intro:  "Based on this conversation, provide advice on how to improve communication:",
	},
	types.CommandAnalyze: {
		system: prompt.Assistant + " You analyze the sentiment and emotional tone of conversations to identify potential issues.",
		intro:  "Analyze the sentiment and emotional dynamics of this conversation:",
	},
	types.CommandGeneralQuestion: {
		system: prompt.Assistant + " You answer questions helpfully and accurately.",
	},
}

type Dispatcher struct {
	gen          interfaces.Generator
	store        interfaces.Store
	timeout      time.Duration
	historyTurns int
	now          func() time.Time
	log          logrus.FieldLogger
}

type Option func(*Dispatcher)


// WithTimeout caps each collaborator call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

func WithHistoryTurns(n int) Option { return func(x *Dispatcher) { x.historyTurns = n } }
func WithClock(now func() time.Time) Option { return func(x *Dispatcher) { x.now = now } }
func WithLogger(l logrus.FieldLogger) Option { return func(x *Dispatcher) { x.log = l } }

func New(gen interfaces.Generator, store interfaces.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gen:          gen,
		store:        store,
		timeout:      30 * time.Second,
		historyTurns: 20,
		now:          time.Now,
		log:          logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch executes cmd. The returned Response is always usable; the error,
// when set, is the typed cause already reflected in Response.Error.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID string, cmd types.Command, history []string) (types.Response, error) {
	log := d.log.WithFields(logrus.Fields{"conversation_id": conversationID, "command": cmd.Kind})

	var (
		resp types.Response
		err  error
	)
	switch cmd.Kind {
	case types.CommandTranslate:
		resp, err = d.translate(ctx, cmd)
	case types.CommandSummarize, types.CommandAdvice, types.CommandAnalyze, types.CommandGeneralQuestion:
		resp, err = d.respond(ctx, cmd, history)
	case types.CommandStart:
		resp = ack(cmd, "Session started")
	case types.CommandStop:
		resp = ack(cmd, "Session stopped")
	case types.CommandSave:
		resp, err = d.save(ctx, conversationID, cmd, history)
	default:
		err = &types.ValidationError{Field: "command_type", Reason: fmt.Sprintf("cannot dispatch %q", cmd.Kind)}
		resp = failure(cmd, err)
	}

	var ve *types.ValidationError
	switch {
	case errors.As(err, &ve):
		log.WithError(err).Info("command rejected")
	case err != nil:
		log.WithError(err).Warn("command failed")
	default:
		log.Debug("command dispatched")
	}
	return resp, err
}

func (d *Dispatcher) translate(ctx context.Context, cmd types.Command) (types.Response, error) {
	content := strings.TrimSpace(cmd.Param(types.ParamContent))
	target := strings.TrimSpace(cmd.Param(types.ParamTargetLanguage))
	if content == "" || target == "" {
		err := &types.ValidationError{Field: "parameters", Reason: "missing content or target language"}
		return failure(cmd, err), err
	}
	name, code := Language(target)

	resp := types.Response{
		CommandType:    cmd.Kind,
		OriginalText:   content,
		TargetLanguage: target,
		LanguageCode:   code,
	}
	system := fmt.Sprintf("You are a professional translator. Translate the following text to %s. Provide only the translation, no explanations.", name)
	text, err := d.generate(ctx, system, content, types.Temperature(translationTemperature))
	if err != nil {
		resp.Error = err.Error()
		return resp, err
	}
	resp.Success = true
	resp.TranslatedText = text
	return resp, nil
}

func (d *Dispatcher) respond(ctx context.Context, cmd types.Command, history []string) (types.Response, error) {
	r := roles[cmd.Kind]
	var user string
	if cmd.Kind == types.CommandGeneralQuestion {
		user = strings.TrimSpace(cmd.Param(types.ParamQuery))
		if user == "" {
			err := &types.ValidationError{Field: types.ParamQuery, Reason: "is empty"}
			return failure(cmd, err), err
		}
	} else {
		user = r.intro + "\n\n" + prompt.Conversation(prompt.Recent(history, d.historyTurns))
		if c := cmd.Param(types.ParamContext); c != "" && c != types.CurrentConversation {
			user += "\n\nFocus on: " + c
		}
	}

	text, err := d.generate(ctx, r.system, user, types.GenerateOptions{})
	if err != nil {
		return failure(cmd, err), err
	}
	return types.Response{
		Success:     true,
		CommandType: cmd.Kind,
		Parameters:  cmd.Parameters,
		Response:    text,
	}, nil
}

func (d *Dispatcher) save(ctx context.Context, conversationID string, cmd types.Command, history []string) (types.Response, error) {
	if d.store == nil {
		err := &types.ProviderError{Provider: "store", Op: "append note", Err: errors.New("no store configured")}
		return failure(cmd, err), err
	}
	note := types.Note{
		ID:        uuid.NewString(),
		Point:     lastPoint(history, cmd.SourceText),
		Solutions: append([]string(nil), placeholderSolutions...),
		Timestamp: d.now().UTC(),
	}

	ctx, cancel := d.bound(ctx)
	defer cancel()
	if err := d.store.AppendNote(ctx, conversationID, note); err != nil {
		err = types.NewProviderError("store", "append note", err)
		return failure(cmd, err), err
	}
	resp := ack(cmd, "Session saved")
	resp.Response = note.Point
	return resp, nil
}

// lastPoint is the most recent utterance before the save command itself.
func lastPoint(history []string, source string) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i] != source && strings.TrimSpace(history[i]) != "" {
			return history[i]
		}
	}
	return source
}

func (d *Dispatcher) generate(ctx context.Context, system, user string, opts types.GenerateOptions) (string, error) {
	if d.gen == nil {
		return "", &types.ProviderError{Provider: "llm", Op: "generate", Err: errors.New("no generator configured")}
	}
	ctx, cancel := d.bound(ctx)
	defer cancel()
	text, err := d.gen.Generate(ctx, system, user, opts)
	if err != nil {
		return "", types.NewProviderError("llm", "generate", err)
	}
	return strings.TrimSpace(text), nil
}

func (d *Dispatcher) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

func ack(cmd types.Command, msg string) types.Response {
	return types.Response{Success: true, CommandType: cmd.Kind, Parameters: cmd.Parameters, Message: msg}
}

func failure(cmd types.Command, err error) types.Response {
	return types.Response{CommandType: cmd.Kind, Parameters: cmd.Parameters, Error: err.Error()}
}
