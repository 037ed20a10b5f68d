// Package intervention renders the message surfaced when the emotion tracker
// asks for an intervention.
package intervention

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/harmon/prompt"
	"github.com/maastricht-university/harmon/types"
	"github.com/maastricht-university/harmon/types/interfaces"
)

//go:embed templates.yaml
var defaultTemplates []byte

// minHistory is the number of turns needed before a generated message is requested.
const minHistory = 2

type Templates struct {
	Fallback   string                              `yaml:"fallback"`
	Canned     map[types.InterventionType][]string `yaml:"templates"`
	Directives map[types.InterventionType]string   `yaml:"directives"`
}

func LoadTemplates(data []byte) (*Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("templates decode: %w", err)
	}
	if strings.TrimSpace(t.Fallback) == "" {
		return nil, fmt.Errorf("templates: fallback message is empty")
	}
	for kind, msgs := range t.Canned {
		if len(msgs) == 0 {
			return nil, fmt.Errorf("templates: no messages for %s", kind)
		}
	}
	return &t, nil
}

var defaultOnce = sync.OnceValues(func() (*Templates, error) { return LoadTemplates(defaultTemplates) })

func DefaultTemplates() *Templates {
	t, err := defaultOnce()
	if err != nil {
		panic(err)
	}
	return t
}

// Chooser returns a uniform index in [0, n).
type Chooser func(n int) int

func RandomChooser() Chooser { return rand.IntN }

// SeededChooser is deterministic for a given seed and safe for concurrent use.
func SeededChooser(seed uint64) Chooser {
	var mu sync.Mutex
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		return r.IntN(n)
	}
}

type Composer struct {
	gen          interfaces.Generator
	tpl          *Templates
	choose       Chooser
	timeout      time.Duration
	historyTurns int
	log          logrus.FieldLogger
}

type Option func(*Composer)

func WithChooser(c Chooser) Option { return func(cp *Composer) { cp.choose = c } }
func WithTemplates(t *Templates) Option { return func(cp *Composer) { cp.tpl = t } }

// WithTimeout caps each generation call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(cp *Composer) {
		if d > 0 {
			cp.timeout = d
		}
	}
}

func WithHistoryTurns(n int) Option { return func(cp *Composer) { cp.historyTurns = n } }
func WithLogger(l logrus.FieldLogger) Option { return func(cp *Composer) { cp.log = l } }

// NewComposer builds a composer. A nil generator always yields canned text.
func NewComposer(gen interfaces.Generator, opts ...Option) *Composer {
	c := &Composer{
		gen:          gen,
		tpl:          DefaultTemplates(),
		choose:       RandomChooser(),
		timeout:      30 * time.Second,
		historyTurns: 10,
		log:          logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compose never fails: generation errors fall back to a canned template.
func (c *Composer) Compose(ctx context.Context, kind types.InterventionType, history []string) string {
	if c.gen == nil || len(history) < minHistory {
		return c.Canned(kind)
	}
	directive, ok := c.tpl.Directives[kind]
	if !ok {
		directive = c.tpl.Directives[types.InterventionReflection]
	}
	user := directive + "\n\n" + prompt.Conversation(prompt.Recent(history, c.historyTurns))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	text, err := c.gen.Generate(ctx, prompt.Mediator, user, types.GenerateOptions{})
	if err != nil {
		c.log.WithError(err).WithField("intervention", kind).Warn("intervention generation failed, using template")
		return c.Canned(kind)
	}
	if text = strings.TrimSpace(text); text == "" {
		return c.Canned(kind)
	}
	return text
}

// Canned picks one of the fixed templates for kind, or the generic fallback.
func (c *Composer) Canned(kind types.InterventionType) string {
	msgs := c.tpl.Canned[kind]
	if len(msgs) == 0 {
		return c.tpl.Fallback
	}
	return msgs[c.choose(len(msgs))]
}
