// Package command recognizes the wake-token command grammar in an utterance.
package command

import (
	"regexp"
	"strings"

	"github.com/maastricht-university/harmon/types"
)

// params is the typed record a pattern extracts before it is flattened onto Command.Parameters.
type params interface {
	values() map[string]string
}

type contextParams struct{ Context string }

func (p contextParams) values() map[string]string {
	if p.Context == "" {
		p.Context = types.CurrentConversation
	}
	return map[string]string{types.ParamContext: p.Context}
}

type translateParams struct{ Content, TargetLanguage string }

func (p translateParams) values() map[string]string {
	return map[string]string{
		types.ParamContent:        p.Content,
		types.ParamTargetLanguage: p.TargetLanguage,
	}
}

type queryParams struct{ Query string }

func (p queryParams) values() map[string]string {
	return map[string]string{types.ParamQuery: p.Query}
}

type noParams struct{}

func (noParams) values() map[string]string { return map[string]string{} }

type pattern struct {
	kind    types.CommandKind
	re      *regexp.Regexp
	extract func(groups []string) params
}

func trailingContext(groups []string) params {
	return contextParams{Context: strings.TrimSpace(groups[1])}
}

func none(_ []string) params { return noParams{} }

// patterns are tried in order; the first match wins.
var patterns = []pattern{
	{
		kind:    types.CommandSummarize,
		re:      regexp.MustCompile(`(?i)\b(?:summarize|summary|recap)\b(.*)`),
		extract: trailingContext,
	},
	{
		kind: types.CommandTranslate,
		re:   regexp.MustCompile(`(?i)\b(?:translate|say\s+in)\b(.*?)\b(?:to|into)\s+([\p{L}\p{N}_]+)(.*)`),
		extract: func(g []string) params {
			return translateParams{
				Content:        strings.TrimSpace(g[1]),
				TargetLanguage: strings.ToLower(strings.TrimSpace(g[2])),
			}
		},
	},
	{
		kind:    types.CommandAdvice,
		re:      regexp.MustCompile(`(?i)(?:\b(?:give|provide|offer)\s+)?\b(?:advice|suggestions?|help|guidance)\b(.*)`),
		extract: trailingContext,
	},
	{
		kind:    types.CommandAnalyze,
		re:      regexp.MustCompile(`(?i)\b(?:analyze|check|evaluate)\s+(?:the\s+)?(?:sentiment|tone|mood|emotion)\b(.*)`),
		extract: trailingContext,
	},
	{
		kind:    types.CommandStart,
		re:      regexp.MustCompile(`(?i)\b(?:start|begin|record)\s+(?:the\s+)?(?:session|recording|transcript)\b(.*)`),
		extract: none,
	},
	{
		kind:    types.CommandStop,
		re:      regexp.MustCompile(`(?i)\b(?:stop|end|finish|pause)\s+(?:the\s+)?(?:session|recording|transcript)\b(.*)`),
		extract: none,
	},
	{
		kind:    types.CommandSave,
		re:      regexp.MustCompile(`(?i)\b(?:save|store)\s+(?:this|current|session|recording|transcript)\b(.*)`),
		extract: none,
	},
}

// Match classifies text against the grammar. Patterns run on the text with
// the first occurrence of the wake token removed, so they also match when the
// token is absent. Only text with neither a pattern nor the token is
// CommandNone.
func Match(text, wakeToken string) types.Command {
	cmd := types.Command{Kind: types.CommandNone, Parameters: map[string]string{}, SourceText: text}
	rest, woken := stripWakeToken(text, wakeToken)
	for _, p := range patterns {
		if groups := p.re.FindStringSubmatch(rest); groups != nil {
			cmd.Kind = p.kind
			cmd.Parameters = p.extract(groups).values()
			return cmd
		}
	}
	if woken {
		cmd.Kind = types.CommandGeneralQuestion
		cmd.Parameters = queryParams{Query: rest}.values()
	}
	return cmd
}

func wakePattern(token string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(token) + `\s*`)
}

// stripWakeToken removes the first case-insensitive occurrence of token and
// the run of whitespace after it. Text without the token comes back trimmed.
func stripWakeToken(text, token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return strings.TrimSpace(text), false
	}
	loc := wakePattern(token).FindStringIndex(text)
	if loc == nil {
		return strings.TrimSpace(text), false
	}
	return strings.TrimSpace(text[:loc[0]] + text[loc[1]:]), true
}

// Matcher matches against a primary wake token and its aliases.
type Matcher struct {
	tokens []string
}

func NewMatcher(token string, aliases ...string) *Matcher {
	tokens := []string{token}
	for _, a := range aliases {
		if a = strings.TrimSpace(a); a != "" {
			tokens = append(tokens, a)
		}
	}
	return &Matcher{tokens: tokens}
}

// Addressed reports whether text contains the wake token or an alias.
func (m *Matcher) Addressed(text string) bool {
	for _, tok := range m.tokens {
		if _, ok := stripWakeToken(text, tok); ok {
			return true
		}
	}
	return false
}

// Match uses the first token present in text, falling back to a plain
// pattern match.
func (m *Matcher) Match(text string) types.Command {
	for _, tok := range m.tokens {
		if _, ok := stripWakeToken(text, tok); ok {
			return Match(text, tok)
		}
	}
	return Match(text, "")
}
