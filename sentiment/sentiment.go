// Package sentiment maps utterance text to a polarity/subjectivity score.
package sentiment

import (
	_ "embed"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/harmon/types"
)

// Scorer is deterministic and side-effect free.
type Scorer interface {
	Score(text string) types.SentimentScore
}

//go:embed lexicon.yaml
var defaultLexicon []byte

// negation flips and dampens a scored word at most negationReach tokens
// after the negator, within the same clause.
const (
	negation      = -0.5
	negationReach = 3
)

type lexiconFile struct {
	Words        map[string][]float64 `yaml:"words"`
	Intensifiers map[string]float64   `yaml:"intensifiers"`
	Negators     []string             `yaml:"negators"`
}

type entry struct{ polarity, subjectivity float64 }

// Lexicon averages the scores of known words. Intensifiers and negators
// modify the next known word within the same clause.
type Lexicon struct {
	words        map[string]entry
	intensifiers map[string]float64
	negators     map[string]struct{}
}

func NewLexicon(data []byte) (*Lexicon, error) {
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("lexicon decode: %w", err)
	}
	l := &Lexicon{
		words:        make(map[string]entry, len(f.Words)),
		intensifiers: f.Intensifiers,
		negators:     make(map[string]struct{}, len(f.Negators)),
	}
	for w, v := range f.Words {
		if len(v) != 2 {
			return nil, fmt.Errorf("lexicon word %q: want [polarity, subjectivity], got %v", w, v)
		}
		l.words[strings.ToLower(w)] = entry{polarity: clamp(v[0], -1, 1), subjectivity: clamp(v[1], 0, 1)}
	}
	for _, n := range f.Negators {
		l.negators[strings.ToLower(n)] = struct{}{}
	}
	return l, nil
}

var defaultOnce = sync.OnceValues(func() (*Lexicon, error) { return NewLexicon(defaultLexicon) })

// Default returns the embedded lexicon scorer.
func Default() *Lexicon {
	l, err := defaultOnce()
	if err != nil {
		panic(err)
	}
	return l
}

func (l *Lexicon) Score(text string) types.SentimentScore {
	var sumP, sumS float64
	n := 0
	for _, clause := range splitClauses(text) {
		reach := 0
		mult := 1.0
		for _, tok := range tokenize(clause) {
			if tok == "but" {
				reach, mult = 0, 1.0
				continue
			}
			if l.isNegator(tok) {
				if reach > 0 {
					reach = 0
				} else {
					reach = negationReach
				}
				continue
			}
			if m, ok := l.intensifiers[tok]; ok {
				mult *= m
				continue
			}
			e, ok := l.words[tok]
			if !ok {
				if reach > 0 {
					reach--
				}
				continue
			}
			p := e.polarity * mult
			if reach > 0 {
				p *= negation
			}
			sumP += clamp(p, -1, 1)
			sumS += clamp(e.subjectivity*mult, 0, 1)
			n++
			reach, mult = 0, 1.0
		}
	}
	if n == 0 {
		return types.SentimentScore{Category: types.CategoryNeutral}
	}
	polarity := round(sumP / float64(n))
	return types.SentimentScore{
		Polarity:     polarity,
		Subjectivity: round(sumS / float64(n)),
		Category:     types.CategoryFor(polarity),
	}
}

func (l *Lexicon) isNegator(tok string) bool {
	if _, ok := l.negators[tok]; ok {
		return true
	}
	return strings.HasSuffix(tok, "n't")
}

func splitClauses(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', ';', ',', ':':
			return true
		}
		return false
	})
}

// tokenize keeps inner apostrophes ("don't") and drops quoting ones ("'good'").
func tokenize(s string) []string {
	s = strings.ReplaceAll(strings.ToLower(s), "’", "'")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	toks := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			toks = append(toks, f)
		}
	}
	return toks
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64) float64 { return math.Round(v*1e4) / 1e4 }
