// Package emotion tracks the sentiment trend of one conversation and decides
// when an intervention should be surfaced.
package emotion

import (
	"github.com/maastricht-university/harmon/types"
)

// DefaultIntensity is used when a reading carries no intensity.
const DefaultIntensity = 0.5

type Config struct {
	WindowSize          int     `yaml:"window_size"`
	Cooldown            int     `yaml:"cooldown"`
	NegativeThreshold   float64 `yaml:"negative_threshold"`
	IntensityThreshold  float64 `yaml:"intensity_threshold"`
	EscalationThreshold float64 `yaml:"escalation_threshold"`
	RecoveryThreshold   float64 `yaml:"recovery_threshold"`
}

func DefaultConfig() Config {
	return Config{
		WindowSize:          5,
		Cooldown:            5,
		NegativeThreshold:   -0.4,
		IntensityThreshold:  0.7,
		EscalationThreshold: -0.15,
		RecoveryThreshold:   0.1,
	}
}

// normalized gives an empty window the default size and clamps a negative
// cooldown to none. Thresholds are used as given, zero included.
func (c Config) normalized() Config {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultConfig().WindowSize
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	return c
}

// Tracker owns the emotion window of a single conversation. It is not safe
// for concurrent use; the owning conversation serializes calls.
type Tracker struct {
	cfg              Config
	polarity         *window
	intensity        *window
	active           bool
	lastIntervention int64
}

func NewTracker(cfg Config) *Tracker {
	cfg = cfg.normalized()
	return &Tracker{
		cfg:       cfg,
		polarity:  newWindow(cfg.WindowSize),
		intensity: newWindow(cfg.WindowSize),
		// the first utterance is never inside a cooldown
		lastIntervention: -int64(cfg.Cooldown),
	}
}

// Assess folds score into the window and evaluates it at sequence.
func (t *Tracker) Assess(score types.SentimentScore, sequence int64) types.EmotionAssessment {
	return t.AssessReading(score.Polarity, score.Subjectivity, sequence)
}

// AssessReading is Assess for a raw polarity/intensity pair.
func (t *Tracker) AssessReading(polarity, intensity float64, sequence int64) types.EmotionAssessment {
	t.polarity.push(polarity)
	t.intensity.push(intensity)

	avgPolarity := t.polarity.mean()
	avgIntensity := t.intensity.mean()
	slope := 0.0
	if t.polarity.len() >= 3 {
		slope = t.polarity.slope()
	}

	emotion := Categorize(polarity, intensity)
	needs := t.needsIntervention(polarity, intensity, avgPolarity, slope, sequence)

	a := types.EmotionAssessment{
		Emotion:           emotion,
		Polarity:          polarity,
		Intensity:         intensity,
		AvgPolarity:       avgPolarity,
		AvgIntensity:      avgIntensity,
		TrendSlope:        slope,
		NeedsIntervention: needs,
		InterventionType:  interventionFor(emotion, needs),
	}
	if needs {
		t.active = true
		if sequence > t.lastIntervention {
			t.lastIntervention = sequence
		}
	}
	return a
}

func (t *Tracker) needsIntervention(polarity, intensity, avgPolarity, slope float64, sequence int64) bool {
	if sequence-t.lastIntervention < int64(t.cfg.Cooldown) {
		return false
	}
	if polarity < t.cfg.NegativeThreshold && intensity > t.cfg.IntensityThreshold {
		return true
	}
	if avgPolarity < t.cfg.NegativeThreshold && slope < t.cfg.EscalationThreshold {
		return true
	}
	if t.active && avgPolarity > t.cfg.RecoveryThreshold {
		t.active = false
	}
	return false
}

// Categorize applies the fixed decision order over polarity and intensity.
func Categorize(polarity, intensity float64) types.Emotion {
	switch {
	case polarity < -0.5 && intensity > 0.6:
		return types.EmotionAngry
	case polarity < -0.3 && intensity > 0.5:
		return types.EmotionFrustrated
	case polarity < -0.2:
		return types.EmotionNegative
	case polarity > 0.5 && intensity > 0.6:
		return types.EmotionExcited
	case polarity > 0.3:
		return types.EmotionPositive
	default:
		return types.EmotionNeutral
	}
}

func interventionFor(e types.Emotion, needs bool) types.InterventionType {
	if !needs {
		return types.InterventionNone
	}
	switch e {
	case types.EmotionAngry:
		return types.InterventionDeEscalation
	case types.EmotionFrustrated:
		return types.InterventionClarification
	default:
		return types.InterventionReflection
	}
}

// Active reports whether an intervention is in effect and not yet recovered from.
func (t *Tracker) Active() bool { return t.active }

func (t *Tracker) LastIntervention() int64 { return t.lastIntervention }

// Len is the number of readings currently held.
func (t *Tracker) Len() int { return t.polarity.len() }

func (t *Tracker) WindowSize() int { return t.cfg.WindowSize }

// Intensity picks subjectivity, then magnitude, then DefaultIntensity.
func Intensity(subjectivity, magnitude *float64) float64 {
	switch {
	case subjectivity != nil:
		return *subjectivity
	case magnitude != nil:
		return *magnitude
	default:
		return DefaultIntensity
	}
}
