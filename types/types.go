package types

import "time"

type Utterance struct {
	Text           string    `json:"text"`
	ConversationID string    `json:"conversation_id"`
	SequenceIndex  uint64    `json:"sequence_index"`
	Timestamp      time.Time `json:"timestamp"`
}

type Category string

const (
	CategoryPositive Category = "positive"
	CategoryNeutral  Category = "neutral"
	CategoryNegative Category = "negative"
)

type SentimentScore struct {
	Polarity     float64  `json:"polarity"`     // [-1, 1]
	Subjectivity float64  `json:"subjectivity"` // [0, 1]
	Category     Category `json:"sentiment"`
}

// CategoryFor applies the fixed polarity boundaries.
func CategoryFor(polarity float64) Category {
	switch {
	case polarity > 0.3:
		return CategoryPositive
	case polarity < -0.3:
		return CategoryNegative
	default:
		return CategoryNeutral
	}
}

type Emotion string

const (
	EmotionAngry      Emotion = "angry"
	EmotionFrustrated Emotion = "frustrated"
	EmotionNegative   Emotion = "negative"
	EmotionExcited    Emotion = "excited"
	EmotionPositive   Emotion = "positive"
	EmotionNeutral    Emotion = "neutral"
)

type InterventionType string

const (
	InterventionDeEscalation  InterventionType = "de-escalation"
	InterventionClarification InterventionType = "clarification"
	InterventionReflection    InterventionType = "reflection"
	InterventionNone          InterventionType = "none"
)

type EmotionAssessment struct {
	Emotion           Emotion          `json:"emotion"`
	Polarity          float64          `json:"polarity"`
	Intensity         float64          `json:"intensity"`
	AvgPolarity       float64          `json:"avg_polarity"`
	AvgIntensity      float64          `json:"avg_intensity"`
	TrendSlope        float64          `json:"trend_slope"`
	NeedsIntervention bool             `json:"needs_intervention"`
	InterventionType  InterventionType `json:"intervention_type"`
}

type CommandKind string

const (
	CommandSummarize       CommandKind = "summarize"
	CommandTranslate       CommandKind = "translate"
	CommandAdvice          CommandKind = "advice"
	CommandAnalyze         CommandKind = "analyze"
	CommandStart           CommandKind = "start"
	CommandStop            CommandKind = "stop"
	CommandSave            CommandKind = "save"
	CommandGeneralQuestion CommandKind = "general_question"
	CommandNone            CommandKind = "none"
)

// Parameter keys produced by the command matcher.
const (
	ParamContext        = "context"
	ParamContent        = "content"
	ParamTargetLanguage = "target_language"
	ParamQuery          = "query"
)

// CurrentConversation stands in for an empty trailing context.
const CurrentConversation = "current_conversation"

type Command struct {
	Kind       CommandKind       `json:"command_type"`
	Parameters map[string]string `json:"parameters"`
	SourceText string            `json:"original_text"`
}

func (c Command) Param(key string) string {
	if c.Parameters == nil {
		return ""
	}
	return c.Parameters[key]
}

// Response is the uniform envelope returned for a dispatched command.
type Response struct {
	Success        bool              `json:"success"`
	CommandType    CommandKind       `json:"command_type,omitempty"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	Response       string            `json:"response,omitempty"`
	Message        string            `json:"message,omitempty"`
	OriginalText   string            `json:"original_text,omitempty"`
	TranslatedText string            `json:"translated_text,omitempty"`
	TargetLanguage string            `json:"target_language,omitempty"`
	LanguageCode   string            `json:"language_code,omitempty"`
	Error          string            `json:"error,omitempty"`
}

type PipelineEvent struct {
	Utterance        Utterance         `json:"utterance"`
	Sentiment        SentimentScore    `json:"sentiment"`
	Assessment       EmotionAssessment `json:"emotion_analysis"`
	InterventionText string            `json:"intervention_text,omitempty"`
	Command          *Command          `json:"command,omitempty"`
	CommandResponse  *Response         `json:"command_response,omitempty"`
}

type Note struct {
	ID        string    `json:"id"`
	Point     string    `json:"point"`
	Solutions []string  `json:"solutions"`
	Timestamp time.Time `json:"timestamp"`
}

// Discussion is a stored conversation. Writing a note or segment for an
// unknown conversation registers it with an empty title.
type Discussion struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Created time.Time `json:"created"`
}

type Segment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerateOptions tunes a single LLM call. Nil Temperature keeps the provider default.
type GenerateOptions struct {
	Temperature *float64
}

func Temperature(t float64) GenerateOptions { return GenerateOptions{Temperature: &t} }
