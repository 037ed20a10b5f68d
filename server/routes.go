package server

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/maastricht-university/harmon/command"
	"github.com/maastricht-university/harmon/emotion"
	"github.com/maastricht-university/harmon/types"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

type textReq struct {
	Text      string `json:"text"`
	WakeToken string `json:"wake_token"`
}

type generateReq struct {
	CommandType         types.CommandKind `json:"command_type"`
	Parameters          map[string]string `json:"parameters"`
	ConversationHistory []string          `json:"conversation_history"`
	ConversationID      string            `json:"conversation_id"`
}

type translateReq struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

type emotionReq struct {
	ConversationID string `json:"conversation_id"`
	SentimentData  struct {
		Polarity     *float64 `json:"polarity"`
		Subjectivity *float64 `json:"subjectivity"`
		Magnitude    *float64 `json:"magnitude"`
	} `json:"sentiment_data"`
}

type emotionResp struct {
	types.EmotionAssessment
	InterventionText string `json:"intervention_text,omitempty"`
}

type discussionReq struct {
	Title string `json:"title"`
}

type utteranceReq struct {
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"text"`
	SequenceIndex  uint64    `json:"sequence_index"`
	Timestamp      time.Time `json:"timestamp"`
}

func abort(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": err.Error()})
}

// statusFor maps the error taxonomy onto HTTP codes.
func statusFor(err error) int {
	var (
		ve *types.ValidationError
		pe *types.ProviderError
		se *types.StateError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnknownConversation):
		return http.StatusNotFound
	case errors.As(err, &se):
		return http.StatusConflict
	case errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abort(c, http.StatusBadRequest, &types.ValidationError{Field: "body", Reason: err.Error()})
		return false
	}
	return true
}

func requireText(c *gin.Context, field, v string) bool {
	if strings.TrimSpace(v) == "" {
		abort(c, http.StatusBadRequest, &types.ValidationError{Field: field, Reason: "is required"})
		return false
	}
	return true
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"services":  s.opts.Services,
	})
}

func (s *Server) analyzeSentiment(c *gin.Context) {
	var req textReq
	if !bindJSON(c, &req) || !requireText(c, "text", req.Text) {
		return
	}
	c.JSON(http.StatusOK, s.p.Scorer().Score(req.Text))
}

func (s *Server) processCommand(c *gin.Context) {
	var req textReq
	if !bindJSON(c, &req) || !requireText(c, "text", req.Text) {
		return
	}
	if req.WakeToken != "" {
		c.JSON(http.StatusOK, command.Match(req.Text, req.WakeToken))
		return
	}
	c.JSON(http.StatusOK, s.p.Matcher().Match(req.Text))
}

func (s *Server) respond(c *gin.Context, resp types.Response, err error) {
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) generateResponse(c *gin.Context) {
	var req generateReq
	if !bindJSON(c, &req) || !requireText(c, "command_type", string(req.CommandType)) {
		return
	}
	cmd := types.Command{Kind: req.CommandType, Parameters: req.Parameters}
	resp, err := s.p.Dispatch(c.Request.Context(), req.ConversationID, cmd, req.ConversationHistory)
	s.respond(c, resp, err)
}

func (s *Server) translate(c *gin.Context) {
	var req translateReq
	if !bindJSON(c, &req) {
		return
	}
	cmd := types.Command{
		Kind: types.CommandTranslate,
		Parameters: map[string]string{
			types.ParamContent:        req.Text,
			types.ParamTargetLanguage: strings.ToLower(req.TargetLanguage),
		},
		SourceText: req.Text,
	}
	resp, err := s.p.Dispatch(c.Request.Context(), "", cmd, nil)
	s.respond(c, resp, err)
}

func (s *Server) analyzeEmotion(c *gin.Context) {
	var req emotionReq
	if !bindJSON(c, &req) {
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = "default"
	}
	if !validID.MatchString(req.ConversationID) {
		abort(c, http.StatusBadRequest, &types.ValidationError{Field: "conversation_id", Reason: "invalid"})
		return
	}
	var polarity float64
	if req.SentimentData.Polarity != nil {
		polarity = *req.SentimentData.Polarity
	}
	intensity := emotion.Intensity(req.SentimentData.Subjectivity, req.SentimentData.Magnitude)

	a, err := s.p.Assess(c.Request.Context(), req.ConversationID, polarity, intensity)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	out := emotionResp{EmotionAssessment: a}
	if a.NeedsIntervention {
		out.InterventionText = s.p.Composer().Canned(a.InterventionType)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) processUtterance(c *gin.Context) {
	var req utteranceReq
	if !bindJSON(c, &req) || !requireText(c, "text", req.Text) {
		return
	}
	if !validID.MatchString(req.ConversationID) {
		abort(c, http.StatusBadRequest, &types.ValidationError{Field: "conversation_id", Reason: "invalid"})
		return
	}
	ev, err := s.p.Process(c.Request.Context(), types.Utterance{
		Text:           req.Text,
		ConversationID: req.ConversationID,
		SequenceIndex:  req.SequenceIndex,
		Timestamp:      req.Timestamp,
	})
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (s *Server) openConversation(c *gin.Context) {
	id := uuid.NewString()
	if err := s.p.Open(id); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation_id": id})
}

func (s *Server) closeConversation(c *gin.Context) {
	if err := s.p.Close(c.Param("id")); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.p.Store() == nil {
		abort(c, http.StatusServiceUnavailable, errors.New("no store configured"))
		return false
	}
	return true
}

func (s *Server) discussionID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !validID.MatchString(id) {
		abort(c, http.StatusBadRequest, &types.ValidationError{Field: "id", Reason: "must be alphanumeric, '-' or '_'"})
		return "", false
	}
	return id, s.requireStore(c)
}

func (s *Server) listDiscussions(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	discs, err := s.p.Store().Discussions(c.Request.Context())
	if err != nil {
		abort(c, http.StatusBadGateway, types.NewProviderError("store", "discussions", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"discussions": discs})
}

func (s *Server) createDiscussion(c *gin.Context) {
	var req discussionReq
	if !bindJSON(c, &req) || !s.requireStore(c) {
		return
	}
	now := time.Now().UTC()
	d := types.Discussion{ID: uuid.NewString(), Title: strings.TrimSpace(req.Title), Created: now}
	if d.Title == "" {
		d.Title = "Discussion " + now.Format(time.RFC3339)
	}
	if err := s.p.Store().CreateDiscussion(c.Request.Context(), d); err != nil {
		abort(c, http.StatusBadGateway, types.NewProviderError("store", "create discussion", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "discussion_id": d.ID, "discussion": d})
}

func (s *Server) transcript(c *gin.Context) {
	id, ok := s.discussionID(c)
	if !ok {
		return
	}
	limit := s.opts.RecentLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			abort(c, http.StatusBadRequest, &types.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		limit = n
	}
	segs, err := s.p.Store().RecentSegments(c.Request.Context(), id, limit)
	if err != nil {
		abort(c, http.StatusBadGateway, types.NewProviderError("store", "recent segments", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"discussion_id": id, "segments": segs})
}

func (s *Server) notes(c *gin.Context) {
	id, ok := s.discussionID(c)
	if !ok {
		return
	}
	notes, err := s.p.Store().Notes(c.Request.Context(), id)
	if err != nil {
		abort(c, http.StatusBadGateway, types.NewProviderError("store", "notes", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"discussion_id": id, "notes": notes})
}
