package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scourlabs/scour/pkg/models"
	"github.com/scourlabs/scour/pkg/prompt"
)

// chatCompletionsHandler handles POST /v1/chat/completions. A request
// carrying a session_id resumes that session; otherwise a new session is
// created from the last user message. The run streams as SSE when stream is
// true and blocks until the final report otherwise.
func (s *Server) chatCompletionsHandler(c *gin.Context) {
	var req models.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if req.SessionID != "" {
		if s.registry.Active(req.SessionID) {
			c.JSON(http.StatusConflict, gin.H{"error": "session already has an active run"})
			return
		}
		session, err := s.store.Resume(c.Request.Context(), req.SessionID)
		if err != nil {
			status, msg := mapStoreError(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		s.executeRun(c, session, req.Stream)
		return
	}

	query := lastUserMessage(req.Messages)
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user query is missing or empty"})
		return
	}

	settings, err := s.requestSettings(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session := models.NewSession(query, systemInstruction(req), req.UserID, settings)
	s.executeRun(c, session, req.Stream)
}

// executeRun registers the run for cancellation, executes it, and renders the
// outcome either as an SSE stream or as a single chat completion body. The
// run context is derived from the request context, so a client disconnect
// interrupts the run.
func (s *Server) executeRun(c *gin.Context, session *models.Session, stream bool) {
	runCtx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if !s.registry.Register(session.SessionID, cancel) {
		c.JSON(http.StatusConflict, gin.H{"error": "session already has an active run"})
		return
	}
	defer s.registry.Unregister(session.SessionID)

	chunks := s.runner.Run(runCtx, session)

	if stream {
		s.streamRun(c, chunks)
		return
	}

	// Blocking mode: drain the stream, then answer from the terminal state.
	// The runner closes the channel only after the session reached its final
	// state, so reading the session here is safe.
	for range chunks {
	}
	if session.Status == models.StatusError {
		msg := "research run failed"
		if session.ErrorMessage != nil {
			msg = *session.ErrorMessage
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "session_id": session.SessionID})
		return
	}
	var report string
	if session.FinalReport != nil {
		report = *session.FinalReport
	}
	c.JSON(http.StatusOK, models.ChatCompletion{
		ID:        "chatcmpl-" + uuid.NewString(),
		Object:    "chat.completion",
		Created:   time.Now().Unix(),
		Model:     models.ResearchModelID,
		SessionID: session.SessionID,
		Choices: []models.CompletionChoice{
			{
				Index:        0,
				Message:      models.ChatMessage{Role: models.RoleAssistant, Content: report},
				FinishReason: "stop",
			},
		},
	})
}

// requestSettings builds the session settings snapshot: server defaults
// overlaid with whatever knobs the request carries.
func (s *Server) requestSettings(req models.ChatCompletionRequest) (models.Settings, error) {
	settings := models.Settings{
		MaxIterations:   models.DefaultMaxIterations,
		MaxSearchItems:  models.DefaultMaxSearchItems,
		DefaultModel:    s.cfg.LocalAI.DefaultModel,
		ReasonModel:     s.cfg.LocalAI.ReasonModel,
		UseHostedParser: s.cfg.Settings.UseHostedParser,
		UseLocalLLM:     s.cfg.Settings.LocalLLMEnabled(),
		WithPlanning:    s.cfg.Settings.PlanningEnabled(),
	}
	if req.MaxIterations > 0 {
		settings.MaxIterations = req.MaxIterations
	}
	if req.MaxSearchItems > 0 {
		settings.MaxSearchItems = req.MaxSearchItems
	}
	if req.DefaultModel != "" {
		settings.DefaultModel = req.DefaultModel
	}
	if req.ReasonModel != "" {
		settings.ReasonModel = req.ReasonModel
	}
	if err := settings.Validate(); err != nil {
		return models.Settings{}, err
	}
	return settings, nil
}

// lastUserMessage returns the trimmed content of the most recent user-role
// message, or "" when there is none.
func lastUserMessage(messages []models.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

// systemInstruction extracts the extra instruction passed to the report
// writer. A system-role message wins over the dedicated request field.
func systemInstruction(req models.ChatCompletionRequest) string {
	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			return prompt.Clean(m.Content)
		}
	}
	return prompt.Clean(req.SystemInstruction)
}

// listModelsHandler handles GET /models and GET /v1/models.
func (s *Server) listModelsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, models.ModelList{
		Object: "list",
		Data: []models.ModelInfo{
			{
				ID:      models.ResearchModelID,
				Object:  "model",
				Created: time.Now().Unix(),
				OwnedBy: models.ResearchModelID,
			},
		},
	})
}
