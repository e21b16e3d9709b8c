package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scourlabs/scour/pkg/models"
)

// SessionList is the envelope of GET /sessions. StartTime is the start of the
// oldest listed session, empty when there are none.
type SessionList struct {
	Sessions  []models.SessionSummary `json:"sessions"`
	StartTime string                  `json:"start_time"`
}

// listSessionsHandler handles GET /sessions, optionally filtered by user_id.
func (s *Server) listSessionsHandler(c *gin.Context) {
	summaries, err := s.store.List(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		status, msg := mapStoreError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	var oldest string
	for _, summary := range summaries {
		if oldest == "" || summary.StartTime.Format(time.RFC3339) < oldest {
			oldest = summary.StartTime.Format(time.RFC3339)
		}
	}
	if summaries == nil {
		summaries = []models.SessionSummary{}
	}
	c.JSON(http.StatusOK, SessionList{Sessions: summaries, StartTime: oldest})
}

// getSessionHandler handles GET /sessions/:id.
func (s *Server) getSessionHandler(c *gin.Context) {
	session, err := s.store.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, msg := mapStoreError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, session)
}

// deleteSessionHandler handles DELETE /sessions/:id. An active run on the
// session is cancelled before the record is removed.
func (s *Server) deleteSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")
	if s.registry.Cancel(sessionID) {
		s.logger.Info("Cancelled active run before delete", "session_id", sessionID)
	}

	deleted, err := s.store.Delete(c.Request.Context(), sessionID)
	if err != nil {
		status, msg := mapStoreError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// resumeSessionHandler handles POST /sessions/:id/resume: it continues the
// session from its last completed iteration as a streaming run.
func (s *Server) resumeSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")
	if s.registry.Active(sessionID) {
		c.JSON(http.StatusConflict, gin.H{"error": "session already has an active run"})
		return
	}

	session, err := s.store.Resume(c.Request.Context(), sessionID)
	if err != nil {
		status, msg := mapStoreError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	s.executeRun(c, session, true)
}

// sessionHistoryHandler handles GET /sessions/:id/history.
func (s *Server) sessionHistoryHandler(c *gin.Context) {
	records, err := s.store.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, msg := mapStoreError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	if records == nil {
		records = []models.IterationRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

// rollbackSessionHandler handles POST /sessions/:id/rollback/:n. It truncates
// the session to iteration n and returns the resulting session.
func (s *Server) rollbackSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "iteration must be an integer"})
		return
	}
	if s.registry.Active(sessionID) {
		c.JSON(http.StatusConflict, gin.H{"error": "session already has an active run"})
		return
	}

	session, err := s.store.Rollback(c.Request.Context(), sessionID, n)
	if err != nil {
		status, msg := mapStoreError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, session)
}
