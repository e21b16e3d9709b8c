package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scourlabs/scour/pkg/models"
	"github.com/scourlabs/scour/pkg/research"
)

// streamRun relays run chunks to the client as OpenAI-style SSE frames. The
// first frame carries the raw session id so clients can store it for resume;
// every other chunk is wrapped in a chat.completion.chunk envelope. The
// stream always ends with [DONE], whatever the run's outcome.
func (s *Server) streamRun(c *gin.Context, chunks <-chan research.Chunk) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	completionID := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	for chunk := range chunks {
		if chunk.Kind == research.ChunkSessionID {
			fmt.Fprintf(c.Writer, "data: SESSION_ID:%s\n\n", chunk.Text)
			c.Writer.Flush()
			continue
		}
		frame, err := json.Marshal(contentChunk(completionID, created, chunk.Text))
		if err != nil {
			s.logger.Error("Failed to encode stream chunk", "error", err)
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", frame)
		c.Writer.Flush()
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// contentChunk wraps a text fragment in the chat.completion.chunk envelope.
func contentChunk(id string, created int64, text string) models.ChatCompletionChunk {
	return models.ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   models.ResearchModelID,
		Choices: []models.ChunkChoice{
			{Index: 0, Delta: models.ChunkDelta{Content: text}},
		},
	}
}
