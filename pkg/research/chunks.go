package research

import "fmt"

// ChunkKind labels one fragment of a research run's output stream.
type ChunkKind string

const (
	// ChunkSessionID announces the session id; always the first chunk of a
	// run that got far enough to persist its session.
	ChunkSessionID ChunkKind = "session_id"
	// ChunkStatus is a progress line. Most are wrapped in <think> markers so
	// consoles can render them as transient progress rather than content.
	ChunkStatus ChunkKind = "status"
	// ChunkPlan carries plan text from the planning, judging, or
	// writing-plan calls.
	ChunkPlan ChunkKind = "plan"
	// ChunkQuery announces generated search queries and per-query search
	// outcomes.
	ChunkQuery ChunkKind = "query"
	// ChunkContext carries one extracted page context in url/context form.
	ChunkContext ChunkKind = "context"
	// ChunkReport carries a fragment of the final report.
	ChunkReport ChunkKind = "report"
	// ChunkError carries the failure description of a run that ended in
	// error. It replaces the terminal marker.
	ChunkError ChunkKind = "error"
	// ChunkTerminal marks the successful end of a run; emitted exactly once.
	ChunkTerminal ChunkKind = "terminal"
)

// Chunk is one element of the lazy output sequence produced by a run. The
// sequence ends when the run's channel closes; a successful run ends with a
// ChunkTerminal, a failed one with a ChunkError.
type Chunk struct {
	Kind ChunkKind
	Text string
}

// thinkStatus formats a progress line wrapped in <think> markers.
func thinkStatus(format string, args ...any) Chunk {
	return Chunk{Kind: ChunkStatus, Text: "<think>" + fmt.Sprintf(format, args...) + "</think>"}
}
