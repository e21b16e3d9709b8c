package prompt

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/scourlabs/scour/pkg/models"
)

// PromptBuilder renders the template library into message lists for the LLM
// capability. Stateless and thread-safe; all state comes from parameters.
type PromptBuilder struct{}

// NewPromptBuilder creates a PromptBuilder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildInitialPlanMessages builds the conversation that asks the reasoning
// model for the opening research plan.
func (b *PromptBuilder) BuildInitialPlanMessages(query string) []models.Message {
	user := "User Query: " + query + "\n\n" + initialPlanInstruction
	return pair(planGuideSystem, user)
}

// BuildPlanJudgeMessages builds the conversation that judges the gathered
// contexts against the current plan and produces the next iteration's plan.
func (b *PromptBuilder) BuildPlanJudgeMessages(query string, contexts []models.ContextSummary, currentPlan string) []models.Message {
	var sb strings.Builder
	sb.WriteString("User Query: ")
	sb.WriteString(query)
	sb.WriteString("\nCurrent Research Plan: ")
	sb.WriteString(currentPlan)
	sb.WriteString("\nAggregated Contexts from previous searches:\n")
	sb.WriteString(FormatContexts(contexts))
	sb.WriteString("\n\n")
	sb.WriteString(judgePlanInstruction)
	return pair(planGuideSystem, sb.String())
}

// BuildSearchQueriesMessages builds the conversation that turns a research
// plan into search queries. With no previously executed queries it asks for
// the opening batch; otherwise it lists the queries already performed and
// allows the terminal sentinel answer.
func (b *PromptBuilder) BuildSearchQueriesMessages(plan string, usedQueries []string) []models.Message {
	var sb strings.Builder
	sb.WriteString("Research Plan: ")
	sb.WriteString(plan)
	sb.WriteString("\n\n")
	if len(usedQueries) == 0 {
		sb.WriteString(firstQueriesInstruction)
	} else {
		sb.WriteString("Previous Search Queries:\n")
		sb.WriteString(FormatQueryList(usedQueries))
		sb.WriteString("\n\n")
		sb.WriteString(nextQueriesInstruction)
	}
	return pair(plannerSystem, sb.String())
}

// BuildPageUsefulMessages builds the yes/no relevance check for one page.
func (b *PromptBuilder) BuildPageUsefulMessages(query, pageText string) []models.Message {
	user := "User Query: " + query + "\n\nWebpage Content:\n" + pageText + "\n\n" + pageUsefulInstruction
	return pair(usefulnessSystem, user)
}

// BuildExtractContextMessages builds the per-page context extraction call.
// searchQuery is the query that surfaced the page.
func (b *PromptBuilder) BuildExtractContextMessages(query, searchQuery, pageText string) []models.Message {
	var sb strings.Builder
	sb.WriteString("User Query: ")
	sb.WriteString(query)
	sb.WriteString("\nSearch Query: ")
	sb.WriteString(searchQuery)
	sb.WriteString("\n\nWebpage Content:\n")
	sb.WriteString(pageText)
	sb.WriteString("\n\n")
	sb.WriteString(extractContextInstruction)
	return pair(extractionSystem, sb.String())
}

// BuildWritingPlanMessages builds the conversation that outlines the final
// report from the aggregated contexts.
func (b *PromptBuilder) BuildWritingPlanMessages(query string, contexts []models.ContextSummary) []models.Message {
	var sb strings.Builder
	sb.WriteString("User Query: ")
	sb.WriteString(query)
	sb.WriteString("\nAggregated Contexts: ")
	sb.WriteString(FormatContexts(contexts))
	sb.WriteString("\n\n")
	sb.WriteString(writingPlanInstruction)
	return pair(writingGuideSystem, sb.String())
}

// BuildFinalReportMessages builds the report-generation conversation.
// systemInstruction is the session's own system message and may be empty;
// writingPlan may be empty when the planning call failed or was disabled.
func (b *PromptBuilder) BuildFinalReportMessages(query, systemInstruction, writingPlan string, contexts []models.ContextSummary) []models.Message {
	system := reportWriterSystem
	if systemInstruction != "" {
		system += " There is also some extra system instructions: " + systemInstruction
	}

	var sb strings.Builder
	sb.WriteString("User Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nGathered Relevant Contexts:\n")
	sb.WriteString(FormatContexts(contexts))
	if writingPlan != "" {
		sb.WriteString("\n\nWriting plan from a planning agent:\n")
		sb.WriteString(writingPlan)
	}
	sb.WriteString("\n\nWriting Instructions:")
	sb.WriteString(finalReportInstruction)
	return pair(system, sb.String())
}

// FormatContexts renders context summaries as url/context line pairs, the
// form the judge and report prompts cite sources from.
func FormatContexts(contexts []models.ContextSummary) string {
	parts := make([]string, 0, len(contexts))
	for _, c := range contexts {
		parts = append(parts, "url:"+c.URL+"\ncontext:"+c.Summary)
	}
	return strings.Join(parts, "\n")
}

// FormatQueryList renders queries as a numbered list, one per line.
func FormatQueryList(queries []string) string {
	var sb strings.Builder
	for i, q := range queries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(": ")
		sb.WriteString(q)
	}
	return sb.String()
}

var spaceRuns = regexp.MustCompile(`[ \t]+`)

// Clean normalizes prompt text arriving from outside the template library,
// such as a request's system instruction: CRLF and CR become LF, null bytes
// are dropped, runs of spaces and tabs collapse to one space, and every line
// is trimmed along with the whole string.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func pair(system, user string) []models.Message {
	return []models.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: user},
	}
}
