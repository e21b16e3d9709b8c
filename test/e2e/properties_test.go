package e2e

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scourlabs/scour/pkg/config"
	"github.com/scourlabs/scour/pkg/models"
)

// planningOff disables the planning model, so runs go straight from the user
// query to query generation and skip the judge and writing-plan calls.
func planningOff(cfg *config.Config) {
	off := false
	cfg.Settings.WithPlanning = &off
}

// minimalReport returns report text long enough that the writer does not
// retry it as a degenerate answer.
func minimalReport(topic string) string {
	return fmt.Sprintf("## Findings on %s\n\n", topic) +
		strings.Repeat("The gathered evidence supports the stated finding. ", 5) +
		"\n\nNo available sources"
}

// TestE2E_StreamSessionIDAnnouncement checks the stream protocol: the first
// data frame carries a valid session UUID, every following frame is a
// well-formed chat.completion.chunk sharing one completion id, and [DONE]
// terminates the stream. The run itself is a minimal planning-free pass, so
// the session plan must be the user query verbatim.
func TestE2E_StreamSessionIDAnnouncement(t *testing.T) {
	app := NewTestApp(t, WithConfig(planningOff))
	page := app.Site.AddPage("/direct", "Direct", "The answer to the direct question, stated plainly.")
	app.Search.Add("direct lookup", page)
	app.LLM.Script(CallQueries, `["direct lookup"]`)
	app.LLM.Script(CallUseful, "Yes")
	app.LLM.Script(CallExtract, "The directly relevant finding.")
	app.LLM.Script(CallReport, minimalReport("the direct question"))

	run := app.ResearchStream(t, models.ChatCompletionRequest{
		Model:          models.ResearchModelID,
		Messages:       []models.ChatMessage{{Role: models.RoleUser, Content: "A direct question."}},
		MaxIterations:  1,
		MaxSearchItems: 1,
	})

	_, err := uuid.Parse(run.SessionID)
	require.NoError(t, err)
	require.True(t, run.Done)
	require.NotEmpty(t, run.Frames)

	completionID := run.Frames[0].ID
	assert.True(t, strings.HasPrefix(completionID, "chatcmpl-"), "completion id %q", completionID)
	for _, frame := range run.Frames {
		assert.Equal(t, completionID, frame.ID, "all frames share one completion id")
		assert.Equal(t, models.ResearchModelID, frame.Model)
	}

	session := app.GetSession(t, run.SessionID)
	assert.False(t, session.Settings.WithPlanning)
	require.Len(t, session.Iterations, 1)
	assert.Equal(t, "User Query: A direct question.", session.Iterations[0].Plan,
		"without planning the user query itself steers the search")
	assert.Equal(t, 0, app.LLM.CallCount(CallPlan))
	assert.Equal(t, 0, app.LLM.CallCount(CallJudge))
	assert.Equal(t, 0, app.LLM.CallCount(CallWriting))
}

// TestE2E_DomainCoolDownSerializesFetches pins the per-domain limit to one
// and measures the stub site's request timing: fetches of same-domain links
// must run strictly one at a time, each starting no earlier than the
// cool-down after the previous one completed.
func TestE2E_DomainCoolDownSerializesFetches(t *testing.T) {
	const coolDown = 120 * time.Millisecond

	app := NewTestApp(t, WithConfig(planningOff), WithConfig(func(cfg *config.Config) {
		cfg.Concurrency.ConcurrentLimit = 1
		cfg.Concurrency.CoolDown = config.Duration(coolDown)
	}))
	one := app.Site.AddPage("/probe/one", "One", "First probe page.")
	two := app.Site.AddPage("/probe/two", "Two", "Second probe page.")
	three := app.Site.AddPage("/probe/three", "Three", "Third probe page.")
	app.Search.Add("serial fetch probe", one, two, three)
	app.LLM.Script(CallQueries, `["serial fetch probe"]`)
	app.LLM.Script(CallUseful, "No")
	app.LLM.Script(CallReport, minimalReport("the serial probe"))

	app.ResearchBlocking(t, models.ChatCompletionRequest{
		Model:          models.ResearchModelID,
		Messages:       []models.ChatMessage{{Role: models.RoleUser, Content: "Probe the serial fetch behaviour."}},
		MaxIterations:  1,
		MaxSearchItems: 3,
	})

	starts, ends := app.Site.Timings()
	require.Len(t, starts, 3)
	require.Len(t, ends, 3)
	assert.Equal(t, 1, app.Site.MaxInFlight(), "a single domain slot admits one fetch at a time")
	// The admission release stamps the completion after the page round trip,
	// so the observed gap is never shorter than the configured cool-down.
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(ends[i-1])
		assert.GreaterOrEqual(t, gap, coolDown, "fetch %d started %v after the previous one ended", i+1, gap)
	}
}

// TestE2E_FetchConcurrencyBounded fans six same-domain links out against a
// slowed site and asserts the stub never observes more in-flight requests
// than the configured concurrent limit.
func TestE2E_FetchConcurrencyBounded(t *testing.T) {
	app := NewTestApp(t, WithConfig(planningOff), WithConfig(func(cfg *config.Config) {
		cfg.Concurrency.ConcurrentLimit = 2
		cfg.Concurrency.CoolDown = config.Duration(time.Millisecond)
	}))
	app.Site.SetDelay(60 * time.Millisecond)
	var links []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		links = append(links, app.Site.AddPage("/burst/"+name, "Burst "+name, "Burst probe page "+name+"."))
	}
	app.Search.Add("burst fetch probe", links...)
	app.LLM.Script(CallQueries, `["burst fetch probe"]`)
	app.LLM.Script(CallUseful, "No")
	app.LLM.Script(CallReport, minimalReport("the burst probe"))

	app.ResearchBlocking(t, models.ChatCompletionRequest{
		Model:          models.ResearchModelID,
		Messages:       []models.ChatMessage{{Role: models.RoleUser, Content: "Probe the fetch concurrency bound."}},
		MaxIterations:  1,
		MaxSearchItems: 6,
	})

	starts, _ := app.Site.Timings()
	require.Len(t, starts, 6, "every link must be fetched")
	assert.LessOrEqual(t, app.Site.MaxInFlight(), 2, "fetch concurrency must respect the configured limit")
}

// TestE2E_GovernorBoundsModelCalls slows the model backend down and runs an
// iteration whose page checks would otherwise fan out four concurrent LLM
// calls. The governor's ceiling must keep the backend's observed in-flight
// count at or under two while all calls still complete.
func TestE2E_GovernorBoundsModelCalls(t *testing.T) {
	app := NewTestApp(t, WithConfig(planningOff), WithConfig(func(cfg *config.Config) {
		cfg.RateLimits.MaxConcurrent = 2
		cfg.Concurrency.ConcurrentLimit = 4
		cfg.Concurrency.CoolDown = config.Duration(time.Millisecond)
	}))
	app.LLM.SetDelay(40 * time.Millisecond)
	var links []string
	for _, name := range []string{"one", "two", "three", "four"} {
		links = append(links, app.Site.AddPage("/gov/"+name, "Gov "+name, "Governor probe page "+name+"."))
	}
	app.Search.Add("governor probe", links...)
	app.LLM.Script(CallQueries, `["governor probe"]`)
	app.LLM.Script(CallUseful, "Yes")
	app.LLM.Script(CallExtract, "Evidence for the governor probe.")
	app.LLM.Script(CallReport, minimalReport("the governor probe"))

	completion := app.ResearchBlocking(t, models.ChatCompletionRequest{
		Model:          models.ResearchModelID,
		Messages:       []models.ChatMessage{{Role: models.RoleUser, Content: "Probe the model call ceiling."}},
		MaxIterations:  1,
		MaxSearchItems: 4,
	})

	assert.LessOrEqual(t, app.LLM.MaxInFlight(), 2, "model calls must respect the governor ceiling")
	assert.Equal(t, 4, app.LLM.CallCount(CallUseful))
	assert.Equal(t, 4, app.LLM.CallCount(CallExtract))
	session := app.GetSession(t, completion.SessionID)
	assert.Len(t, session.Aggregated.Contexts, 4, "throttling must not drop any page")
}

// TestE2E_HostedParserPath switches page acquisition to the hosted parser:
// the parser must receive the page URL appended to its base with the bearer
// key, the origin site must never be contacted, and the extracted context
// must flow into the session as usual.
func TestE2E_HostedParserPath(t *testing.T) {
	parser := NewStubParser("Parsed article text with the key finding, served by the hosted parser.")
	app := NewTestApp(t, WithParser(parser), WithConfig(planningOff))

	page := app.Site.URL("/article") // never registered: only the parser serves it
	app.Search.Add("hosted parse probe", page)
	app.LLM.Script(CallQueries, `["hosted parse probe"]`)
	app.LLM.Script(CallUseful, "Yes")
	app.LLM.Script(CallExtract, "Key finding extracted from the parsed article.")
	app.LLM.Script(CallReport, minimalReport("the hosted parser probe"))

	completion := app.ResearchBlocking(t, models.ChatCompletionRequest{
		Model:          models.ResearchModelID,
		Messages:       []models.ChatMessage{{Role: models.RoleUser, Content: "What does the article say?"}},
		MaxIterations:  1,
		MaxSearchItems: 1,
	})

	session := app.GetSession(t, completion.SessionID)
	assert.True(t, session.Settings.UseHostedParser)
	require.Len(t, session.Aggregated.Contexts, 1)
	assert.Equal(t, page, session.Aggregated.Contexts[0].URL)
	assert.Equal(t, "Key finding extracted from the parsed article.", session.Aggregated.Contexts[0].Summary)

	requests := parser.Requests()
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0], page, "the page URL is passed to the parser verbatim")
	assert.Equal(t, "Bearer test-parser-key", parser.AuthHeader())

	starts, _ := app.Site.Timings()
	assert.Empty(t, starts, "the origin site must not be fetched when the hosted parser is on")
}
