package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scourlabs/scour/pkg/models"
	"github.com/scourlabs/scour/test/util"
)

// newTestPool provisions a migrated PostgreSQL schema for store tests. Each
// test gets its own schema, so list and delete assertions never see rows from
// other tests.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	return util.NewTestClient(t).Pool()
}

func testSettings() models.Settings {
	return models.Settings{
		MaxIterations:  5,
		MaxSearchItems: 3,
		DefaultModel:   "default-model",
		ReasonModel:    "reason-model",
		WithPlanning:   true,
	}
}

// sessionWithIterations builds a valid running session with n completed
// iterations, each contributing one query and one context.
func sessionWithIterations(userID string, n int) *models.Session {
	session := models.NewSession("what changed in grid storage", "", userID, testSettings())
	session.StartTime = time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)

	for i := 1; i <= n; i++ {
		started := session.StartTime.Add(time.Duration(i) * time.Minute)
		rec := models.IterationRecord{
			Iteration: i,
			StartedAt: started,
			EndedAt:   started.Add(30 * time.Second),
			Plan:      planName(i),
			Queries:   []string{queryName(i)},
			Contexts: []models.ContextSummary{
				{URL: urlName(i), Query: queryName(i), Summary: summaryName(i)},
			},
			NextPlan: planName(i + 1),
		}
		session.Iterations = append(session.Iterations, rec)
	}
	session.Aggregated = models.RecomputeAggregated(session.Iterations)
	return session
}

func planName(i int) string    { return fmt.Sprintf("plan-%d", i) }
func queryName(i int) string   { return fmt.Sprintf("query-%d", i) }
func urlName(i int) string     { return fmt.Sprintf("https://example.com/page-%d", i) }
func summaryName(i int) string { return fmt.Sprintf("summary-%d", i) }
