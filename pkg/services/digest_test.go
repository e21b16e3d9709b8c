package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scourlabs/scour/pkg/models"
)

func TestCanonicalDigestIgnoresKeyOrderAndWhitespace(t *testing.T) {
	a, err := CanonicalDigest([]byte(`{"b": 1, "a": {"y": true, "x": "v"}}`))
	require.NoError(t, err)
	b, err := CanonicalDigest([]byte(`{"a":{"x":"v","y":true},"b":1}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestCanonicalDigestDistinguishesContent(t *testing.T) {
	a, err := CanonicalDigest([]byte(`{"n": 1}`))
	require.NoError(t, err)
	b, err := CanonicalDigest([]byte(`{"n": 2}`))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCanonicalDigestRejectsMalformedJSON(t *testing.T) {
	_, err := CanonicalDigest([]byte(`{"n": `))
	assert.Error(t, err)
}

func TestDigestIsDeterministic(t *testing.T) {
	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &models.Session{
		SessionID: "2d4f0cb2-4fa9-4a9f-9ff9-0d9221efcb8d",
		UserQuery: "question",
		Status:    models.StatusRunning,
		StartTime: started,
	}

	first, err := Digest(session)
	require.NoError(t, err)
	second, err := Digest(session)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	session.UserQuery = "different question"
	third, err := Digest(session)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}
