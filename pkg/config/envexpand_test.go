package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("SCOUR_TEST_KEY", "secret-value")
	t.Setenv("SCOUR_TEST_HOST", "db.internal")
	t.Setenv("SCOUR_TEST_PORT", "5432")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "single placeholder",
			input: "api_key: ${SCOUR_TEST_KEY}",
			want:  "api_key: secret-value",
		},
		{
			name:  "multiple placeholders on one line",
			input: "dsn: ${SCOUR_TEST_HOST}:${SCOUR_TEST_PORT}",
			want:  "dsn: db.internal:5432",
		},
		{
			name:  "missing variable expands empty",
			input: "value: ${SCOUR_TEST_DOES_NOT_EXIST}",
			want:  "value: ",
		},
		{
			name:  "bare dollar untouched",
			input: `pattern: "^secret.*$"`,
			want:  `pattern: "^secret.*$"`,
		},
		{
			name:  "unbraced reference untouched",
			input: "path: $HOME/data",
			want:  "path: $HOME/data",
		},
		{
			name:  "shell array syntax untouched",
			input: "snippet: ${ARRAY[0]}",
			want:  "snippet: ${ARRAY[0]}",
		},
		{
			name:  "placeholder inside longer text",
			input: "url: https://${SCOUR_TEST_HOST}/search",
			want:  "url: https://db.internal/search",
		},
		{
			name:  "no placeholders",
			input: "plain: value",
			want:  "plain: value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(got))
		})
	}
}
