package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"plain array", `[{"title": "x"}]`, `[{"title": "x"}]`},
		{"fenced", "Here you go:\n```json\n[{\"title\": \"Slow service\"}]\n```\n", `[{"title": "Slow service"}]`},
		{"prose around", `Sure! {"summary": "ok"} Hope this helps.`, `{"summary": "ok"}`},
		{"brackets in strings", `[{"detail": "mentions ] and } inside"}]`, `[{"detail": "mentions ] and } inside"}]`},
		{"escaped quotes", `{"q": "he said \"hi\""}`, `{"q": "he said \"hi\""}`},
		{"array before object", `[1, {"a": 2}]`, `[1, {"a": 2}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	for _, input := range []string{"", "no json here", `{"unterminated": `} {
		_, err := ExtractJSON(input)
		assert.Error(t, err, input)
	}
}

func TestParseJSONResponse(t *testing.T) {
	type insight struct {
		Title    string `json:"title"`
		Priority string `json:"priority"`
	}

	got, err := ParseJSONResponse[[]insight]("```json\n[{\"title\":\"Parking\",\"priority\":\"high\"}]\n```")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Parking", got[0].Title)

	_, err = ParseJSONResponse[[]insight](`{"title": "object not array"}`)
	assert.Error(t, err)
}
