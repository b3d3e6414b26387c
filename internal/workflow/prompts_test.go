package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGenerationResponse(t *testing.T) {
	desc, svg, err := parseGenerationResponse(genResponse)
	require.NoError(t, err)
	assert.Equal(t, "Bar chart of sales by coffee type.", desc)
	assert.True(t, strings.HasPrefix(string(svg), "<svg"))
	assert.True(t, strings.HasSuffix(string(svg), "</svg>"))
}

func TestParseGenerationResponseMissingDescription(t *testing.T) {
	content := `<svg xmlns="http://www.w3.org/2000/svg"><text>x</text></svg>`
	desc, svg, err := parseGenerationResponse(content)
	require.NoError(t, err)
	assert.Equal(t, "Chart visualization", desc)
	assert.NotEmpty(t, svg)
}

func TestParseGenerationResponseChattyModel(t *testing.T) {
	// Models sometimes wrap the answer in prose and code fences.
	content := "Sure! Here is your chart.\n" +
		`{"description": "Line chart of revenue over time."}` + "\n" +
		"```svg\n<svg xmlns=\"http://www.w3.org/2000/svg\"><path d=\"M0 0\"/></svg>\n```\nLet me know if you need changes."
	desc, svg, err := parseGenerationResponse(content)
	require.NoError(t, err)
	assert.Equal(t, "Line chart of revenue over time.", desc)
	assert.Contains(t, string(svg), "<path")
	assert.False(t, strings.Contains(string(svg), "```"))
}

func TestParseGenerationResponseNoSVG(t *testing.T) {
	_, _, err := parseGenerationResponse(`{"description": "all talk"}` + "\nI could not draw anything.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no SVG")
}

func TestParseReflectionResponse(t *testing.T) {
	findings, accepted, desc, svg, err := parseReflectionResponse(reflResponse)
	require.NoError(t, err)
	assert.Equal(t, []string{"Axis labels overlap.", "Bars are not sorted."}, findings)
	assert.False(t, accepted)
	assert.Equal(t, "Sorted bar chart with rotated labels.", desc)
	assert.Contains(t, string(svg), "v2")
}

func TestParseReflectionResponseAccepted(t *testing.T) {
	content := `{"findings": [], "accepted": true, "description": "Already correct."}` + "\n" +
		`<svg xmlns="http://www.w3.org/2000/svg"><text>same</text></svg>`
	findings, accepted, _, svg, err := parseReflectionResponse(content)
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.True(t, accepted)
	assert.NotEmpty(t, svg)
}

func TestParseReflectionResponseUnreadableEnvelope(t *testing.T) {
	// A broken envelope degrades to a placeholder finding as long as
	// the SVG itself is usable.
	content := "not json at all\n" +
		`<svg xmlns="http://www.w3.org/2000/svg"><text>v2</text></svg>`
	findings, accepted, desc, svg, err := parseReflectionResponse(content)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0], "critique envelope unreadable")
	assert.False(t, accepted)
	assert.Equal(t, "Chart visualization", desc)
	assert.NotEmpty(t, svg)
}

func TestParseReflectionResponseNoSVG(t *testing.T) {
	_, _, _, _, err := parseReflectionResponse(`{"findings": ["fine"], "accepted": true}`)
	require.Error(t, err)
}

func TestBuildPromptsIncludeContext(t *testing.T) {
	gen := buildGenerationPrompt("Plot sales", "- money: numeric (5 distinct values)", `[{"money": 38.7}]`)
	assert.Contains(t, gen, "Plot sales")
	assert.Contains(t, gen, "money: numeric")
	assert.Contains(t, gen, `"money": 38.7`)
	assert.Contains(t, gen, "viewBox")

	refl := buildReflectionPrompt("Plot sales", "- money: numeric (5 distinct values)", `[{"money": 38.7}]`, "Bar chart of money.")
	assert.Contains(t, refl, "Plot sales")
	assert.Contains(t, refl, "Bar chart of money.")
	assert.Contains(t, refl, "CHART TYPE APPROPRIATENESS")
	assert.Contains(t, refl, `"accepted"`)
}
