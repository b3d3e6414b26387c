package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// jsonObjectRe finds the first JSON object anywhere in a response, used
// as a fallback when the model does not lead with the envelope line.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*?\}`)

// svgRe extracts the SVG document from a model response.
var svgRe = regexp.MustCompile(`(?s)<svg\b.*?</svg>`)

// buildGenerationPrompt constructs the V1 prompt from dataset context
// and the user instruction.
func buildGenerationPrompt(instruction, schema, sampleJSON string) string {
	return strings.TrimSpace(fmt.Sprintf(`
You are a data visualization expert.

Dataset schema:
%s

Sample rows (JSON):
%s

Return your answer strictly in this format:

1) First line: a valid JSON object with a "description" field explaining the chart.
   Example: {"description": "Horizontal bar chart showing total sales by coffee type, sorted from highest to lowest."}

2) After a newline, output ONLY a complete standalone SVG document:
<svg xmlns="http://www.w3.org/2000/svg" ...>...</svg>

Constraints:
1. Use only the columns present in the schema above; plot the sample values faithfully.
2. Set an explicit viewBox and a white background.
3. Add a clear title, axis labels, and a legend when appropriate.
4. Use legible font sizes (>= 10px) and distinguishable, colorblind-safe colors.
5. Do not embed external resources, scripts, or raster images.

User instruction: %s`, schema, sampleJSON, instruction))
}

// buildReflectionPrompt constructs the critique prompt. The evaluator
// model also receives the V1 artifact itself via the artifact part of
// the request. The critique framework follows perceptual-psychology
// and information-design practice (Tufte, Cleveland-McGill).
func buildReflectionPrompt(instruction, schema, sampleJSON, v1Description string) string {
	return strings.TrimSpace(fmt.Sprintf(`
You are an expert data visualization critic trained in perceptual psychology and information design.

Dataset schema:
%s

Sample rows (JSON):
%s

The attached chart was generated for the instruction below. Its author described it as: %q

CRITIQUE FRAMEWORK - evaluate the attached chart systematically:

1. CHART TYPE APPROPRIATENESS
   - Does the chart type match the data structure and user intent?
   - Temporal data -> line/area; categorical comparisons -> bars; distributions -> histograms.

2. PERCEPTUAL ACCURACY & TRUTHFULNESS
   - Honest encodings: bar baselines at zero, no misleading scales or aspect ratios.

3. CLARITY & READABILITY
   - Legible labels, no overlapping text, necessary and well-placed legend,
     colors distinguishable by colorblind users.

4. DATA-INK RATIO
   - Remove chart junk: unnecessary gridlines, decoration; prefer direct labeling.

5. STATISTICAL INTEGRITY
   - Outliers handled, aggregation method clear.

Original instruction:
%s

OUTPUT FORMAT (STRICT):
1) First line: a valid JSON object with "findings" (array of strings, most important first),
   "accepted" (boolean: does the chart already meet the instruction?), and "description" fields.
   Example: {"findings": ["Axis labels overlap at the bottom."], "accepted": false, "description": "Bar chart with rotated labels."}
2) After a newline, output ONLY the revised standalone SVG document addressing every finding:
<svg xmlns="http://www.w3.org/2000/svg" ...>...</svg>
3) Keep the same constraints as the original: explicit viewBox, no scripts, no external resources.`,
		schema, sampleJSON, v1Description, instruction))
}

// generationEnvelope is the JSON first line of a generation response.
type generationEnvelope struct {
	Description string `json:"description"`
}

// reflectionEnvelope is the JSON first line of a reflection response.
type reflectionEnvelope struct {
	Findings    []string `json:"findings"`
	Accepted    bool     `json:"accepted"`
	Description string   `json:"description"`
}

// parseEnvelope decodes the leading JSON object of a response into
// dst, falling back to the first JSON object found anywhere.
func parseEnvelope(content string, dst interface{}) error {
	lines := strings.SplitN(strings.TrimSpace(content), "\n", 2)
	if len(lines) > 0 {
		if err := json.Unmarshal([]byte(strings.TrimSpace(lines[0])), dst); err == nil {
			return nil
		}
	}
	if match := jsonObjectRe.FindString(content); match != "" {
		if err := json.Unmarshal([]byte(match), dst); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no parseable JSON envelope in response")
}

// extractSVG pulls the SVG document out of a model response.
func extractSVG(content string) ([]byte, error) {
	match := svgRe.FindString(content)
	if match == "" {
		return nil, fmt.Errorf("response contains no SVG document")
	}
	return []byte(match), nil
}

// parseGenerationResponse splits a generation response into its
// description and SVG payload. A missing description degrades to a
// placeholder; a missing or empty SVG is an error.
func parseGenerationResponse(content string) (description string, svg []byte, err error) {
	var env generationEnvelope
	if envErr := parseEnvelope(content, &env); envErr == nil {
		description = strings.TrimSpace(env.Description)
	}
	if description == "" {
		description = "Chart visualization"
	}

	svg, err = extractSVG(content)
	if err != nil {
		return "", nil, err
	}
	return description, svg, nil
}

// parseReflectionResponse splits a reflection response into critique
// fields and the revised SVG payload.
func parseReflectionResponse(content string) (findings []string, accepted bool, description string, svg []byte, err error) {
	var env reflectionEnvelope
	if envErr := parseEnvelope(content, &env); envErr != nil {
		findings = []string{fmt.Sprintf("critique envelope unreadable: %v", envErr)}
	} else {
		findings = env.Findings
		accepted = env.Accepted
		description = strings.TrimSpace(env.Description)
	}
	if description == "" {
		description = "Chart visualization"
	}

	svg, err = extractSVG(content)
	if err != nil {
		return nil, false, "", nil, err
	}
	return findings, accepted, description, svg, nil
}
