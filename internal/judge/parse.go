package judge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var scorePattern = regexp.MustCompile(`-?\d+`)

type parsedReply struct {
	Score       int
	Reasoning   string
	Diagnostics []string
	ScoreFound  bool
}

// parseReply extracts the SCORE and REASONING sections from a judge model
// reply. Parsing is lenient: the first integer token after SCORE: wins,
// out-of-range values are clamped with a diagnostic, and a reply with no
// parseable score yields score 0 rather than an error.
func parseReply(text string) parsedReply {
	result := parsedReply{
		Reasoning: "No valid response received",
	}

	var reasoningLines []string
	inReasoning := false

	for line := range strings.Lines(strings.TrimSpace(text)) {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "SCORE:"):
			inReasoning = false
			scoreText := strings.TrimSpace(strings.TrimPrefix(line, "SCORE:"))
			match := scorePattern.FindString(scoreText)
			if match == "" {
				result.Diagnostics = append(result.Diagnostics, "no numeric score found in SCORE line")
				continue
			}
			raw, err := strconv.Atoi(match)
			if err != nil {
				result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("could not parse score: %v", err))
				continue
			}
			result.Score = clamp(raw)
			result.ScoreFound = true
			if raw != result.Score {
				result.Diagnostics = append(result.Diagnostics,
					fmt.Sprintf("score %d was clamped to %d (valid range: 0-100)", raw, result.Score))
			}

		case strings.HasPrefix(line, "REASONING:"):
			inReasoning = true
			if text := strings.TrimSpace(strings.TrimPrefix(line, "REASONING:")); text != "" {
				reasoningLines = append(reasoningLines, text)
			}

		case inReasoning && line != "":
			reasoningLines = append(reasoningLines, line)
		}
	}

	if len(reasoningLines) > 0 {
		result.Reasoning = strings.Join(reasoningLines, " ")
	} else if !result.ScoreFound {
		result.Reasoning = "Could not parse judge response - no structured output found"
		result.Diagnostics = append(result.Diagnostics, "no SCORE or REASONING sections found")
	} else {
		result.Reasoning = "No reasoning provided by judge model"
		result.Diagnostics = append(result.Diagnostics, "no reasoning text found")
	}

	if !result.ScoreFound {
		result.Score = 0
		result.Diagnostics = append(result.Diagnostics, "no valid score found in response")
	}

	return result
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
