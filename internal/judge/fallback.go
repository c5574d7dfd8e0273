package judge

import (
	"fmt"
	"strings"
)

// fallbackScore is the deterministic scorer used when the judge model cannot
// be invoked. It measures unique-token overlap between the expected and
// actual answers, so consumers always get a best-effort heuristic score
// instead of a missing evaluation. Results carry a reasoning string that
// marks them as heuristic.
func fallbackScore(in Input) (int, string) {
	expected := strings.TrimSpace(in.ExpectedAnswer)
	actual := strings.TrimSpace(in.ActualAnswer)

	if actual == "" {
		return 0, "Heuristic comparison (judge model unavailable): actual answer is empty"
	}
	if expected == "" {
		return 0, "Heuristic comparison (judge model unavailable): no expected answer to compare against"
	}

	expectedTokens := uniqueTokens(expected)
	actualTokens := uniqueTokens(actual)

	if len(expectedTokens) == 0 {
		return 0, "Heuristic comparison (judge model unavailable): expected answer has no comparable terms"
	}

	matched := 0
	for token := range expectedTokens {
		if actualTokens[token] {
			matched++
		}
	}

	score := clamp(matched * 100 / len(expectedTokens))
	return score, fmt.Sprintf(
		"Heuristic comparison (judge model unavailable): %d of %d expected terms found in actual answer",
		matched, len(expectedTokens))
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"of": true, "at": true, "by": true, "for": true, "with": true,
	"about": true, "against": true, "between": true, "into": true,
	"through": true, "during": true, "before": true, "after": true,
	"to": true, "from": true, "in": true, "on": true,
}

func uniqueTokens(s string) map[string]bool {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(".,!?;:()[]{}\"'", r) {
			return -1
		}
		return r
	}, s)

	tokens := make(map[string]bool)
	for word := range strings.FieldsSeq(s) {
		if !stopWords[word] && len(word) > 1 {
			tokens[word] = true
		}
	}
	return tokens
}
