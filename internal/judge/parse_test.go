package judge

import (
	"strings"
	"testing"
)

func TestParseReply_ScoreAndReasoning(t *testing.T) {
	reply := "SCORE: 95\nREASONING: close"

	parsed := parseReply(reply)

	if !parsed.ScoreFound {
		t.Fatal("expected score to be found")
	}
	if parsed.Score != 95 {
		t.Errorf("expected score 95, got %d", parsed.Score)
	}
	if parsed.Reasoning != "close" {
		t.Errorf("expected reasoning 'close', got %q", parsed.Reasoning)
	}
	if len(parsed.Diagnostics) != 0 {
		t.Errorf("expected no diagnostics, got %v", parsed.Diagnostics)
	}
}

func TestParseReply_MultilineReasoning(t *testing.T) {
	reply := "SCORE: 70\nREASONING: covers the main point\nbut misses the account details"

	parsed := parseReply(reply)

	if parsed.Reasoning != "covers the main point but misses the account details" {
		t.Errorf("unexpected reasoning: %q", parsed.Reasoning)
	}
}

func TestParseReply_ClampHigh(t *testing.T) {
	parsed := parseReply("SCORE: 150\nREASONING: overshoot")

	if parsed.Score != 100 {
		t.Errorf("expected clamped score 100, got %d", parsed.Score)
	}
	if len(parsed.Diagnostics) == 0 || !strings.Contains(parsed.Diagnostics[0], "clamped") {
		t.Errorf("expected clamp diagnostic, got %v", parsed.Diagnostics)
	}
}

func TestParseReply_NegativeScoreClampedToZero(t *testing.T) {
	parsed := parseReply("SCORE: -5\nREASONING: bad")

	if parsed.Score != 0 {
		t.Errorf("expected clamped score 0, got %d", parsed.Score)
	}
	if len(parsed.Diagnostics) == 0 || !strings.Contains(parsed.Diagnostics[0], "clamped") {
		t.Errorf("expected clamp diagnostic, got %v", parsed.Diagnostics)
	}
}

func TestParseReply_NoScore(t *testing.T) {
	parsed := parseReply("The answer looks fine to me.")

	if parsed.ScoreFound {
		t.Error("expected no score found")
	}
	if parsed.Score != 0 {
		t.Errorf("expected score 0, got %d", parsed.Score)
	}
	if !strings.Contains(parsed.Reasoning, "Could not parse") {
		t.Errorf("expected parse-failure reasoning, got %q", parsed.Reasoning)
	}
}

func TestParseReply_ScoreWithDecoratedText(t *testing.T) {
	parsed := parseReply("SCORE: [85 out of 100]\nREASONING: good")

	if parsed.Score != 85 {
		t.Errorf("expected first integer token 85, got %d", parsed.Score)
	}
}

func TestParseReply_ScoreWithoutReasoning(t *testing.T) {
	parsed := parseReply("SCORE: 60")

	if parsed.Score != 60 {
		t.Errorf("expected 60, got %d", parsed.Score)
	}
	if !strings.Contains(parsed.Reasoning, "No reasoning provided") {
		t.Errorf("expected missing-reasoning note, got %q", parsed.Reasoning)
	}
}
