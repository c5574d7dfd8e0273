package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"

	"dialogeval/internal/llm"
	"dialogeval/internal/llm/mocks"
	"dialogeval/internal/models"
)

func testParams() []models.ParameterConfig {
	return []models.ParameterConfig{
		{
			ParameterID: 1,
			Name:        "Similarity Score",
			Description: "How closely the actual answer matches the expected answer",
			Weight:      100,
			Enabled:     true,
		},
	}
}

func testInput() Input {
	return Input{
		Question:       "How do I reset my password?",
		ExpectedAnswer: "Use the forgot password link on the login page.",
		ActualAnswer:   "Click the forgot password link on the login page to reset it.",
	}
}

func newTestEvaluator(client llm.LLMClient) *Evaluator {
	logger := zerolog.Nop()
	return NewEvaluator(client, Options{MaxTokens: 256}, &logger)
}

func TestEvaluateAll_ParsesJudgeReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)

	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		Return(&llm.LLMResponse{Content: "SCORE: 95\nREASONING: nearly identical answers"}, nil)

	scores := newTestEvaluator(client).EvaluateAll(context.Background(), testInput(), testParams())

	if len(scores) != 1 {
		t.Fatalf("expected 1 score, got %d", len(scores))
	}
	if scores[0].Score != 95 {
		t.Errorf("expected score 95, got %d", scores[0].Score)
	}
	if scores[0].Reasoning != "nearly identical answers" {
		t.Errorf("unexpected reasoning: %q", scores[0].Reasoning)
	}
	if scores[0].Fallback {
		t.Error("score should not be marked as fallback")
	}
	if scores[0].Weight != 100 {
		t.Errorf("expected weight snapshot 100, got %d", scores[0].Weight)
	}
}

func TestEvaluateAll_ClampsOutOfRangeScore(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)

	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		Return(&llm.LLMResponse{Content: "SCORE: 150\nREASONING: very enthusiastic"}, nil)

	scores := newTestEvaluator(client).EvaluateAll(context.Background(), testInput(), testParams())

	if scores[0].Score != 100 {
		t.Errorf("expected clamped score 100, got %d", scores[0].Score)
	}
	if len(scores[0].Diagnostics) == 0 {
		t.Error("expected a clamp diagnostic")
	}
}

func TestEvaluateAll_UnparseableReplyScoresZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)

	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		Return(&llm.LLMResponse{Content: "I think the answer is pretty good overall."}, nil)

	scores := newTestEvaluator(client).EvaluateAll(context.Background(), testInput(), testParams())

	if scores[0].Score != 0 {
		t.Errorf("expected score 0 for unparseable reply, got %d", scores[0].Score)
	}
	if !strings.Contains(scores[0].Reasoning, "Could not parse") {
		t.Errorf("expected parse-failure reasoning, got %q", scores[0].Reasoning)
	}
	if scores[0].Fallback {
		t.Error("unparseable reply is not a fallback result")
	}
}

func TestEvaluateAll_InvokeErrorFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)

	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("throttled"))

	scores := newTestEvaluator(client).EvaluateAll(context.Background(), testInput(), testParams())

	if !scores[0].Fallback {
		t.Error("expected fallback result on invoke error")
	}
	if !strings.Contains(scores[0].Reasoning, "Heuristic comparison") {
		t.Errorf("expected heuristic reasoning, got %q", scores[0].Reasoning)
	}
	found := false
	for _, d := range scores[0].Diagnostics {
		if strings.Contains(d, "judge model error") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected judge model error diagnostic, got %v", scores[0].Diagnostics)
	}
}

func TestEvaluateAll_NilClientUsesFallbackOnly(t *testing.T) {
	scores := newTestEvaluator(nil).EvaluateAll(context.Background(), testInput(), testParams())

	if len(scores) != 1 {
		t.Fatalf("expected 1 score, got %d", len(scores))
	}
	if !scores[0].Fallback {
		t.Error("expected fallback result when no judge client is configured")
	}
	if scores[0].Score == 0 {
		t.Error("overlapping answers should produce a nonzero heuristic score")
	}
}

func TestEvaluateAll_SkipsDisabledAndZeroWeight(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)

	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		Return(&llm.LLMResponse{Content: "SCORE: 80\nREASONING: fine"}, nil).
		Times(1)

	params := []models.ParameterConfig{
		{ParameterID: 1, Name: "Similarity Score", Weight: 60, Enabled: true},
		{ParameterID: 2, Name: "Completeness", Weight: 0, Enabled: true},
		{ParameterID: 3, Name: "Empathy Level", Weight: 40, Enabled: false},
	}

	scores := newTestEvaluator(client).EvaluateAll(context.Background(), testInput(), params)

	if len(scores) != 1 {
		t.Fatalf("expected only the enabled weighted parameter, got %d scores", len(scores))
	}
	if scores[0].ParameterID != 1 {
		t.Errorf("expected parameter 1, got %d", scores[0].ParameterID)
	}
}

func TestEvaluateAll_NoActiveParameters(t *testing.T) {
	scores := newTestEvaluator(nil).EvaluateAll(context.Background(), testInput(), nil)
	if scores != nil {
		t.Errorf("expected nil scores, got %v", scores)
	}
}

func TestCombineReasoning_SingleParameter(t *testing.T) {
	params := testParams()
	scores := []models.ParameterScore{{ParameterID: 1, Score: 95, Reasoning: "nearly identical"}}

	combined := CombineReasoning(params, scores)

	if combined != "nearly identical" {
		t.Errorf("expected passthrough reasoning, got %q", combined)
	}
}

func TestCombineReasoning_MultipleParameters(t *testing.T) {
	params := []models.ParameterConfig{
		{ParameterID: 1, Name: "Similarity Score"},
		{ParameterID: 2, Name: "Completeness"},
	}
	scores := []models.ParameterScore{
		{ParameterID: 1, Score: 90, Reasoning: "close match"},
		{ParameterID: 2, Score: 70, Reasoning: "misses one detail"},
	}

	combined := CombineReasoning(params, scores)

	if !strings.Contains(combined, "Evaluation across 2 criteria:") {
		t.Errorf("missing summary header: %q", combined)
	}
	if !strings.Contains(combined, "• Similarity Score (90/100): close match") {
		t.Errorf("missing first criterion line: %q", combined)
	}
	if !strings.Contains(combined, "• Completeness (70/100): misses one detail") {
		t.Errorf("missing second criterion line: %q", combined)
	}
}

func TestCombineReasoning_Empty(t *testing.T) {
	if got := CombineReasoning(nil, nil); got != "No parameter evaluations performed." {
		t.Errorf("unexpected empty-case message: %q", got)
	}
}
