package judge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"dialogeval/internal/llm"
	"dialogeval/internal/models"
)

// Evaluator produces one scored verdict per enabled evaluation parameter for
// a single question's answer. A nil client means the judge model was found
// unavailable at construction time; every call then goes straight to the
// fallback scorer without paying a network timeout per parameter.
type Evaluator struct {
	client      llm.LLMClient
	maxTokens   int
	temperature float64
	logger      *zerolog.Logger
}

// Options tune the judge model invocation.
type Options struct {
	MaxTokens   int
	Temperature float64
}

func NewEvaluator(client llm.LLMClient, opts Options, logger *zerolog.Logger) *Evaluator {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 512
	}
	return &Evaluator{
		client:      client,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		logger:      logger,
	}
}

// EvaluateAll runs every enabled, nonzero-weight parameter against the input
// concurrently. One parameter failing (model error, unparseable reply) never
// aborts the others; it degrades to the heuristic fallback instead.
func (e *Evaluator) EvaluateAll(ctx context.Context, in Input, params []models.ParameterConfig) []models.ParameterScore {
	active := make([]models.ParameterConfig, 0, len(params))
	for _, p := range params {
		if p.Enabled && p.Weight > 0 {
			active = append(active, p)
		}
	}

	if len(active) == 0 {
		return nil
	}

	scores := make([]models.ParameterScore, len(active))
	var wg sync.WaitGroup

	for i, param := range active {
		wg.Add(1)
		go func(i int, param models.ParameterConfig) {
			defer wg.Done()
			scores[i] = e.evaluateOne(ctx, in, param)
		}(i, param)
	}

	wg.Wait()
	return scores
}

func (e *Evaluator) evaluateOne(ctx context.Context, in Input, param models.ParameterConfig) models.ParameterScore {
	result := models.ParameterScore{
		ParameterID: param.ParameterID,
		Weight:      param.Weight,
	}

	if e.client == nil {
		score, reason := fallbackScore(in)
		result.Score = score
		result.Reasoning = reason
		result.Fallback = true
		return result
	}

	prompt := RenderPrompt(in, param)

	resp, err := e.client.InvokeModel(ctx, llm.LLMRequest{
		Prompt:      prompt,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})
	if err != nil {
		// No retry here: in a batch of thousands, degraded evaluation
		// quality beats unbounded latency.
		e.logger.Warn().
			Err(err).
			Str("parameter", param.Name).
			Msg("judge model call failed, using fallback scorer")

		score, reason := fallbackScore(in)
		result.Score = score
		result.Reasoning = reason
		result.Fallback = true
		result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("judge model error: %v", err))
		return result
	}

	parsed := parseReply(resp.Content)
	result.Score = parsed.Score
	result.Reasoning = parsed.Reasoning
	result.Diagnostics = parsed.Diagnostics

	e.logger.Debug().
		Str("parameter", param.Name).
		Int("score", result.Score).
		Msg("parameter evaluated")

	return result
}

// CombineReasoning renders the per-parameter reasonings into one summary
// string stored on the test result.
func CombineReasoning(params []models.ParameterConfig, scores []models.ParameterScore) string {
	if len(scores) == 0 {
		return "No parameter evaluations performed."
	}

	if len(scores) == 1 {
		if reason := strings.TrimSpace(scores[0].Reasoning); reason != "" {
			return reason
		}
		return "Evaluation completed."
	}

	names := make(map[int64]string, len(params))
	for _, p := range params {
		names[p.ParameterID] = p.Name
	}

	var lines []string
	for _, s := range scores {
		reason := strings.TrimSpace(s.Reasoning)
		if reason == "" {
			continue
		}
		name := names[s.ParameterID]
		if name == "" {
			name = fmt.Sprintf("parameter %d", s.ParameterID)
		}
		lines = append(lines, fmt.Sprintf("• %s (%d/100): %s", name, s.Score, reason))
	}

	if len(lines) == 0 {
		return "Evaluation completed but no detailed reasoning was provided."
	}

	return fmt.Sprintf("Evaluation across %d criteria:\n%s", len(scores), strings.Join(lines, "\n"))
}
