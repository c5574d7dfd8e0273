package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dialogeval/internal/aggregate"
	"dialogeval/internal/conversation"
	"dialogeval/internal/dialogflow"
	"dialogeval/internal/judge"
	"dialogeval/internal/models"
)

// ErrCancelled reports that the run's status was externally flipped to
// cancelled and processing stopped at a chunk boundary.
var ErrCancelled = errors.New("run cancelled")

// ConversationRunner drives questions through the agent, one conversation
// per question. RunBatch covers the single-turn case; Run carries the
// optional message sequence.
type ConversationRunner interface {
	Run(ctx context.Context, cfg dialogflow.SessionConfig, req conversation.Request) conversation.Outcome
	RunBatch(ctx context.Context, cfg dialogflow.SessionConfig, questions []string, concurrency int) []conversation.Outcome
}

// Evaluator scores one answer across the enabled parameters.
type Evaluator interface {
	EvaluateAll(ctx context.Context, in judge.Input, params []models.ParameterConfig) []models.ParameterScore
}

// ChunkStore is the persistence surface the coordinator needs.
type ChunkStore interface {
	SaveChunk(ctx context.Context, runID int64, results []models.TestResult, completedQuestions int, averageScore *int) error
	GetRunStatus(ctx context.Context, runID int64) (models.RunStatus, error)
}

// Coordinator applies the conversation runner and evaluator to the full
// question set in fixed-size chunks, persisting each chunk before the next
// one starts.
type Coordinator struct {
	store     ChunkStore
	runner    ConversationRunner
	evaluator Evaluator
	logger    *zerolog.Logger

	// interChunkDelay spaces chunks to respect remote rate limits.
	interChunkDelay time.Duration
	// sequentialDelay spaces conversations when message sequences force
	// them to run one at a time.
	sequentialDelay time.Duration
}

// CoordinatorOptions tune batch pacing.
type CoordinatorOptions struct {
	InterChunkDelay time.Duration
	SequentialDelay time.Duration
}

func NewCoordinator(store ChunkStore, runner ConversationRunner, evaluator Evaluator, opts CoordinatorOptions, logger *zerolog.Logger) *Coordinator {
	if opts.InterChunkDelay == 0 {
		opts.InterChunkDelay = time.Second
	}
	if opts.SequentialDelay == 0 {
		opts.SequentialDelay = 200 * time.Millisecond
	}
	return &Coordinator{
		store:           store,
		runner:          runner,
		evaluator:       evaluator,
		logger:          logger,
		interChunkDelay: opts.InterChunkDelay,
		sequentialDelay: opts.SequentialDelay,
	}
}

// Process executes every question for the run. Results are persisted chunk
// by chunk together with updated progress counters; cancellation is honored
// between chunks, never mid-chunk.
func (c *Coordinator) Process(ctx context.Context, cfg Config, questions []models.Question) error {
	batchSize := cfg.BatchSize()
	var allResults []models.TestResult

	for offset := 0; offset < len(questions); offset += batchSize {
		end := min(offset+batchSize, len(questions))
		chunk := questions[offset:end]

		c.logger.Info().
			Int64("run_id", cfg.Run.ID).
			Int("chunk_start", offset).
			Int("chunk_size", len(chunk)).
			Msg("processing chunk")

		outcomes := c.runConversations(ctx, cfg, chunk)
		results := c.evaluateOutcomes(ctx, cfg, chunk, outcomes)

		allResults = append(allResults, results...)
		averageScore := aggregate.Mean(allResults)

		if err := c.store.SaveChunk(ctx, cfg.Run.ID, results, len(allResults), averageScore); err != nil {
			return fmt.Errorf("failed to persist chunk at offset %d: %w", offset, err)
		}

		status, err := c.store.GetRunStatus(ctx, cfg.Run.ID)
		if err != nil {
			return fmt.Errorf("failed to re-read run status: %w", err)
		}
		if status == models.StatusCancelled {
			c.logger.Info().
				Int64("run_id", cfg.Run.ID).
				Int("completed_questions", len(allResults)).
				Msg("cancellation observed, stopping before next chunk")
			return ErrCancelled
		}

		if end < len(questions) {
			c.pause(ctx, c.interChunkDelay)
		}
	}

	return nil
}

// runConversations collects one outcome per question in chunk order. With
// prompt messages each question is already a sequential multi-turn session,
// so questions run one at a time with spacing; otherwise the whole chunk
// goes out as one concurrent single-turn batch.
func (c *Coordinator) runConversations(ctx context.Context, cfg Config, chunk []models.Question) []conversation.Outcome {
	if cfg.hasPromptMessages() {
		outcomes := make([]conversation.Outcome, len(chunk))
		for i, question := range chunk {
			outcomes[i] = c.runner.Run(ctx, cfg.Session, conversation.Request{
				Question:    question.QuestionText,
				PrePrompts:  cfg.Run.PrePromptMessages,
				PostPrompts: cfg.Run.PostPromptMessages,
			})
			if i < len(chunk)-1 {
				c.pause(ctx, c.sequentialDelay)
			}
		}
		return outcomes
	}

	texts := make([]string, len(chunk))
	for i, question := range chunk {
		texts[i] = question.QuestionText
	}
	return c.runner.RunBatch(ctx, cfg.Session, texts, len(chunk))
}

// evaluateOutcomes fans the chunk's successful conversations out to the
// evaluator concurrently. A failed conversation still yields a result row
// carrying its error message.
func (c *Coordinator) evaluateOutcomes(ctx context.Context, cfg Config, chunk []models.Question, outcomes []conversation.Outcome) []models.TestResult {
	results := make([]models.TestResult, len(chunk))

	var wg sync.WaitGroup
	for i := range chunk {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.buildResult(ctx, cfg, chunk[i], outcomes[i])
		}(i)
	}
	wg.Wait()

	return results
}

func (c *Coordinator) buildResult(ctx context.Context, cfg Config, question models.Question, outcome conversation.Outcome) models.TestResult {
	result := models.TestResult{
		QuestionID:      question.ID,
		ActualAnswer:    outcome.ResponseText,
		RawResponse:     c.encodeRawResponse(outcome),
		ExecutionTimeMs: int(outcome.ExecutionTimeMs),
		ErrorMessage:    outcome.ErrorMessage,
	}

	if outcome.Failed() {
		return result
	}

	scores := c.evaluator.EvaluateAll(ctx, judge.Input{
		Question:       question.QuestionText,
		ExpectedAnswer: question.ExpectedAnswer,
		ActualAnswer:   outcome.ResponseText,
	}, cfg.Parameters)

	result.ParameterScores = scores
	result.Reasoning = judge.CombineReasoning(cfg.Parameters, scores)

	return result
}

// rawResponseEnvelope is the persisted raw_response document: the agent's
// payload for the main turn plus the full transcript and webhook trace, so
// diagnostics and export survive past the in-memory outcome.
type rawResponseEnvelope struct {
	SessionID       string                  `json:"session_id,omitempty"`
	AgentPayload    json.RawMessage         `json:"agent_payload,omitempty"`
	MessageSequence []conversation.Turn     `json:"message_sequence,omitempty"`
	WebhookInfo     *dialogflow.WebhookInfo `json:"webhook_info,omitempty"`
}

func (c *Coordinator) encodeRawResponse(outcome conversation.Outcome) string {
	envelope := rawResponseEnvelope{
		SessionID:       outcome.SessionID,
		AgentPayload:    json.RawMessage(outcome.RawPayload),
		MessageSequence: outcome.Transcript,
	}
	if outcome.Webhook.Called || outcome.Webhook.Status != "" {
		webhook := outcome.Webhook
		envelope.WebhookInfo = &webhook
	}

	encoded, err := json.Marshal(envelope)
	if err != nil {
		c.logger.Warn().Err(err).Msg("could not encode raw response envelope")
		return string(outcome.RawPayload)
	}
	return string(encoded)
}

func (c *Coordinator) pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
