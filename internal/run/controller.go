package run

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"dialogeval/internal/judge"
	"dialogeval/internal/llm"
	"dialogeval/internal/models"
)

// Store is the full persistence surface the controller depends on.
type Store interface {
	ConfigStore
	ChunkStore
	GetRun(ctx context.Context, runID int64) (*models.TestRun, error)
	LoadQuestions(ctx context.Context, run *models.TestRun) ([]models.Question, error)
	MarkRunStarted(ctx context.Context, runID int64, totalQuestions int) error
	MarkRunFinished(ctx context.Context, runID int64, status models.RunStatus) error
}

// ModelResolver resolves a judge model identifier to a usable client.
type ModelResolver interface {
	Resolve(ctx context.Context, modelID string) (llm.LLMClient, error)
}

// Controller owns the run lifecycle state machine. It assembles the per-run
// configuration, resolves the judge model once, delegates the question set
// to the coordinator and records the terminal transition.
type Controller struct {
	store    Store
	runner   ConversationRunner
	resolver ModelResolver
	judge    judge.Options
	batch    CoordinatorOptions
	logger   *zerolog.Logger
}

func NewController(store Store, runner ConversationRunner, resolver ModelResolver, judgeOpts judge.Options, batchOpts CoordinatorOptions, logger *zerolog.Logger) *Controller {
	return &Controller{
		store:    store,
		runner:   runner,
		resolver: resolver,
		judge:    judgeOpts,
		batch:    batchOpts,
		logger:   logger,
	}
}

// Start executes one run end to end. Every failure path ends in a terminal
// status; a run is never left stuck in running.
func (c *Controller) Start(ctx context.Context, runID int64) (err error) {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.StatusPending {
		return fmt.Errorf("run %d is %s, only pending runs can start", runID, run.Status)
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Int64("run_id", runID).Any("panic", r).Msg("run panicked")
			c.fail(ctx, runID)
			err = fmt.Errorf("run %d aborted: %v", runID, r)
		}
	}()

	parameters, err := resolveParameters(ctx, c.store, run, c.logger)
	if err != nil {
		c.fail(ctx, runID)
		return fmt.Errorf("failed to resolve evaluation config: %w", err)
	}

	questions, err := c.store.LoadQuestions(ctx, run)
	if err != nil {
		c.fail(ctx, runID)
		return fmt.Errorf("failed to load questions: %w", err)
	}
	if len(questions) == 0 {
		c.logger.Error().Int64("run_id", runID).Msg("run has no questions")
		c.fail(ctx, runID)
		return fmt.Errorf("run %d has no questions", runID)
	}

	if err := c.store.MarkRunStarted(ctx, runID, len(questions)); err != nil {
		return err
	}

	evaluator := c.buildEvaluator(ctx, run.EvaluationModelID)
	coordinator := NewCoordinator(c.store, c.runner, evaluator, c.batch, c.logger)

	cfg := Config{
		Run:        run,
		Session:    sessionConfig(run),
		Parameters: parameters,
	}

	switch err := coordinator.Process(ctx, cfg, questions); {
	case errors.Is(err, ErrCancelled):
		return c.store.MarkRunFinished(ctx, runID, models.StatusCancelled)
	case err != nil:
		c.logger.Error().Int64("run_id", runID).Err(err).Msg("run failed")
		c.fail(ctx, runID)
		return err
	default:
		return c.store.MarkRunFinished(ctx, runID, models.StatusCompleted)
	}
}

// buildEvaluator resolves the judge model once per run. An unavailable
// model yields an evaluator pinned to the heuristic fallback path.
func (c *Controller) buildEvaluator(ctx context.Context, modelID string) *judge.Evaluator {
	client, err := c.resolver.Resolve(ctx, modelID)
	if err != nil {
		c.logger.Warn().
			Str("model_id", modelID).
			Err(err).
			Msg("judge model unavailable, run will use heuristic scoring")
		client = nil
	}
	return judge.NewEvaluator(client, c.judge, c.logger)
}

func (c *Controller) fail(ctx context.Context, runID int64) {
	if err := c.store.MarkRunFinished(ctx, runID, models.StatusFailed); err != nil {
		c.logger.Error().Int64("run_id", runID).Err(err).Msg("failed to record failed status")
	}
}
