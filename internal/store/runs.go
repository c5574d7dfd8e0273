package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dialogeval/internal/models"
)

// ErrRunNotFound is returned when a run ID does not resolve to a row.
var ErrRunNotFound = errors.New("test run not found")

func (s *Store) GetRun(ctx context.Context, runID int64) (*models.TestRun, error) {
	query := `
	SELECT
	  id, name, created_by_id, agent_name, flow_id, page_id, playbook_id,
	  language_code, evaluation_model_id, batch_size,
	  session_parameters, pre_prompt_messages, post_prompt_messages,
	  enable_webhook, dataset_id, status, total_questions,
	  completed_questions, average_score, created_at, started_at, completed_at
	FROM test_runs
	WHERE id = $1`

	var run models.TestRun
	var sessionParams, prePrompts, postPrompts []byte
	var datasetID *int64

	err := s.Pool.QueryRow(ctx, query, runID).Scan(
		&run.ID, &run.Name, &run.CreatedByID, &run.AgentName, &run.FlowID,
		&run.PageID, &run.PlaybookID, &run.LanguageCode,
		&run.EvaluationModelID, &run.BatchSize,
		&sessionParams, &prePrompts, &postPrompts,
		&run.EnableWebhook, &datasetID, &run.Status, &run.TotalQuestions,
		&run.CompletedQuestions, &run.AverageScore, &run.CreatedAt,
		&run.StartedAt, &run.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load test run %d: %w", runID, err)
	}

	if datasetID != nil {
		run.DatasetID = *datasetID
	}
	if err := unmarshalJSONColumn(sessionParams, &run.SessionParameters); err != nil {
		return nil, fmt.Errorf("bad session_parameters on run %d: %w", runID, err)
	}
	if err := unmarshalJSONColumn(prePrompts, &run.PrePromptMessages); err != nil {
		return nil, fmt.Errorf("bad pre_prompt_messages on run %d: %w", runID, err)
	}
	if err := unmarshalJSONColumn(postPrompts, &run.PostPromptMessages); err != nil {
		return nil, fmt.Errorf("bad post_prompt_messages on run %d: %w", runID, err)
	}

	run.DatasetIDs, err = s.runDatasetIDs(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &run, nil
}

func (s *Store) runDatasetIDs(ctx context.Context, runID int64) ([]int64, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT dataset_id FROM test_run_datasets WHERE test_run_id = $1 ORDER BY dataset_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run datasets: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dataset id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

// GetRunStatus is the point read used for cancellation checks between
// chunks and by progress observers.
func (s *Store) GetRunStatus(ctx context.Context, runID int64) (models.RunStatus, error) {
	var status models.RunStatus
	err := s.Pool.QueryRow(ctx, `SELECT status FROM test_runs WHERE id = $1`, runID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrRunNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read run status: %w", err)
	}
	return status, nil
}

// MarkRunStarted transitions a pending run to running and snapshots the
// question count. Guarding on the current status keeps the transition
// single-shot even with a concurrent starter.
func (s *Store) MarkRunStarted(ctx context.Context, runID int64, totalQuestions int) error {
	tag, err := s.Pool.Exec(ctx, `
	UPDATE test_runs
	SET status = $1, total_questions = $2, started_at = $3
	WHERE id = $4 AND status = $5`,
		models.StatusRunning, totalQuestions, time.Now().UTC(), runID, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark run %d started: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %d is not pending", runID)
	}

	s.logger.Info().Int64("run_id", runID).Int("total_questions", totalQuestions).Msg("run started")
	return nil
}

// MarkRunFinished records a terminal status. Completed and failed are only
// reachable from pending or running, so a cancel observed mid-flight is
// never overwritten. Finishing as cancelled also stamps completed_at on a
// row an external actor already flipped to cancelled.
func (s *Store) MarkRunFinished(ctx context.Context, runID int64, status models.RunStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}

	query := `
	UPDATE test_runs
	SET status = $1, completed_at = $2
	WHERE id = $3 AND status IN ($4, $5)`
	args := []any{status, time.Now().UTC(), runID, models.StatusPending, models.StatusRunning}

	if status == models.StatusCancelled {
		query = `
		UPDATE test_runs
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status IN ($4, $5, $6) AND completed_at IS NULL`
		args = append(args, models.StatusCancelled)
	}

	if _, err := s.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to finish run %d: %w", runID, err)
	}

	s.logger.Info().Int64("run_id", runID).Str("status", string(status)).Msg("run finished")
	return nil
}

// RequestCancellation flags a running run as cancelled. The coordinator
// observes the new status at the next chunk boundary.
func (s *Store) RequestCancellation(ctx context.Context, runID int64) error {
	tag, err := s.Pool.Exec(ctx, `
	UPDATE test_runs SET status = $1 WHERE id = $2 AND status IN ($3, $4)`,
		models.StatusCancelled, runID, models.StatusPending, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to cancel run %d: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %d cannot be cancelled from its current status", runID)
	}
	return nil
}

// SaveChunk persists one batch of results together with the run's progress
// counters in a single transaction, so observers never see progress advance
// without the backing results.
func (s *Store) SaveChunk(ctx context.Context, runID int64, results []models.TestResult, completedQuestions int, averageScore *int) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin chunk transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, result := range results {
		var resultID int64
		err := tx.QueryRow(ctx, `
		INSERT INTO test_results
		  (test_run_id, question_id, actual_answer, raw_response, reasoning,
		   execution_time_ms, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
			runID, result.QuestionID, result.ActualAnswer, result.RawResponse,
			result.Reasoning, result.ExecutionTimeMs, result.ErrorMessage,
		).Scan(&resultID)
		if err != nil {
			return fmt.Errorf("failed to insert result for question %d: %w", result.QuestionID, err)
		}

		for _, score := range result.ParameterScores {
			_, err := tx.Exec(ctx, `
			INSERT INTO test_result_parameter_scores
			  (test_result_id, parameter_id, score, weight_used, reasoning, is_fallback)
			VALUES ($1, $2, $3, $4, $5, $6)`,
				resultID, score.ParameterID, score.Score, score.Weight,
				score.Reasoning, score.Fallback)
			if err != nil {
				return fmt.Errorf("failed to insert parameter score: %w", err)
			}
		}
	}

	_, err = tx.Exec(ctx, `
	UPDATE test_runs SET completed_questions = $1, average_score = $2 WHERE id = $3`,
		completedQuestions, averageScore, runID)
	if err != nil {
		return fmt.Errorf("failed to update run progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunk: %w", err)
	}

	s.logger.Info().
		Int64("run_id", runID).
		Int("chunk_results", len(results)).
		Int("completed_questions", completedQuestions).
		Msg("chunk persisted")

	return nil
}

// GetProgress returns the observer-facing snapshot of a run.
func (s *Store) GetProgress(ctx context.Context, runID int64) (*models.RunProgress, error) {
	query := `
	SELECT id, status, total_questions, completed_questions, average_score, started_at
	FROM test_runs
	WHERE id = $1`

	var progress models.RunProgress
	var startedAt *time.Time

	err := s.Pool.QueryRow(ctx, query, runID).Scan(
		&progress.RunID, &progress.Status, &progress.TotalQuestions,
		&progress.CompletedQuestions, &progress.AverageScore, &startedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run progress: %w", err)
	}

	progress.EstimatedRemaining = estimateRemaining(&progress, startedAt, time.Now())
	return &progress, nil
}

// estimateRemaining projects time left from observed throughput. Nil until
// the run is underway and at least one question has completed.
func estimateRemaining(p *models.RunProgress, startedAt *time.Time, now time.Time) *int {
	if p.Status != models.StatusRunning || startedAt == nil || p.CompletedQuestions == 0 {
		return nil
	}

	elapsed := now.Sub(*startedAt).Seconds()
	if elapsed <= 0 {
		return nil
	}

	perQuestion := elapsed / float64(p.CompletedQuestions)
	remaining := int(perQuestion * float64(p.TotalQuestions-p.CompletedQuestions))
	return &remaining
}

func unmarshalJSONColumn(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
