package store

import (
	"context"
	"fmt"

	"dialogeval/internal/models"
)

// LoadQuestions returns every question across the run's datasets. Runs
// carrying only the older single-dataset column are still supported.
func (s *Store) LoadQuestions(ctx context.Context, run *models.TestRun) ([]models.Question, error) {
	datasetIDs := run.DatasetIDs
	if len(datasetIDs) == 0 && run.DatasetID != 0 {
		datasetIDs = []int64{run.DatasetID}
	}
	if len(datasetIDs) == 0 {
		return nil, nil
	}

	query := `
	SELECT id, dataset_id, question_text, expected_answer, detect_empathy, no_match
	FROM questions
	WHERE dataset_id = ANY($1)
	ORDER BY dataset_id, id`

	rows, err := s.Pool.Query(ctx, query, datasetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.DatasetID, &q.QuestionText, &q.ExpectedAnswer,
			&q.DetectEmpathy, &q.NoMatch); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return questions, nil
}
