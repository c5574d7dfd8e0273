package store

import (
	"context"
	"fmt"

	"dialogeval/internal/models"
)

// LoadRunParameterConfig returns the run-specific evaluation configuration
// with parameter details resolved. Inactive parameters are dropped here so
// the engine only sees usable entries.
func (s *Store) LoadRunParameterConfig(ctx context.Context, runID int64) ([]models.ParameterConfig, error) {
	query := `
	SELECT c.parameter_id, c.weight, c.enabled, p.name, p.description, p.prompt_template
	FROM test_run_evaluation_configs c
	JOIN evaluation_parameters p ON p.id = c.parameter_id
	WHERE c.test_run_id = $1 AND p.is_active
	ORDER BY c.parameter_id`

	return s.queryParameterConfigs(ctx, query, runID)
}

// LoadUserDefaultConfig returns the user's saved default weighting.
func (s *Store) LoadUserDefaultConfig(ctx context.Context, userID int64) ([]models.ParameterConfig, error) {
	query := `
	SELECT u.parameter_id, u.weight, u.enabled, p.name, p.description, p.prompt_template
	FROM user_evaluation_preferences u
	JOIN evaluation_parameters p ON p.id = u.parameter_id
	WHERE u.user_id = $1 AND p.is_active
	ORDER BY u.parameter_id`

	return s.queryParameterConfigs(ctx, query, userID)
}

func (s *Store) queryParameterConfigs(ctx context.Context, query string, arg any) ([]models.ParameterConfig, error) {
	rows, err := s.Pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to load parameter configs: %w", err)
	}
	defer rows.Close()

	var configs []models.ParameterConfig
	for rows.Next() {
		var c models.ParameterConfig
		if err := rows.Scan(&c.ParameterID, &c.Weight, &c.Enabled, &c.Name,
			&c.Description, &c.PromptTemplate); err != nil {
			return nil, fmt.Errorf("failed to scan parameter config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return configs, nil
}

// LoadActiveParameters lists all active evaluation parameters, used when
// neither run-level nor user-level configuration exists.
func (s *Store) LoadActiveParameters(ctx context.Context) ([]models.EvaluationParameter, error) {
	query := `
	SELECT id, name, description, prompt_template, is_active, is_system_default
	FROM evaluation_parameters
	WHERE is_active
	ORDER BY id`

	rows, err := s.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load evaluation parameters: %w", err)
	}
	defer rows.Close()

	var params []models.EvaluationParameter
	for rows.Next() {
		var p models.EvaluationParameter
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PromptTemplate,
			&p.IsActive, &p.IsSystemDefault); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation parameter: %w", err)
		}
		params = append(params, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return params, nil
}

// SeedDefaultParameters inserts the system-default parameters if none exist
// yet. Called at startup with the built-in parameter seed.
func (s *Store) SeedDefaultParameters(ctx context.Context, params []models.EvaluationParameter) error {
	var count int
	if err := s.Pool.QueryRow(ctx,
		`SELECT count(*) FROM evaluation_parameters WHERE is_system_default`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count default parameters: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range params {
		_, err := tx.Exec(ctx, `
		INSERT INTO evaluation_parameters
		  (name, description, prompt_template, is_active, is_system_default)
		VALUES ($1, $2, $3, TRUE, TRUE)`,
			p.Name, p.Description, p.PromptTemplate)
		if err != nil {
			return fmt.Errorf("failed to seed parameter %q: %w", p.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit parameter seed: %w", err)
	}

	s.logger.Info().Int("parameters", len(params)).Msg("seeded default evaluation parameters")
	return nil
}
