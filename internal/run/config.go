package run

import (
	"context"

	"github.com/rs/zerolog"

	"dialogeval/internal/dialogflow"
	"dialogeval/internal/models"
)

// Config is the immutable per-run configuration assembled once at run start
// and handed through the coordinator to the conversation and evaluation
// layers.
type Config struct {
	Run        *models.TestRun
	Session    dialogflow.SessionConfig
	Parameters []models.ParameterConfig
}

const defaultBatchSize = 10

// BatchSize returns the run's chunk size with the default applied.
func (c *Config) BatchSize() int {
	if c.Run.BatchSize > 0 {
		return c.Run.BatchSize
	}
	return defaultBatchSize
}

func (c *Config) hasPromptMessages() bool {
	return len(c.Run.PrePromptMessages) > 0 || len(c.Run.PostPromptMessages) > 0
}

func sessionConfig(run *models.TestRun) dialogflow.SessionConfig {
	return dialogflow.SessionConfig{
		AgentName:         run.AgentName,
		FlowID:            run.FlowID,
		PageID:            run.PageID,
		PlaybookID:        run.PlaybookID,
		LanguageCode:      run.LanguageCode,
		SessionParameters: run.SessionParameters,
		EnableWebhook:     run.EnableWebhook,
	}
}

// ConfigStore is the slice of the store needed to resolve a run's parameter
// weighting.
type ConfigStore interface {
	LoadRunParameterConfig(ctx context.Context, runID int64) ([]models.ParameterConfig, error)
	LoadUserDefaultConfig(ctx context.Context, userID int64) ([]models.ParameterConfig, error)
	LoadActiveParameters(ctx context.Context) ([]models.EvaluationParameter, error)
}

// resolveParameters walks the configuration fallback chain: run-specific
// config, then the user's saved defaults, then an even spread across all
// active parameters.
func resolveParameters(ctx context.Context, store ConfigStore, run *models.TestRun, logger *zerolog.Logger) ([]models.ParameterConfig, error) {
	configs, err := store.LoadRunParameterConfig(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if len(configs) > 0 {
		return configs, nil
	}

	configs, err = store.LoadUserDefaultConfig(ctx, run.CreatedByID)
	if err != nil {
		return nil, err
	}
	if len(configs) > 0 {
		logger.Info().Int64("run_id", run.ID).Msg("using user default evaluation config")
		return configs, nil
	}

	params, err := store.LoadActiveParameters(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int64("run_id", run.ID).
		Int("parameters", len(params)).
		Msg("no stored evaluation config, distributing weights evenly")

	return evenSpread(params), nil
}

// evenSpread gives every active parameter an equal integer weight, with the
// division remainder handed to the first parameters so the total is exactly
// 100.
func evenSpread(params []models.EvaluationParameter) []models.ParameterConfig {
	if len(params) == 0 {
		return nil
	}

	base := 100 / len(params)
	remainder := 100 % len(params)

	configs := make([]models.ParameterConfig, 0, len(params))
	for i, p := range params {
		weight := base
		if i < remainder {
			weight++
		}
		configs = append(configs, models.ParameterConfig{
			ParameterID:    p.ID,
			Weight:         weight,
			Enabled:        true,
			Name:           p.Name,
			Description:    p.Description,
			PromptTemplate: p.PromptTemplate,
		})
	}

	return configs
}
