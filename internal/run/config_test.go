package run

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"dialogeval/internal/models"
)

func TestEvenSpread_RemainderGoesToFirstParameters(t *testing.T) {
	params := []models.EvaluationParameter{
		{ID: 1, Name: "Similarity Score"},
		{ID: 2, Name: "Completeness"},
		{ID: 3, Name: "Empathy Level"},
	}

	configs := evenSpread(params)

	wantWeights := []int{34, 33, 33}
	total := 0
	for i, cfg := range configs {
		if cfg.Weight != wantWeights[i] {
			t.Errorf("parameter %d weight = %d, want %d", i, cfg.Weight, wantWeights[i])
		}
		if !cfg.Enabled {
			t.Errorf("parameter %d should be enabled", i)
		}
		total += cfg.Weight
	}
	if total != 100 {
		t.Errorf("weights sum to %d, want 100", total)
	}
}

func TestEvenSpread_Empty(t *testing.T) {
	if configs := evenSpread(nil); configs != nil {
		t.Errorf("expected nil for no parameters, got %v", configs)
	}
}

func TestResolveParameters_FallbackChain(t *testing.T) {
	logger := zerolog.Nop()
	run := &models.TestRun{ID: 1, CreatedByID: 7}

	t.Run("run config wins", func(t *testing.T) {
		store := &fakeStore{
			runConfigs:  []models.ParameterConfig{{ParameterID: 1, Weight: 100, Enabled: true}},
			userConfigs: []models.ParameterConfig{{ParameterID: 2, Weight: 100, Enabled: true}},
		}
		configs, err := resolveParameters(context.Background(), store, run, &logger)
		if err != nil {
			t.Fatalf("resolveParameters failed: %v", err)
		}
		if len(configs) != 1 || configs[0].ParameterID != 1 {
			t.Errorf("expected run config, got %+v", configs)
		}
	})

	t.Run("user defaults next", func(t *testing.T) {
		store := &fakeStore{
			userConfigs: []models.ParameterConfig{{ParameterID: 2, Weight: 100, Enabled: true}},
		}
		configs, err := resolveParameters(context.Background(), store, run, &logger)
		if err != nil {
			t.Fatalf("resolveParameters failed: %v", err)
		}
		if len(configs) != 1 || configs[0].ParameterID != 2 {
			t.Errorf("expected user defaults, got %+v", configs)
		}
	})

	t.Run("even spread last", func(t *testing.T) {
		store := &fakeStore{
			activeParams: []models.EvaluationParameter{{ID: 3, Name: "Similarity Score"}},
		}
		configs, err := resolveParameters(context.Background(), store, run, &logger)
		if err != nil {
			t.Fatalf("resolveParameters failed: %v", err)
		}
		if len(configs) != 1 || configs[0].ParameterID != 3 || configs[0].Weight != 100 {
			t.Errorf("expected even spread over active parameters, got %+v", configs)
		}
	})
}
