package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"dialogeval/internal/models"
)

type parameterSeed struct {
	Parameters []seedEntry `yaml:"parameters"`
}

type seedEntry struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	PromptTemplate string `yaml:"prompt_template"`
}

// LoadParameterSeed reads the system-default evaluation parameters shipped
// with the service. These are inserted on first startup when the database
// has no defaults yet.
func LoadParameterSeed() ([]models.EvaluationParameter, error) {
	path := os.Getenv("PARAMETERS_CONFIG_PATH")
	if path == "" {
		path = "configs/parameters.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed parameterSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, err
	}

	if len(seed.Parameters) == 0 {
		return nil, fmt.Errorf("parameter seed %s defines no parameters", path)
	}

	params := make([]models.EvaluationParameter, 0, len(seed.Parameters))
	for _, entry := range seed.Parameters {
		if entry.Name == "" {
			return nil, fmt.Errorf("parameter seed %s contains an unnamed parameter", path)
		}
		params = append(params, models.EvaluationParameter{
			Name:            entry.Name,
			Description:     entry.Description,
			PromptTemplate:  entry.PromptTemplate,
			IsActive:        true,
			IsSystemDefault: true,
		})
	}

	return params, nil
}
