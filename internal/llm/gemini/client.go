package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dialogeval/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client invokes the Generative Language API for judge evaluations.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	ModelID    string
}

func NewClient(apiKey string, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if modelID == "" {
		return nil, fmt.Errorf("gemini model ID is required")
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		BaseURL:    defaultBaseURL,
		APIKey:     apiKey,
		ModelID:    modelID,
	}, nil
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

func (c *Client) InvokeModel(ctx context.Context, request llm.LLMRequest) (*llm.LLMResponse, error) {
	payload := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: request.Prompt}}},
		},
	}
	if request.MaxTokens > 0 || request.Temperature > 0 {
		payload.GenerationConfig = &generationConfig{
			MaxOutputTokens: request.MaxTokens,
			Temperature:     request.Temperature,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("unable to serialize gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.BaseURL, c.ModelID, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to invoke gemini model: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gemini response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini model %s returned status %d: %s", c.ModelID, resp.StatusCode, respBody)
	}

	var response generateContentResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gemini response: %w", err)
	}

	if len(response.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in gemini response")
	}

	candidate := response.Candidates[0]
	var text string
	if len(candidate.Content.Parts) > 0 {
		text = candidate.Content.Parts[0].Text
	}

	return &llm.LLMResponse{
		Content:    text,
		StopReason: candidate.FinishReason,
	}, nil
}

// ListModels returns the identifiers of models visible to this API key.
// Used by the model directory to decide availability.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/models?key=%s", c.BaseURL, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build list models request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to list gemini models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models returned status %d", resp.StatusCode)
	}

	var listResponse struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResponse); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	names := make([]string, 0, len(listResponse.Models))
	for _, m := range listResponse.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
