package dialogflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TokenSource supplies a bearer token for the Dialogflow CX REST API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource backed by a fixed token, used for tests and
// for environments where a sidecar refreshes the token out of band.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("no dialogflow access token configured")
	}
	return string(t), nil
}

// Client talks to the Dialogflow CX sessions API over REST. One client is
// safe for concurrent use across sessions.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	logger     *zerolog.Logger

	// baseURLOverride replaces the per-location endpoint when set. Tests
	// point it at a local server.
	baseURLOverride string
}

func NewClient(tokens TokenSource, logger *zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		tokens:     tokens,
		logger:     logger,
	}
}

type detectIntentRequest struct {
	QueryInput  queryInput       `json:"queryInput"`
	QueryParams *queryParameters `json:"queryParams,omitempty"`
}

type queryInput struct {
	Text         textInput `json:"text"`
	LanguageCode string    `json:"languageCode"`
}

type textInput struct {
	Text string `json:"text"`
}

type queryParameters struct {
	Parameters      map[string]string `json:"parameters,omitempty"`
	DisableWebhook  bool              `json:"disableWebhook"`
	CurrentPlaybook string            `json:"currentPlaybook,omitempty"`
	CurrentPage     string            `json:"currentPage,omitempty"`
}

type detectIntentResponse struct {
	QueryResult struct {
		ResponseMessages []json.RawMessage `json:"responseMessages"`
		Intent           struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"intent"`
		IntentDetectionConfidence float64 `json:"intentDetectionConfidence"`
		WebhookStatuses           []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"webhookStatuses"`
		WebhookPayloads []json.RawMessage `json:"webhookPayloads"`
	} `json:"queryResult"`
}

// SendTurn issues one synchronous detectIntent call within the named
// session. Calls sharing a session ID continue the same remote conversation
// state.
func (c *Client) SendTurn(ctx context.Context, cfg SessionConfig, sessionID, text string) (*TurnResult, error) {
	body, err := json.Marshal(c.buildRequest(cfg, text))
	if err != nil {
		return nil, fmt.Errorf("unable to serialize detect intent request: %w", err)
	}

	url, err := c.sessionURL(cfg.AgentName, sessionID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to build detect intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to obtain access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect intent call failed: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Milliseconds()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read detect intent response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyAPIError(resp.StatusCode, raw)
	}

	var decoded detectIntentResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal detect intent response: %w", err)
	}

	messages := decodeMessages(decoded.QueryResult.ResponseMessages)

	statuses := make([]string, 0, len(decoded.QueryResult.WebhookStatuses))
	for _, s := range decoded.QueryResult.WebhookStatuses {
		statuses = append(statuses, s.Message)
	}

	result := &TurnResult{
		QueryText:        text,
		ResponseText:     joinTextMessages(messages),
		Messages:         messages,
		IntentName:       decoded.QueryResult.Intent.DisplayName,
		IntentConfidence: decoded.QueryResult.IntentDetectionConfidence,
		RawPayload:       raw,
		SessionID:        sessionID,
		ExecutionTimeMs:  elapsed,
		Webhook: analyzeWebhook(statuses,
			len(decoded.QueryResult.WebhookPayloads) > 0, cfg.EnableWebhook),
	}

	c.logger.Debug().
		Str("session_id", sessionID).
		Str("intent", result.IntentName).
		Int64("elapsed_ms", elapsed).
		Msg("detect intent turn completed")

	return result, nil
}

// BatchOutcome pairs one text from a SendBatch call with its result or the
// error that replaced it.
type BatchOutcome struct {
	Text   string
	Result *TurnResult
	Err    error
}

// SendBatch issues one detect intent call per text, each in its own fresh
// session, with at most concurrency calls in flight. Outcomes come back in
// input order. Use SendTurn directly when turns must share a session.
func (c *Client) SendBatch(ctx context.Context, cfg SessionConfig, texts []string, sessionPrefix string, concurrency int) []BatchOutcome {
	if concurrency < 1 {
		concurrency = 1
	}

	outcomes := make([]BatchOutcome, len(texts))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			sessionID := fmt.Sprintf("%s-%s", sessionPrefix, uuid.NewString())
			result, err := c.SendTurn(ctx, cfg, sessionID, text)
			outcomes[i] = BatchOutcome{Text: text, Result: result, Err: err}
		}(i, text)
	}
	wg.Wait()

	return outcomes
}

func (c *Client) buildRequest(cfg SessionConfig, text string) detectIntentRequest {
	language := cfg.LanguageCode
	if language == "" {
		language = "en"
	}

	params := &queryParameters{
		Parameters:     cfg.SessionParameters,
		DisableWebhook: !cfg.EnableWebhook,
	}

	switch {
	case cfg.PlaybookID != "":
		params.CurrentPlaybook = cfg.AgentName + "/playbooks/" + cfg.PlaybookID
	case cfg.FlowID != "" && cfg.PageID != "":
		params.CurrentPage = fmt.Sprintf("%s/flows/%s/pages/%s", cfg.AgentName, cfg.FlowID, cfg.PageID)
	}

	return detectIntentRequest{
		QueryInput: queryInput{
			Text:         textInput{Text: text},
			LanguageCode: language,
		},
		QueryParams: params,
	}
}

// sessionURL derives the regional endpoint from the agent resource name,
// projects/{p}/locations/{l}/agents/{a}.
func (c *Client) sessionURL(agentName, sessionID string) (string, error) {
	if c.baseURLOverride != "" {
		return fmt.Sprintf("%s/v3/%s/sessions/%s:detectIntent", c.baseURLOverride, agentName, sessionID), nil
	}

	parts := strings.Split(agentName, "/")
	if len(parts) < 6 || parts[0] != "projects" || parts[2] != "locations" || parts[4] != "agents" {
		return "", fmt.Errorf("invalid agent resource name: %q", agentName)
	}

	location := parts[3]
	host := "dialogflow.googleapis.com"
	if location != "global" {
		host = location + "-dialogflow.googleapis.com"
	}

	return fmt.Sprintf("https://%s/v3/%s/sessions/%s:detectIntent", host, agentName, sessionID), nil
}

// decodeMessages maps the wire response messages onto the closed message
// union, preserving anything unexpected as an unrecognized variant.
func decodeMessages(raw []json.RawMessage) []ResponseMessage {
	messages := make([]ResponseMessage, 0, len(raw))

	for _, item := range raw {
		var fields struct {
			Text *struct {
				Text []string `json:"text"`
			} `json:"text"`
			Payload          json.RawMessage `json:"payload"`
			LiveAgentHandoff json.RawMessage `json:"liveAgentHandoff"`
			PlaybookSuccess  json.RawMessage `json:"playbookSuccess"`
		}
		if err := json.Unmarshal(item, &fields); err != nil {
			messages = append(messages, ResponseMessage{Kind: MessageUnrecognized, Raw: item})
			continue
		}

		switch {
		case fields.Text != nil:
			messages = append(messages, ResponseMessage{Kind: MessageText, Text: fields.Text.Text})
		case fields.Payload != nil:
			messages = append(messages, ResponseMessage{Kind: MessagePayload, Payload: fields.Payload})
		case fields.LiveAgentHandoff != nil:
			messages = append(messages, ResponseMessage{Kind: MessageHandoff, Raw: item})
		case fields.PlaybookSuccess != nil:
			messages = append(messages, ResponseMessage{Kind: MessageSuccess, Raw: item})
		default:
			messages = append(messages, ResponseMessage{Kind: MessageUnrecognized, Raw: item})
		}
	}

	return messages
}

func joinTextMessages(messages []ResponseMessage) string {
	var lines []string
	for _, m := range messages {
		if m.Kind == MessageText {
			lines = append(lines, m.Text...)
		}
	}
	return strings.Join(lines, " ")
}

// classifyAPIError maps remote error payloads onto actionable messages. The
// caller treats all of them as per-turn failures.
func classifyAPIError(statusCode int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	lower := strings.ToLower(detail)

	switch {
	case strings.Contains(lower, "webhook") || strings.Contains(lower, "fulfillment"):
		return &WebhookError{StatusCode: statusCode, Detail: detail}
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("agent not found (status %d): %s", statusCode, detail)
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return fmt.Errorf("permission denied by dialogflow (status %d): %s", statusCode, detail)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("dialogflow quota exceeded (status %d): %s", statusCode, detail)
	default:
		return fmt.Errorf("dialogflow API error (status %d): %s", statusCode, detail)
	}
}

// WebhookError marks a turn whose only failure was the fulfillment webhook.
// Callers degrade it to a webhook diagnostic instead of a failed turn.
type WebhookError struct {
	StatusCode int
	Detail     string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook error (status %d): %s", e.StatusCode, e.Detail)
}

// Diagnostic renders the error as a webhook status string for the result.
func (e *WebhookError) Diagnostic() WebhookInfo {
	lower := strings.ToLower(e.Detail)

	status := "ERROR - webhook error, check webhook configuration"
	switch {
	case strings.Contains(lower, "timeout"):
		status = "ERROR - webhook timeout, endpoint took too long to respond"
	case strings.Contains(lower, "unavailable") || strings.Contains(lower, "connection"):
		status = "ERROR - webhook connection error, unable to reach endpoint"
	case strings.Contains(lower, "authentication") || strings.Contains(lower, "unauthorized"):
		status = "ERROR - webhook authentication error, endpoint rejected request"
	case strings.Contains(lower, "ssl") || strings.Contains(lower, "certificate"):
		status = "ERROR - webhook SSL or certificate error"
	}

	return WebhookInfo{Called: true, Status: status}
}
