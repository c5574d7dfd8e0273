package dialogflow

import "encoding/json"

// MessageKind tags the variants of a response message returned by the agent.
type MessageKind string

const (
	MessageText         MessageKind = "text"
	MessagePayload      MessageKind = "payload"
	MessageHandoff      MessageKind = "handoff"
	MessageSuccess      MessageKind = "success"
	MessageUnrecognized MessageKind = "unrecognized"
)

// ResponseMessage is one fulfillment message from the agent. The remote API
// returns several message shapes; they are modeled as a closed union with
// Kind as the discriminator and Raw preserving the original payload for the
// unrecognized case.
type ResponseMessage struct {
	Kind MessageKind `json:"kind"`

	// Text holds the message lines when Kind is MessageText.
	Text []string `json:"text,omitempty"`

	// Payload holds the custom payload blob when Kind is MessagePayload.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Raw is the original wire message, kept for unrecognized variants.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// SessionConfig addresses the agent under test for one conversation session.
// FlowID/PageID and PlaybookID are alternative selectors; when PlaybookID is
// set the flow and page fields are ignored.
type SessionConfig struct {
	AgentName         string
	FlowID            string
	PageID            string
	PlaybookID        string
	LanguageCode      string
	SessionParameters map[string]string
	EnableWebhook     bool
}

// WebhookInfo summarizes webhook activity observed on one turn. Webhook
// failures are diagnostics attached to the result, never turn failures.
type WebhookInfo struct {
	Called bool   `json:"called"`
	Status string `json:"status"`
}

// TurnResult is the outcome of one synchronous turn against the agent.
type TurnResult struct {
	QueryText        string            `json:"query_text"`
	ResponseText     string            `json:"response_text"`
	Messages         []ResponseMessage `json:"messages"`
	IntentName       string            `json:"intent_name"`
	IntentConfidence float64           `json:"intent_confidence"`
	RawPayload       json.RawMessage   `json:"raw_payload"`
	SessionID        string            `json:"session_id"`
	ExecutionTimeMs  int64             `json:"execution_time_ms"`
	Webhook          WebhookInfo       `json:"webhook"`
}
