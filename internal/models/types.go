package models

import (
	"time"
)

// RunStatus is the lifecycle state of a test run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further status transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TestRun is one evaluation campaign: a question set executed against a
// conversational agent with a fixed evaluation configuration.
type TestRun struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	CreatedByID       int64  `json:"created_by_id"`
	AgentName         string `json:"agent_name"`
	FlowID            string `json:"flow_id,omitempty"`
	PageID            string `json:"page_id,omitempty"`
	PlaybookID        string `json:"playbook_id,omitempty"`
	LanguageCode      string `json:"language_code"`
	EvaluationModelID string `json:"evaluation_model_id"`
	BatchSize         int    `json:"batch_size"`

	SessionParameters  map[string]string `json:"session_parameters,omitempty"`
	PrePromptMessages  []string          `json:"pre_prompt_messages,omitempty"`
	PostPromptMessages []string          `json:"post_prompt_messages,omitempty"`
	EnableWebhook      bool              `json:"enable_webhook"`

	// Single dataset kept for older runs; multi-dataset runs use DatasetIDs.
	DatasetID  int64   `json:"dataset_id,omitempty"`
	DatasetIDs []int64 `json:"dataset_ids,omitempty"`

	Status             RunStatus  `json:"status"`
	TotalQuestions     int        `json:"total_questions"`
	CompletedQuestions int        `json:"completed_questions"`
	AverageScore       *int       `json:"average_score,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// Question is long-lived reference data owned by a dataset. The
// DetectEmpathy and NoMatch hints are pass-through metadata; the weighted
// engine does not special-case them.
type Question struct {
	ID             int64  `json:"id"`
	DatasetID      int64  `json:"dataset_id"`
	QuestionText   string `json:"question_text"`
	ExpectedAnswer string `json:"expected_answer"`
	DetectEmpathy  bool   `json:"detect_empathy"`
	NoMatch        bool   `json:"no_match"`
}

// EvaluationParameter is a named scoring dimension with a prompt template.
// Templates use {question}, {expected_answer}, {actual_answer} placeholders,
// and custom templates may also use {parameter_name} and
// {parameter_description}.
type EvaluationParameter struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	PromptTemplate  string `json:"prompt_template"`
	IsActive        bool   `json:"is_active"`
	IsSystemDefault bool   `json:"is_system_default"`
}

// ParameterConfig binds one parameter to a run with its weight.
// Weight is an integer percentage. Enabled entries with nonzero weight are
// expected to sum to 100, but the engine normalizes rather than trusting it.
type ParameterConfig struct {
	ParameterID int64 `json:"parameter_id"`
	Weight      int   `json:"weight"`
	Enabled     bool  `json:"enabled"`

	// Resolved at run start from the parameter row.
	Name           string `json:"name,omitempty"`
	Description    string `json:"description,omitempty"`
	PromptTemplate string `json:"prompt_template,omitempty"`
}

// ParameterScore is one judge verdict for one (question, parameter) pair.
// Weight is the snapshot actually used at evaluation time, not a live
// reference to the parameter config.
type ParameterScore struct {
	ParameterID int64    `json:"parameter_id"`
	Score       int      `json:"score"`
	Weight      int      `json:"weight_used"`
	Reasoning   string   `json:"reasoning"`
	Diagnostics []string `json:"diagnostics,omitempty"`
	Fallback    bool     `json:"fallback"`
}

// TestResult is one row per (run, question). The overall score is always
// derived from ParameterScores by the aggregator, never stored on its own.
type TestResult struct {
	QuestionID      int64            `json:"question_id"`
	ActualAnswer    string           `json:"actual_answer"`
	RawResponse     string           `json:"raw_response,omitempty"`
	Reasoning       string           `json:"reasoning,omitempty"`
	ExecutionTimeMs int              `json:"execution_time_ms"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	ParameterScores []ParameterScore `json:"parameter_scores,omitempty"`
}

// RunProgress is the observer-facing snapshot of a run, read from committed
// state only.
type RunProgress struct {
	RunID              int64     `json:"run_id"`
	Status             RunStatus `json:"status"`
	TotalQuestions     int       `json:"total_questions"`
	CompletedQuestions int       `json:"completed_questions"`
	AverageScore       *int      `json:"average_score,omitempty"`
	EstimatedRemaining *int      `json:"estimated_time_remaining_sec,omitempty"`
}
