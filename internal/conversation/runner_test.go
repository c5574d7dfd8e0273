package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dialogeval/internal/dialogflow"
)

type sentTurn struct {
	sessionID string
	text      string
}

// fakeSender replays canned responses and records every turn it receives.
type fakeSender struct {
	turns []sentTurn
	// failOn makes SendTurn fail when it receives this text.
	failOn string
	// webhookFailOn returns a webhook error for this text.
	webhookFailOn string
}

func (f *fakeSender) SendTurn(ctx context.Context, cfg dialogflow.SessionConfig, sessionID, text string) (*dialogflow.TurnResult, error) {
	f.turns = append(f.turns, sentTurn{sessionID: sessionID, text: text})

	if text == f.failOn {
		return nil, errors.New("quota exceeded")
	}
	if text == f.webhookFailOn {
		return nil, &dialogflow.WebhookError{StatusCode: 500, Detail: "webhook timeout"}
	}

	return &dialogflow.TurnResult{
		QueryText:       text,
		ResponseText:    "reply to " + text,
		IntentName:      "intent-" + text,
		SessionID:       sessionID,
		ExecutionTimeMs: 5,
		Webhook:         dialogflow.WebhookInfo{Status: "disabled"},
	}, nil
}

func newTestRunner(sender TurnSender) *Runner {
	logger := zerolog.Nop()
	return NewRunner(sender, Options{InterTurnDelay: time.Millisecond}, &logger)
}

func TestRun_SingleTurn(t *testing.T) {
	sender := &fakeSender{}

	outcome := newTestRunner(sender).Run(context.Background(), dialogflow.SessionConfig{}, Request{Question: "Q"})

	if outcome.Failed() {
		t.Fatalf("unexpected failure: %s", outcome.ErrorMessage)
	}
	if outcome.ResponseText != "reply to Q" {
		t.Errorf("unexpected response: %q", outcome.ResponseText)
	}
	if len(sender.turns) != 1 {
		t.Errorf("expected exactly one turn, got %d", len(sender.turns))
	}
	if len(outcome.Transcript) != 1 || outcome.Transcript[0].Type != "main_question" {
		t.Errorf("unexpected transcript: %+v", outcome.Transcript)
	}
}

func TestRun_MessageSequenceOrdering(t *testing.T) {
	sender := &fakeSender{}

	outcome := newTestRunner(sender).Run(context.Background(), dialogflow.SessionConfig{}, Request{
		Question:    "Q",
		PrePrompts:  []string{"A", "B"},
		PostPrompts: []string{"C"},
	})

	if outcome.Failed() {
		t.Fatalf("unexpected failure: %s", outcome.ErrorMessage)
	}

	wantOrder := []string{"A", "B", "Q", "C"}
	if len(sender.turns) != len(wantOrder) {
		t.Fatalf("expected %d turns, got %d", len(wantOrder), len(sender.turns))
	}
	for i, want := range wantOrder {
		if sender.turns[i].text != want {
			t.Errorf("turn %d = %q, want %q", i, sender.turns[i].text, want)
		}
	}

	// Primary response comes from the main question only.
	if outcome.ResponseText != "reply to Q" {
		t.Errorf("primary response = %q, want main question's reply", outcome.ResponseText)
	}

	wantTypes := []string{"pre_prompt", "pre_prompt", "main_question", "post_prompt"}
	for i, want := range wantTypes {
		if outcome.Transcript[i].Type != want {
			t.Errorf("transcript %d type = %q, want %q", i, outcome.Transcript[i].Type, want)
		}
	}
}

func TestRun_AllTurnsShareOneSession(t *testing.T) {
	sender := &fakeSender{}

	newTestRunner(sender).Run(context.Background(), dialogflow.SessionConfig{}, Request{
		Question:   "Q",
		PrePrompts: []string{"A"},
	})

	if len(sender.turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(sender.turns))
	}
	if sender.turns[0].sessionID != sender.turns[1].sessionID {
		t.Error("sequence turns must share a session")
	}
}

func TestRun_SessionsAreIsolatedAcrossQuestions(t *testing.T) {
	sender := &fakeSender{}
	runner := newTestRunner(sender)

	runner.Run(context.Background(), dialogflow.SessionConfig{}, Request{Question: "Q1"})
	runner.Run(context.Background(), dialogflow.SessionConfig{}, Request{Question: "Q2"})

	if sender.turns[0].sessionID == sender.turns[1].sessionID {
		t.Error("each question must get a fresh session")
	}
}

func TestRun_TurnFailureProducesErrorOutcome(t *testing.T) {
	sender := &fakeSender{failOn: "Q"}

	outcome := newTestRunner(sender).Run(context.Background(), dialogflow.SessionConfig{}, Request{Question: "Q"})

	if !outcome.Failed() {
		t.Fatal("expected failed outcome")
	}
	if outcome.ExecutionTimeMs != 0 {
		t.Errorf("failed outcome must have zero execution time, got %d", outcome.ExecutionTimeMs)
	}
	if outcome.ErrorMessage == "" {
		t.Error("expected error message")
	}
}

func TestRun_PrePromptFailureNamesTheStage(t *testing.T) {
	sender := &fakeSender{failOn: "B"}

	outcome := newTestRunner(sender).Run(context.Background(), dialogflow.SessionConfig{}, Request{
		Question:   "Q",
		PrePrompts: []string{"A", "B"},
	})

	if !outcome.Failed() {
		t.Fatal("expected failed outcome")
	}
	want := fmt.Sprintf("pre-prompt message 2 (%q) failed", "B")
	if !strings.HasPrefix(outcome.ErrorMessage, want) {
		t.Errorf("error message %q does not name failing stage", outcome.ErrorMessage)
	}
	// The main question is never sent once a pre-prompt fails.
	for _, turn := range sender.turns {
		if turn.text == "Q" {
			t.Error("main question sent despite pre-prompt failure")
		}
	}
}

func TestRun_WebhookErrorIsNonFatal(t *testing.T) {
	sender := &fakeSender{webhookFailOn: "Q"}

	outcome := newTestRunner(sender).Run(context.Background(), dialogflow.SessionConfig{}, Request{Question: "Q"})

	if outcome.Failed() {
		t.Fatalf("webhook error must not fail the turn: %s", outcome.ErrorMessage)
	}
	if outcome.ResponseText != "Agent response unavailable due to webhook error" {
		t.Errorf("unexpected response text: %q", outcome.ResponseText)
	}
	if !outcome.Webhook.Called || outcome.Webhook.Status == "" {
		t.Errorf("expected webhook diagnostic, got %+v", outcome.Webhook)
	}
}

// fakeBatchSender implements the batch fan-out itself and records how it
// was invoked.
type fakeBatchSender struct {
	fakeSender
	prefix      string
	concurrency int
}

func (f *fakeBatchSender) SendBatch(ctx context.Context, cfg dialogflow.SessionConfig, texts []string, sessionPrefix string, concurrency int) []dialogflow.BatchOutcome {
	f.prefix = sessionPrefix
	f.concurrency = concurrency

	outcomes := make([]dialogflow.BatchOutcome, len(texts))
	for i, text := range texts {
		sessionID := fmt.Sprintf("%s-%d", sessionPrefix, i)
		result, err := f.SendTurn(ctx, cfg, sessionID, text)
		outcomes[i] = dialogflow.BatchOutcome{Text: text, Result: result, Err: err}
	}
	return outcomes
}

func TestRunBatch_DelegatesToBatchSender(t *testing.T) {
	sender := &fakeBatchSender{fakeSender: fakeSender{failOn: "bad", webhookFailOn: "hooked"}}

	outcomes := newTestRunner(sender).RunBatch(context.Background(), dialogflow.SessionConfig{},
		[]string{"Q1", "bad", "hooked"}, 3)

	if sender.concurrency != 3 {
		t.Errorf("concurrency not forwarded: %d", sender.concurrency)
	}
	if sender.prefix == "" {
		t.Error("expected a session prefix")
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}

	if outcomes[0].Failed() || outcomes[0].ResponseText != "reply to Q1" {
		t.Errorf("unexpected first outcome: %+v", outcomes[0])
	}
	if len(outcomes[0].Transcript) != 1 || outcomes[0].Transcript[0].Type != "main_question" {
		t.Errorf("batch outcome missing main transcript turn: %+v", outcomes[0].Transcript)
	}

	if !outcomes[1].Failed() || !strings.Contains(outcomes[1].ErrorMessage, "quota exceeded") {
		t.Errorf("hard failure not surfaced: %+v", outcomes[1])
	}

	if outcomes[2].Failed() {
		t.Errorf("webhook error must not fail the outcome: %+v", outcomes[2])
	}
	if outcomes[2].ResponseText != "Agent response unavailable due to webhook error" {
		t.Errorf("webhook error not degraded: %q", outcomes[2].ResponseText)
	}
	if !strings.Contains(outcomes[2].Webhook.Status, "timeout") {
		t.Errorf("webhook diagnostic missing: %+v", outcomes[2].Webhook)
	}
}

func TestRunBatch_FallsBackToSingleTurns(t *testing.T) {
	sender := &fakeSender{}

	outcomes := newTestRunner(sender).RunBatch(context.Background(), dialogflow.SessionConfig{},
		[]string{"Q1", "Q2"}, 1)

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for i, outcome := range outcomes {
		if outcome.Failed() {
			t.Errorf("outcome %d failed: %s", i, outcome.ErrorMessage)
		}
	}

	sessions := map[string]bool{}
	for _, turn := range sender.turns {
		sessions[turn.sessionID] = true
	}
	if len(sessions) != 2 {
		t.Errorf("expected 2 distinct sessions, got %d", len(sessions))
	}
}
