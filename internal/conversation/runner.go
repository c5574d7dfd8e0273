package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dialogeval/internal/dialogflow"
)

// TurnSender is the conversation API surface the runner depends on.
type TurnSender interface {
	SendTurn(ctx context.Context, cfg dialogflow.SessionConfig, sessionID, text string) (*dialogflow.TurnResult, error)
}

// BatchSender is implemented by senders that can fan single-turn calls out
// themselves, one fresh session per text.
type BatchSender interface {
	SendBatch(ctx context.Context, cfg dialogflow.SessionConfig, texts []string, sessionPrefix string, concurrency int) []dialogflow.BatchOutcome
}

// Turn is one entry in a conversation transcript.
type Turn struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Response string `json:"response"`
	Intent   string `json:"intent"`
}

const (
	turnPrePrompt  = "pre_prompt"
	turnMain       = "main_question"
	turnPostPrompt = "post_prompt"
)

// Outcome is the result of driving one question through the agent. Failed
// conversations carry ErrorMessage and a zero execution time; the question
// is still recorded so one bad prompt never aborts a batch.
type Outcome struct {
	SessionID       string
	ResponseText    string
	RawPayload      []byte
	ExecutionTimeMs int64
	Webhook         dialogflow.WebhookInfo
	Transcript      []Turn
	ErrorMessage    string
}

func (o *Outcome) Failed() bool { return o.ErrorMessage != "" }

// Request describes one question plus the optional message sequence wrapped
// around it.
type Request struct {
	Question    string
	PrePrompts  []string
	PostPrompts []string
}

// Runner conducts conversations with the agent under test. Each Run uses a
// fresh session so questions never share remote conversation state.
type Runner struct {
	sender TurnSender
	delay  time.Duration
	logger *zerolog.Logger
}

// Options tune runner behavior.
type Options struct {
	// InterTurnDelay spaces sequential turns within one session to keep
	// remote ordering stable. Not a correctness requirement.
	InterTurnDelay time.Duration
}

func NewRunner(sender TurnSender, opts Options, logger *zerolog.Logger) *Runner {
	if opts.InterTurnDelay == 0 {
		opts.InterTurnDelay = 150 * time.Millisecond
	}
	return &Runner{
		sender: sender,
		delay:  opts.InterTurnDelay,
		logger: logger,
	}
}

// Run drives one question through the agent. Without pre or post prompts it
// issues a single turn; otherwise it walks the full message sequence inside
// one session and surfaces only the main question's turn as the primary
// result, with the full transcript retained for diagnostics.
func (r *Runner) Run(ctx context.Context, cfg dialogflow.SessionConfig, req Request) Outcome {
	sessionID := uuid.NewString()

	if len(req.PrePrompts) == 0 && len(req.PostPrompts) == 0 {
		return r.singleTurn(ctx, cfg, sessionID, req.Question)
	}
	return r.messageSequence(ctx, cfg, sessionID, req)
}

// RunBatch drives a set of independent single-turn questions, at most
// concurrency in flight, one fresh session each. Senders that implement
// BatchSender handle the fan-out themselves; message sequences never take
// this path.
func (r *Runner) RunBatch(ctx context.Context, cfg dialogflow.SessionConfig, questions []string, concurrency int) []Outcome {
	if batcher, ok := r.sender.(BatchSender); ok {
		raw := batcher.SendBatch(ctx, cfg, questions, uuid.NewString(), concurrency)
		outcomes := make([]Outcome, len(raw))
		for i, out := range raw {
			outcomes[i] = r.batchOutcome(out)
		}
		return outcomes
	}

	outcomes := make([]Outcome, len(questions))
	sem := make(chan struct{}, max(concurrency, 1))
	var wg sync.WaitGroup
	for i, question := range questions {
		wg.Add(1)
		go func(i int, question string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = r.singleTurn(ctx, cfg, uuid.NewString(), question)
		}(i, question)
	}
	wg.Wait()

	return outcomes
}

func (r *Runner) batchOutcome(out dialogflow.BatchOutcome) Outcome {
	result := out.Result
	if out.Err != nil {
		var webhookErr *dialogflow.WebhookError
		if !errors.As(out.Err, &webhookErr) {
			return r.failedOutcome("", out.Text, out.Err)
		}
		r.logger.Warn().
			Err(out.Err).
			Msg("webhook error during batch turn, continuing with diagnostic")
		result = &dialogflow.TurnResult{
			QueryText:    out.Text,
			ResponseText: "Agent response unavailable due to webhook error",
			Webhook:      webhookErr.Diagnostic(),
		}
	}

	return Outcome{
		SessionID:       result.SessionID,
		ResponseText:    result.ResponseText,
		RawPayload:      result.RawPayload,
		ExecutionTimeMs: result.ExecutionTimeMs,
		Webhook:         result.Webhook,
		Transcript: []Turn{
			{Type: turnMain, Message: out.Text, Response: result.ResponseText, Intent: result.IntentName},
		},
	}
}

func (r *Runner) singleTurn(ctx context.Context, cfg dialogflow.SessionConfig, sessionID, question string) Outcome {
	result, err := r.sendTurn(ctx, cfg, sessionID, question)
	if err != nil {
		return r.failedOutcome(sessionID, question, err)
	}

	return Outcome{
		SessionID:       sessionID,
		ResponseText:    result.ResponseText,
		RawPayload:      result.RawPayload,
		ExecutionTimeMs: result.ExecutionTimeMs,
		Webhook:         result.Webhook,
		Transcript: []Turn{
			{Type: turnMain, Message: question, Response: result.ResponseText, Intent: result.IntentName},
		},
	}
}

func (r *Runner) messageSequence(ctx context.Context, cfg dialogflow.SessionConfig, sessionID string, req Request) Outcome {
	r.logger.Debug().
		Str("session_id", sessionID).
		Int("pre_prompts", len(req.PrePrompts)).
		Int("post_prompts", len(req.PostPrompts)).
		Msg("starting message sequence")

	start := time.Now()
	var transcript []Turn

	for i, message := range req.PrePrompts {
		result, err := r.sendTurn(ctx, cfg, sessionID, message)
		if err != nil {
			return r.failedOutcome(sessionID, req.Question,
				fmt.Errorf("pre-prompt message %d (%q) failed: %w", i+1, message, err))
		}
		transcript = append(transcript, Turn{
			Type: turnPrePrompt, Message: message,
			Response: result.ResponseText, Intent: result.IntentName,
		})
		r.pause(ctx)
	}

	main, err := r.sendTurn(ctx, cfg, sessionID, req.Question)
	if err != nil {
		return r.failedOutcome(sessionID, req.Question,
			fmt.Errorf("main question failed after %d pre-prompt messages: %w", len(req.PrePrompts), err))
	}
	transcript = append(transcript, Turn{
		Type: turnMain, Message: req.Question,
		Response: main.ResponseText, Intent: main.IntentName,
	})

	for i, message := range req.PostPrompts {
		r.pause(ctx)
		result, err := r.sendTurn(ctx, cfg, sessionID, message)
		if err != nil {
			return r.failedOutcome(sessionID, req.Question,
				fmt.Errorf("post-prompt message %d (%q) failed: %w", i+1, message, err))
		}
		transcript = append(transcript, Turn{
			Type: turnPostPrompt, Message: message,
			Response: result.ResponseText, Intent: result.IntentName,
		})
	}

	return Outcome{
		SessionID:       sessionID,
		ResponseText:    main.ResponseText,
		RawPayload:      main.RawPayload,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Webhook:         main.Webhook,
		Transcript:      transcript,
	}
}

// sendTurn degrades webhook failures to a substitute turn result. The agent
// could not fulfill the request, but that is a webhook diagnostic, not a
// conversation failure.
func (r *Runner) sendTurn(ctx context.Context, cfg dialogflow.SessionConfig, sessionID, text string) (*dialogflow.TurnResult, error) {
	result, err := r.sender.SendTurn(ctx, cfg, sessionID, text)
	if err == nil {
		return result, nil
	}

	var webhookErr *dialogflow.WebhookError
	if errors.As(err, &webhookErr) {
		r.logger.Warn().
			Str("session_id", sessionID).
			Err(err).
			Msg("webhook error during turn, continuing with diagnostic")

		return &dialogflow.TurnResult{
			QueryText:    text,
			ResponseText: "Agent response unavailable due to webhook error",
			SessionID:    sessionID,
			Webhook:      webhookErr.Diagnostic(),
		}, nil
	}

	return nil, err
}

func (r *Runner) failedOutcome(sessionID, question string, err error) Outcome {
	r.logger.Warn().
		Str("session_id", sessionID).
		Err(err).
		Msg("conversation failed")

	return Outcome{
		SessionID:    sessionID,
		ErrorMessage: err.Error(),
	}
}

func (r *Runner) pause(ctx context.Context) {
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
