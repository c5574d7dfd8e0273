package run

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"

	"dialogeval/internal/judge"
	"dialogeval/internal/llm"
	"dialogeval/internal/llm/mocks"
	"dialogeval/internal/models"
)

// fakeStore implements the controller's full persistence surface in memory.
type fakeStore struct {
	fakeChunkStore

	run          *models.TestRun
	questions    []models.Question
	runConfigs   []models.ParameterConfig
	userConfigs  []models.ParameterConfig
	activeParams []models.EvaluationParameter

	started      bool
	totalMarked  int
	finishedWith models.RunStatus
}

func (f *fakeStore) GetRun(ctx context.Context, runID int64) (*models.TestRun, error) {
	if f.run == nil {
		return nil, errors.New("test run not found")
	}
	return f.run, nil
}

func (f *fakeStore) LoadQuestions(ctx context.Context, run *models.TestRun) ([]models.Question, error) {
	return f.questions, nil
}

func (f *fakeStore) MarkRunStarted(ctx context.Context, runID int64, total int) error {
	f.started = true
	f.totalMarked = total
	f.mu.Lock()
	f.status = models.StatusRunning
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) MarkRunFinished(ctx context.Context, runID int64, status models.RunStatus) error {
	f.finishedWith = status
	return nil
}

func (f *fakeStore) LoadRunParameterConfig(ctx context.Context, runID int64) ([]models.ParameterConfig, error) {
	return f.runConfigs, nil
}

func (f *fakeStore) LoadUserDefaultConfig(ctx context.Context, userID int64) ([]models.ParameterConfig, error) {
	return f.userConfigs, nil
}

func (f *fakeStore) LoadActiveParameters(ctx context.Context) ([]models.EvaluationParameter, error) {
	return f.activeParams, nil
}

type fakeResolver struct {
	client llm.LLMClient
	err    error
}

func (f *fakeResolver) Resolve(ctx context.Context, modelID string) (llm.LLMClient, error) {
	return f.client, f.err
}

func pendingRun() *models.TestRun {
	return &models.TestRun{
		ID:                1,
		CreatedByID:       7,
		AgentName:         "projects/p/locations/global/agents/a",
		EvaluationModelID: "models/gemini-2.0-flash",
		BatchSize:         5,
		Status:            models.StatusPending,
	}
}

func newTestController(store *fakeStore, resolver ModelResolver) *Controller {
	logger := zerolog.Nop()
	opts := CoordinatorOptions{InterChunkDelay: time.Millisecond, SequentialDelay: time.Millisecond}
	return NewController(store, &fakeConversationRunner{}, resolver, judge.Options{}, opts, &logger)
}

func TestStart_SingleParameterPerfectMatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)
	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		Return(&llm.LLMResponse{Content: "SCORE: 95\nREASONING: close"}, nil).
		AnyTimes()

	store := &fakeStore{
		run:       pendingRun(),
		questions: testQuestions(1),
		runConfigs: []models.ParameterConfig{
			{ParameterID: 1, Name: "Similarity Score", Weight: 100, Enabled: true},
		},
	}

	if err := newTestController(store, &fakeResolver{client: client}).Start(context.Background(), 1); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !store.started || store.totalMarked != 1 {
		t.Errorf("run not started correctly: started=%v total=%d", store.started, store.totalMarked)
	}
	if store.finishedWith != models.StatusCompleted {
		t.Errorf("finished with %q, want completed", store.finishedWith)
	}

	if len(store.chunks) != 1 {
		t.Fatalf("expected one persisted chunk, got %d", len(store.chunks))
	}
	chunk := store.chunks[0]
	if chunk.avg == nil || *chunk.avg != 95 {
		t.Errorf("average = %v, want 95", chunk.avg)
	}
	scores := chunk.results[0].ParameterScores
	if len(scores) != 1 || scores[0].Score != 95 {
		t.Errorf("unexpected parameter scores: %+v", scores)
	}
}

func TestStart_EmptyQuestionSetFailsDirectly(t *testing.T) {
	store := &fakeStore{run: pendingRun()}

	err := newTestController(store, &fakeResolver{err: llm.ErrModelUnavailable}).Start(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error for empty question set")
	}

	if store.started {
		t.Error("run must not be marked started")
	}
	if store.finishedWith != models.StatusFailed {
		t.Errorf("finished with %q, want failed", store.finishedWith)
	}
	if len(store.chunks) != 0 {
		t.Errorf("no results should be persisted, got %d chunks", len(store.chunks))
	}
}

func TestStart_NonPendingRunRejected(t *testing.T) {
	run := pendingRun()
	run.Status = models.StatusRunning
	store := &fakeStore{run: run, questions: testQuestions(1)}

	if err := newTestController(store, &fakeResolver{}).Start(context.Background(), 1); err == nil {
		t.Fatal("expected error for non-pending run")
	}
	if store.started {
		t.Error("run must not be restarted")
	}
}

func TestStart_UnavailableModelFallsBackToHeuristics(t *testing.T) {
	store := &fakeStore{
		run: pendingRun(),
		questions: []models.Question{
			{ID: 1, QuestionText: "what is the refund window", ExpectedAnswer: "thirty day refund window"},
		},
		runConfigs: []models.ParameterConfig{
			{ParameterID: 1, Name: "Similarity Score", Weight: 100, Enabled: true},
		},
	}

	err := newTestController(store, &fakeResolver{err: llm.ErrModelUnavailable}).Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if store.finishedWith != models.StatusCompleted {
		t.Errorf("finished with %q, want completed", store.finishedWith)
	}
	scores := store.chunks[0].results[0].ParameterScores
	if len(scores) != 1 || !scores[0].Fallback {
		t.Errorf("expected fallback scores, got %+v", scores)
	}
}

func TestStart_CancellationFinishesAsCancelled(t *testing.T) {
	store := &fakeStore{
		run:       pendingRun(),
		questions: testQuestions(6),
		runConfigs: []models.ParameterConfig{
			{ParameterID: 1, Name: "Similarity Score", Weight: 100, Enabled: true},
		},
	}
	store.run.BatchSize = 2
	store.cancelAfterChunk = 1

	err := newTestController(store, &fakeResolver{err: llm.ErrModelUnavailable}).Start(context.Background(), 1)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if store.finishedWith != models.StatusCancelled {
		t.Errorf("finished with %q, want cancelled", store.finishedWith)
	}
	if len(store.chunks) != 1 {
		t.Errorf("expected 1 chunk before cancellation, got %d", len(store.chunks))
	}
}
