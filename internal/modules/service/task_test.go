package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/modules/repo"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

type taskFixture struct {
	svc        TaskService
	classifier *MockClassifier
	llm        *MockCompleter
	deployer   *MockDeployer
	executors  *Executors
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	mem, err := repo.NewLRUMemory(16)
	require.NoError(t, err)
	f := &taskFixture{classifier: &MockClassifier{}, llm: &MockCompleter{}, deployer: &MockDeployer{}}
	f.executors = NewExecutors(f.llm, nil, f.deployer, 1000)
	f.svc = NewTaskService(repo.NewTaskRepo(), mem, f.classifier, f.executors, zaptest.NewLogger(t))
	return f
}

func plan(tt model.TaskType, steps ...string) *model.TaskPlan {
	return &model.TaskPlan{TaskType: tt, Confidence: 0.9, Description: "do " + string(tt), Steps: steps}
}

func TestTaskService_CreateFallsBackOnClassifierFailure(t *testing.T) {
	f := newTaskFixture(t)
	f.classifier.On("Classify", mock.Anything, "hello").Return(nil, apperr.Collaborator("llm", errors.New("down")))

	snap, err := f.svc.Create(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, model.TaskGeneralChat, snap.Type)
	assert.Equal(t, model.TaskPlanning, snap.Status)
	assert.Equal(t, 1, snap.TotalSteps)
	assert.Equal(t, "Generate response", snap.StepName)
	assert.Equal(t, "hello", snap.Results["user_input"])
	assert.Contains(t, snap.Results, "analysis")
}

func TestTaskService_CreateRejectsEmpty(t *testing.T) {
	f := newTaskFixture(t)
	_, err := f.svc.Create(context.Background(), "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestTaskService_ExecuteWebsiteDeploys(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	f.classifier.On("Classify", mock.Anything, mock.Anything).
		Return(plan(model.TaskWebsiteCreation, "Design", "Build", "Test", "Deploy"), nil)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("<html></html>", nil)
	f.deployer.On("Deploy", mock.Anything, mock.Anything, mock.MatchedBy(func(r map[string]any) bool {
		return r["generated_content"] == "<html></html>"
	})).Return("https://cdn.example/site.html", nil)

	snap, err := f.svc.Create(ctx, "coffee shop site")
	require.NoError(t, err)

	out, err := f.svc.Execute(ctx, snap.TaskID)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, model.TaskCompleted, out.Status)
	assert.Equal(t, 100, out.Progress)
	assert.Equal(t, "https://cdn.example/site.html", out.Results["deployment_url"])
	assert.Equal(t, "Website generated successfully", out.Results["status"])

	st, err := f.svc.Status(ctx, snap.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "Completed", st.StepName)
	assert.Equal(t, 4, st.CurrentStep)
}

func TestTaskService_ExecutorFailureIsAnOutcome(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	f.classifier.On("Classify", mock.Anything, mock.Anything).Return(plan(model.TaskPresentation, "Outline", "Write"), nil)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", apperr.Collaborator("llm", errors.New("quota")))

	snap, err := f.svc.Create(ctx, "pitch deck")
	require.NoError(t, err)

	out, err := f.svc.Execute(ctx, snap.TaskID)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, model.TaskError, out.Status)
	assert.Contains(t, out.Error, "quota")
	assert.Contains(t, out.Results[model.ResultErrorKey], "quota")
	assert.Equal(t, "pitch deck", out.Results["user_input"])
}

func TestTaskService_TerminalTaskIsNotRerun(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	f.classifier.On("Classify", mock.Anything, mock.Anything).Return(plan(model.TaskGeneralChat, "Generate response"), nil)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("hi!", nil).Once()

	snap, err := f.svc.Create(ctx, "say hi")
	require.NoError(t, err)
	first, err := f.svc.Execute(ctx, snap.TaskID)
	require.NoError(t, err)
	second, err := f.svc.Execute(ctx, snap.TaskID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "hi!", second.Results["response"])
	f.llm.AssertNumberOfCalls(t, "Complete", 1)
}

func TestTaskService_ExecuteUnknown(t *testing.T) {
	f := newTaskFixture(t)
	_, err := f.svc.Execute(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTaskService_ConcurrentExecuteFailsFast(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	f.classifier.On("Classify", mock.Anything, mock.Anything).Return(plan(model.TaskAutomation, "Run"), nil)

	started := make(chan struct{})
	unblock := make(chan struct{})
	f.executors.Register(model.TaskAutomation, ExecutorFunc(func(ctx context.Context, _ model.Task, _ Reporter) error {
		close(started)
		<-unblock
		return nil
	}))

	snap, err := f.svc.Create(ctx, "automate backups")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		out, err := f.svc.Execute(ctx, snap.TaskID)
		assert.NoError(t, err)
		assert.Equal(t, model.TaskCompleted, out.Status)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("executor did not start")
	}
	_, err = f.svc.Execute(ctx, snap.TaskID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyRunning)

	close(unblock)
	wg.Wait()
}

// pausingTaskRepo blocks after a Get while pause is set.
type pausingTaskRepo struct {
	repo.TaskRepo
	mu    sync.Mutex
	pause func()
}

func (r *pausingTaskRepo) Get(ctx context.Context, id string) (*model.Task, error) {
	t, err := r.TaskRepo.Get(ctx, id)
	r.mu.Lock()
	pause := r.pause
	r.pause = nil
	r.mu.Unlock()
	if pause != nil {
		pause()
	}
	return t, err
}

func TestTaskService_ExecuteAfterConcurrentRunFinished(t *testing.T) {
	ctx := context.Background()
	mem, err := repo.NewLRUMemory(16)
	require.NoError(t, err)
	classifier := &MockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything).Return(plan(model.TaskAutomation, "Run"), nil)
	tasks := &pausingTaskRepo{TaskRepo: repo.NewTaskRepo()}
	svc := NewTaskService(tasks, mem, classifier, NewExecutors(&MockCompleter{}, nil, nil, 1000), zaptest.NewLogger(t))

	var runs int
	started := make(chan struct{})
	unblock := make(chan struct{})
	ex := ExecutorFunc(func(ctx context.Context, _ model.Task, _ Reporter) error {
		runs++
		close(started)
		<-unblock
		return nil
	})

	snap, err := svc.Create(ctx, "automate backups")
	require.NoError(t, err)

	first := make(chan struct{})
	go func() {
		defer close(first)
		out, err := svc.ExecuteWith(ctx, snap.TaskID, ex)
		assert.NoError(t, err)
		assert.Equal(t, model.TaskCompleted, out.Status)
	}()
	<-started

	// the second caller reads the task while it is executing, then waits
	// until the first run has released it before claiming
	read := make(chan struct{})
	resume := make(chan struct{})
	tasks.mu.Lock()
	tasks.pause = func() {
		close(read)
		<-resume
	}
	tasks.mu.Unlock()

	type result struct {
		out *model.ExecutionOutcome
		err error
	}
	second := make(chan result, 1)
	go func() {
		out, err := svc.ExecuteWith(ctx, snap.TaskID, ex)
		second <- result{out, err}
	}()

	<-read
	close(unblock)
	<-first
	close(resume)

	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.True(t, res.out.Success)
		assert.Equal(t, model.TaskCompleted, res.out.Status)
	case <-time.After(time.Second):
		t.Fatal("second execute did not return")
	}
	assert.Equal(t, 1, runs)
}

func TestTaskService_ExecuteOutlivesCallerCancellation(t *testing.T) {
	f := newTaskFixture(t)
	f.classifier.On("Classify", mock.Anything, mock.Anything).Return(plan(model.TaskAutomation, "Run"), nil)
	f.executors.Register(model.TaskAutomation, ExecutorFunc(func(ctx context.Context, _ model.Task, report Reporter) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return report(TaskUpdate{Results: map[string]any{"script": "ok"}})
	}))

	snap, err := f.svc.Create(context.Background(), "automate backups")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := f.svc.Execute(ctx, snap.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, out.Status)
	assert.Equal(t, "ok", out.Results["script"])
}

func TestApplyUpdate(t *testing.T) {
	base := func() *model.Task {
		return &model.Task{Status: model.TaskExecuting, Progress: 40, CurrentStep: 1, Steps: []string{"a", "b", "c"}}
	}

	t.Run("progress never decreases", func(t *testing.T) {
		task := base()
		require.NoError(t, applyUpdate(task, TaskUpdate{Progress: 10, CurrentStep: 0}))
		assert.Equal(t, 40, task.Progress)
		assert.Equal(t, 1, task.CurrentStep)
	})

	t.Run("values are clamped", func(t *testing.T) {
		task := base()
		require.NoError(t, applyUpdate(task, TaskUpdate{Progress: 150, CurrentStep: 9}))
		assert.Equal(t, 100, task.Progress)
		assert.Equal(t, 3, task.CurrentStep)
	})

	t.Run("invalid transition rejected", func(t *testing.T) {
		task := base()
		task.Status = model.TaskDeploying
		err := applyUpdate(task, TaskUpdate{Status: model.TaskTesting})
		assert.ErrorIs(t, err, errBadTransition)
		assert.Equal(t, model.TaskDeploying, task.Status)
	})

	t.Run("terminal is final", func(t *testing.T) {
		task := base()
		task.Status = model.TaskCompleted
		assert.Error(t, applyUpdate(task, TaskUpdate{Status: model.TaskError}))
	})
}

func TestTaskService_Memory(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Remember(ctx, "favorite", "blue"))
	v, ok, err := f.svc.Recall(ctx, "favorite")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "blue", v)

	_, ok, err = f.svc.Recall(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, f.svc.Remember(ctx, "", 1), apperr.ErrInvalidInput)
}
