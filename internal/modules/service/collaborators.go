package service

import (
	"context"

	"github.com/valis-ai/valis/internal/infra/httpclient"
	"github.com/valis-ai/valis/internal/modules/model"
)

// Completer produces a chat completion for a message list.
type Completer interface {
	Complete(ctx context.Context, messages []httpclient.Message, p httpclient.CompletionParams) (string, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Classifier turns a free-form request into a task plan.
type Classifier interface {
	Classify(ctx context.Context, description string) (*model.TaskPlan, error)
}

// ModeClassifier recommends agent or chat mode for a message.
type ModeClassifier interface {
	ClassifyMode(ctx context.Context, message string, recent []model.ContextEntry) (*model.AdaptiveAnalysis, error)
}

// WorkspaceProvider provisions isolated execution workspaces.
type WorkspaceProvider interface {
	Create(ctx context.Context) (string, error)
	Release(ctx context.Context, id string) error
}

// CodeRunner executes code inside a workspace.
type CodeRunner interface {
	Run(ctx context.Context, workspaceID, code string) (model.RunResult, error)
	Install(ctx context.Context, workspaceID, pkg string) (model.RunResult, error)
}

// Deployer publishes a finished task's artifact and returns where it lives.
type Deployer interface {
	Deploy(ctx context.Context, taskID string, results map[string]any) (string, error)
}

// Sink delivers an event to a set of connection handles.
type Sink interface {
	Deliver(ctx context.Context, handles []string, evt model.Event) error
}
