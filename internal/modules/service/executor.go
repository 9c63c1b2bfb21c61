package service

import (
	"context"
	"fmt"

	"github.com/valis-ai/valis/internal/infra/httpclient"
	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

// TaskUpdate is one progress report from an executor. Results are merged
// into the task; progress and step never move backwards.
type TaskUpdate struct {
	Status      model.TaskStatus
	Progress    int
	CurrentStep int
	Results     map[string]any
}

// Reporter applies an update to the running task. A non-nil error means
// the update was rejected and the executor should stop.
type Reporter func(TaskUpdate) error

type TaskExecutor interface {
	Execute(ctx context.Context, task model.Task, report Reporter) error
}

// ExecutorFunc adapts a function to TaskExecutor.
type ExecutorFunc func(ctx context.Context, task model.Task, report Reporter) error

func (f ExecutorFunc) Execute(ctx context.Context, task model.Task, report Reporter) error {
	return f(ctx, task, report)
}

type contentSpec struct {
	system  string
	prompt  string
	key     string
	success string
	deploy  bool
	urlKey  string
}

var contentSpecs = map[model.TaskType]contentSpec{
	model.TaskWebsiteCreation: {
		system: "You are a professional web developer. Create complete, working websites.",
		prompt: "Create a complete website for: %s\n\nGenerate:\n1. HTML structure\n2. CSS styling (modern, responsive)\n" +
			"3. JavaScript functionality\n4. Content and copy\n\nMake it professional, modern, and fully functional.",
		key:     "generated_content",
		success: "Website generated successfully",
		deploy:  true,
		urlKey:  "deployment_url",
	},
	model.TaskPresentation: {
		system: "You are a presentation expert. Create engaging, professional presentations.",
		prompt: "Create a professional presentation for: %s\n\nGenerate:\n1. Slide titles and content\n" +
			"2. Key points and bullet points\n3. Visual suggestions\n4. Speaker notes\n\nMake it engaging and professional.",
		key:     "presentation_content",
		success: "Presentation created successfully",
	},
	model.TaskAPIDevelopment: {
		system: "You are a backend developer expert. Create complete, production-ready APIs.",
		prompt: "Create a complete API for: %s\n\nGenerate:\n1. Flask/FastAPI code structure\n2. Database models\n" +
			"3. API endpoints\n4. Authentication\n5. Documentation\n\nMake it production-ready and well-documented.",
		key:     "api_code",
		success: "API created successfully",
		deploy:  true,
		urlKey:  "api_url",
	},
	model.TaskFullStackApp: {
		system: "You are a full-stack developer expert. Create complete, scalable applications.",
		prompt: "Create a complete full-stack application for: %s\n\nGenerate:\n1. Frontend (React/Vue/Angular)\n" +
			"2. Backend (Node.js/Python/Flask)\n3. Database schema\n4. API endpoints\n5. Authentication system\n" +
			"6. Deployment configuration\n\nMake it production-ready and scalable.",
		key:     "application_code",
		success: "Full-stack application created successfully",
		deploy:  true,
		urlKey:  "deployment_url",
	},
}

var generalSpec = contentSpec{
	system:  "You are Valis AI, an autonomous intelligence assistant. Be helpful, informative, and engaging.",
	key:     "response",
	success: "Response generated successfully",
}

type contentExecutor struct {
	spec     contentSpec
	llm      Completer
	deployer Deployer
	params   httpclient.CompletionParams
}

func (e *contentExecutor) Execute(ctx context.Context, task model.Task, report Reporter) error {
	prompt := task.Description
	if e.spec.prompt != "" {
		prompt = fmt.Sprintf(e.spec.prompt, task.Description)
	} else if in, ok := task.Results["user_input"].(string); ok && in != "" {
		prompt = in
	}

	content, err := e.llm.Complete(ctx, []httpclient.Message{
		{Role: "system", Content: e.spec.system},
		{Role: "user", Content: prompt},
	}, e.params)
	if err != nil {
		return err
	}

	results := map[string]any{e.spec.key: content, "status": e.spec.success}
	if !e.spec.deploy || e.deployer == nil {
		return report(TaskUpdate{Status: model.TaskCompleted, Progress: 100, CurrentStep: len(task.Steps), Results: results})
	}

	if err := report(TaskUpdate{Status: model.TaskTesting, Progress: 50, CurrentStep: 2, Results: results}); err != nil {
		return err
	}
	if err := report(TaskUpdate{Status: model.TaskDeploying, Progress: 75, CurrentStep: len(task.Steps) - 1}); err != nil {
		return err
	}
	url, err := e.deployer.Deploy(ctx, task.ID, results)
	if err != nil {
		return err
	}
	return report(TaskUpdate{
		Status:      model.TaskCompleted,
		Progress:    100,
		CurrentStep: len(task.Steps),
		Results:     map[string]any{e.spec.urlKey: url},
	})
}

type imageExecutor struct{ gen ImageGenerator }

func (e *imageExecutor) Execute(ctx context.Context, task model.Task, report Reporter) error {
	url, err := e.gen.GenerateImage(ctx, task.Description)
	if err != nil {
		return err
	}
	return report(TaskUpdate{
		Status:      model.TaskCompleted,
		Progress:    100,
		CurrentStep: len(task.Steps),
		Results:     map[string]any{"image_url": url, "status": "Image generated successfully"},
	})
}

// Executors maps task types to their executor. Types without an entry use
// the general executor.
type Executors struct {
	byType  map[model.TaskType]TaskExecutor
	general TaskExecutor
}

// NewExecutors builds the default table. deployer and gen may be nil; tasks
// then complete without a deployment step or fail on image generation.
func NewExecutors(llm Completer, gen ImageGenerator, deployer Deployer, maxTokens int) *Executors {
	params := httpclient.CompletionParams{MaxTokens: maxTokens, Temperature: 0.7}
	ex := &Executors{
		byType:  make(map[model.TaskType]TaskExecutor, len(contentSpecs)+1),
		general: &contentExecutor{spec: generalSpec, llm: llm, params: params},
	}
	for t, spec := range contentSpecs {
		ex.byType[t] = &contentExecutor{spec: spec, llm: llm, deployer: deployer, params: params}
	}
	if gen != nil {
		ex.byType[model.TaskImageGeneration] = &imageExecutor{gen: gen}
	} else {
		ex.byType[model.TaskImageGeneration] = ExecutorFunc(func(context.Context, model.Task, Reporter) error {
			return apperr.Collaborator("service.image", fmt.Errorf("image generation is not configured"))
		})
	}
	return ex
}

// Register replaces the executor for t.
func (e *Executors) Register(t model.TaskType, ex TaskExecutor) { e.byType[t] = ex }

func (e *Executors) For(t model.TaskType) TaskExecutor {
	if ex, ok := e.byType[t]; ok {
		return ex
	}
	return e.general
}
