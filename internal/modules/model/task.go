package model

import (
	"strings"
	"time"
)

type TaskType string

const (
	TaskWebsiteCreation TaskType = "website_creation"
	TaskPresentation    TaskType = "presentation"
	TaskImageGeneration TaskType = "image_generation"
	TaskVideoCreation   TaskType = "video_creation"
	TaskAPIDevelopment  TaskType = "api_development"
	TaskFullStackApp    TaskType = "full_stack_app"
	TaskDataAnalysis    TaskType = "data_analysis"
	TaskAutomation      TaskType = "automation"
	TaskGeneralChat     TaskType = "general_chat"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskWebsiteCreation, TaskPresentation, TaskImageGeneration, TaskVideoCreation,
		TaskAPIDevelopment, TaskFullStackApp, TaskDataAnalysis, TaskAutomation, TaskGeneralChat:
		return true
	default:
		return false
	}
}

// Label renders the type for user-facing text, e.g. "website creation".
func (t TaskType) Label() string { return strings.ReplaceAll(string(t), "_", " ") }

type TaskStatus string

const (
	TaskPlanning  TaskStatus = "planning"
	TaskExecuting TaskStatus = "executing"
	TaskTesting   TaskStatus = "testing"
	TaskDeploying TaskStatus = "deploying"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
)

func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskError
}

// CanTransition reports whether s may move to next. Staying put is allowed
// for non-terminal states so executors can report progress within a phase.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == TaskError {
		return true
	}
	switch s {
	case TaskPlanning:
		return next == TaskExecuting
	case TaskExecuting:
		return next == TaskExecuting || next == TaskTesting || next == TaskCompleted
	case TaskTesting:
		return next == TaskTesting || next == TaskDeploying || next == TaskCompleted
	case TaskDeploying:
		return next == TaskDeploying || next == TaskCompleted
	default:
		return false
	}
}

// ResultErrorKey is the results entry holding the failure message of a task in error.
const ResultErrorKey = "error"

type Task struct {
	ID          string         `json:"id"`
	Type        TaskType       `json:"type"`
	Description string         `json:"description"`
	Status      TaskStatus     `json:"status"`
	Progress    int            `json:"progress"`
	Steps       []string       `json:"steps"`
	CurrentStep int            `json:"current_step"`
	Results     map[string]any `json:"results"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Clone returns a deep enough copy for handing out of a registry: the steps
// slice and the top level of the results map are not shared.
func (t Task) Clone() Task {
	out := t
	out.Steps = append([]string(nil), t.Steps...)
	out.Results = make(map[string]any, len(t.Results))
	for k, v := range t.Results {
		out.Results[k] = v
	}
	return out
}

// TaskSnapshot is the read-only projection returned by status queries.
type TaskSnapshot struct {
	TaskID      string         `json:"task_id"`
	Type        TaskType       `json:"type"`
	Description string         `json:"description"`
	Status      TaskStatus     `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep int            `json:"current_step"`
	TotalSteps  int            `json:"total_steps"`
	StepName    string         `json:"step_name"`
	Results     map[string]any `json:"results"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (t Task) Snapshot() TaskSnapshot {
	c := t.Clone()
	name := "Completed"
	if c.CurrentStep < len(c.Steps) {
		name = c.Steps[c.CurrentStep]
	}
	return TaskSnapshot{
		TaskID:      c.ID,
		Type:        c.Type,
		Description: c.Description,
		Status:      c.Status,
		Progress:    c.Progress,
		CurrentStep: c.CurrentStep,
		TotalSteps:  len(c.Steps),
		StepName:    name,
		Results:     c.Results,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// TaskPlan is what an intent classifier produces for a description.
type TaskPlan struct {
	TaskType     TaskType `json:"task_type"`
	Complexity   string   `json:"complexity,omitempty"`
	Confidence   float64  `json:"confidence"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies,omitempty"`
	Steps        []string `json:"steps"`
	Deliverables []string `json:"deliverables,omitempty"`
}

// ExecutionOutcome is returned by task execution. Success is false when the
// task ended in error; that is still a normal response.
type ExecutionOutcome struct {
	Success  bool           `json:"success"`
	TaskID   string         `json:"task_id"`
	Status   TaskStatus     `json:"status"`
	Progress int            `json:"progress"`
	Results  map[string]any `json:"results"`
	Error    string         `json:"error,omitempty"`
}
