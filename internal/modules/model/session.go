package model

import "time"

type ChatMode string

const (
	ModeAdaptive ChatMode = "adaptive"
	ModeAgent    ChatMode = "agent"
	ModeChat     ChatMode = "chat"
	ModeCustom   ChatMode = "custom"
)

func (m ChatMode) Valid() bool {
	switch m {
	case ModeAdaptive, ModeAgent, ModeChat, ModeCustom:
		return true
	default:
		return false
	}
}

type Preferences struct {
	AutoExecute   bool `json:"auto_execute"`
	ShowCode      bool `json:"show_code"`
	VerboseOutput bool `json:"verbose_output"`
	SafetyChecks  bool `json:"safety_checks"`
}

func DefaultPreferences() Preferences {
	return Preferences{AutoExecute: true, ShowCode: true, VerboseOutput: false, SafetyChecks: true}
}

type ContextEntry struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Mode      ChatMode         `json:"mode"`
	TaskID    string           `json:"task_id,omitempty"`
	Execution *ExecutionResult `json:"execution_result,omitempty"`
}

type TaskRef struct {
	TaskID    string    `json:"task_id"`
	Message   string    `json:"message"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatSession struct {
	ID           string         `json:"session_id"`
	UserID       string         `json:"user_id,omitempty"`
	Mode         ChatMode       `json:"mode"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	MessageCount int            `json:"message_count"`
	Context      []ContextEntry `json:"context"`
	WorkspaceID  string         `json:"workspace_id,omitempty"`
	TaskHistory  []TaskRef      `json:"task_history"`
	Preferences  Preferences    `json:"preferences"`
}

func (s ChatSession) Clone() ChatSession {
	out := s
	out.Context = append([]ContextEntry(nil), s.Context...)
	out.TaskHistory = append([]TaskRef(nil), s.TaskHistory...)
	return out
}

// SessionInfo is the summary shape used by session listings.
type SessionInfo struct {
	ID           string      `json:"session_id"`
	UserID       string      `json:"user_id,omitempty"`
	Mode         ChatMode    `json:"mode"`
	CreatedAt    time.Time   `json:"created_at"`
	LastActivity time.Time   `json:"last_activity"`
	MessageCount int         `json:"message_count"`
	ContextSize  int         `json:"context_length"`
	WorkspaceID  string      `json:"workspace_id,omitempty"`
	TaskCount    int         `json:"task_count"`
	Preferences  Preferences `json:"preferences"`
}

func (s ChatSession) Info() SessionInfo {
	return SessionInfo{
		ID:           s.ID,
		UserID:       s.UserID,
		Mode:         s.Mode,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		MessageCount: s.MessageCount,
		ContextSize:  len(s.Context),
		WorkspaceID:  s.WorkspaceID,
		TaskCount:    len(s.TaskHistory),
		Preferences:  s.Preferences,
	}
}

// RunResult is the outcome of one sandboxed code run.
type RunResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
}

func (r RunResult) Succeeded() bool { return r.ExitCode == 0 && !r.TimedOut }

type Iteration struct {
	Number int       `json:"iteration"`
	Code   string    `json:"code"`
	Result RunResult `json:"result"`
	Error  string    `json:"error,omitempty"`
}

// ExecutionResult summarizes an autonomous generate/execute loop.
type ExecutionResult struct {
	WorkspaceID     string      `json:"workspace_id"`
	TaskDescription string      `json:"task_description"`
	Iterations      []Iteration `json:"results"`
	FinalSuccess    bool        `json:"final_success"`
	FinalOutput     string      `json:"final_output"`
	FinalError      string      `json:"final_error"`
}

type AdaptiveAnalysis struct {
	DetectedIntent      string   `json:"detected_intent"`
	RecommendedMode     ChatMode `json:"recommended_mode"`
	Confidence          float64  `json:"confidence"`
	Reasoning           string   `json:"reasoning"`
	ModeSwitched        bool     `json:"mode_switched"`
	ClarificationNeeded bool     `json:"clarification_needed,omitempty"`
}

// ModeResponse is the reply to a processed session message. Agent-only and
// chat-only fields are left empty for the other mode.
type ModeResponse struct {
	SessionID        string            `json:"session_id"`
	Mode             ChatMode          `json:"mode"`
	Message          string            `json:"message"`
	Conversational   bool              `json:"conversational,omitempty"`
	Suggestions      []string          `json:"suggestions,omitempty"`
	ExecutionResult  *ExecutionResult  `json:"execution_result,omitempty"`
	TaskID           string            `json:"task_id,omitempty"`
	WorkspaceID      string            `json:"workspace_id,omitempty"`
	ShowCode         bool              `json:"show_code,omitempty"`
	AutoExecuted     bool              `json:"auto_executed,omitempty"`
	AdaptiveAnalysis *AdaptiveAnalysis `json:"adaptive_analysis,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}
