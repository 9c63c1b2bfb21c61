package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/valis-ai/valis/internal/infra/httpclient"
	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

const intentPrompt = `You are Valis AI, an autonomous intelligence system. Analyze the user's input and determine:
1. The primary task type they want to accomplish
2. The complexity level (simple, medium, complex)
3. Required tools and technologies
4. Step-by-step execution plan
5. Expected deliverables

Task types available:
- website_creation: Building websites, landing pages, web apps
- presentation: Creating presentations, slides, pitch decks
- image_generation: Creating images, graphics, designs
- video_creation: Creating videos, animations
- api_development: Building APIs, backends, databases
- full_stack_app: Complete applications with frontend and backend
- data_analysis: Analyzing data, creating visualizations
- automation: Automating tasks, workflows, processes
- general_chat: General conversation, questions, help

Respond with JSON only:
{"task_type": "website_creation", "complexity": "medium", "confidence": 0.95,
 "description": "User wants to create a coffee shop website",
 "technologies": ["HTML", "CSS", "JavaScript"],
 "steps": ["Design layout", "Create components", "Add content", "Style interface", "Deploy"],
 "deliverables": ["Live website URL", "Source code"]}`

const modePrompt = `Analyze the following user message and determine the best chat mode.

Message: %q

Context: %s

Chat modes:
- "agent": tasks requiring autonomous execution (coding, building, deploying, automation)
- "chat": questions, discussions, explanations and general conversation

Respond with JSON only:
{"intent": "description of user intent", "recommended_mode": "agent" or "chat", "confidence": 0.0-1.0, "reasoning": "explanation"}`

// FallbackPlan is used whenever the classifier cannot produce a usable plan.
func FallbackPlan(description string) *model.TaskPlan {
	return &model.TaskPlan{
		TaskType:     model.TaskGeneralChat,
		Complexity:   "simple",
		Confidence:   0.5,
		Description:  "General request: " + description,
		Steps:        []string{"Generate response"},
		Deliverables: []string{"AI response"},
	}
}

type llmClassifier struct {
	llm       Completer
	maxTokens int
}

func NewLLMClassifier(llm Completer, maxTokens int) Classifier {
	return &llmClassifier{llm: llm, maxTokens: maxTokens}
}

func (c *llmClassifier) Classify(ctx context.Context, description string) (*model.TaskPlan, error) {
	const op = "service.classify"
	reply, err := c.llm.Complete(ctx, []httpclient.Message{
		{Role: "system", Content: intentPrompt},
		{Role: "user", Content: description},
	}, httpclient.CompletionParams{MaxTokens: c.maxTokens, Temperature: 0.3})
	if err != nil {
		return nil, err
	}

	var plan model.TaskPlan
	if err := decodeJSONReply(reply, &plan); err != nil {
		return nil, apperr.Collaborator(op, err)
	}
	if !plan.TaskType.Valid() {
		return nil, apperr.Collaborator(op, fmt.Errorf("unknown task type %q", plan.TaskType))
	}
	if len(plan.Steps) == 0 {
		plan.Steps = []string{"Generate response"}
	}
	if strings.TrimSpace(plan.Description) == "" {
		plan.Description = description
	}
	plan.Confidence = clamp01(plan.Confidence)
	return &plan, nil
}

type llmModeClassifier struct {
	llm       Completer
	maxTokens int
}

func NewLLMModeClassifier(llm Completer, maxTokens int) ModeClassifier {
	return &llmModeClassifier{llm: llm, maxTokens: maxTokens}
}

type modeReply struct {
	Intent          string  `json:"intent"`
	RecommendedMode string  `json:"recommended_mode"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
}

func (c *llmModeClassifier) ClassifyMode(ctx context.Context, message string, recent []model.ContextEntry) (*model.AdaptiveAnalysis, error) {
	const op = "service.classify_mode"
	ctxText := "No previous context"
	if len(recent) > 0 {
		raw, err := sonic.MarshalIndent(recent, "", "  ")
		if err == nil {
			ctxText = string(raw)
		}
	}

	reply, err := c.llm.Complete(ctx, []httpclient.Message{
		{Role: "system", Content: "You are an intent analysis expert. Analyze user messages and recommend the best chat mode. Always respond with valid JSON."},
		{Role: "user", Content: fmt.Sprintf(modePrompt, message, ctxText)},
	}, httpclient.CompletionParams{MaxTokens: c.maxTokens, Temperature: 0.1})
	if err != nil {
		return nil, err
	}

	var r modeReply
	if err := decodeJSONReply(reply, &r); err != nil {
		return nil, apperr.Collaborator(op, err)
	}
	mode := model.ChatMode(strings.ToLower(strings.TrimSpace(r.RecommendedMode)))
	if mode != model.ModeAgent && mode != model.ModeChat {
		return nil, apperr.Collaborator(op, fmt.Errorf("unexpected mode %q", r.RecommendedMode))
	}
	return &model.AdaptiveAnalysis{
		DetectedIntent:  r.Intent,
		RecommendedMode: mode,
		Confidence:      clamp01(r.Confidence),
		Reasoning:       r.Reasoning,
	}, nil
}

var (
	agentKeywords = []string{
		"create", "build", "make", "develop", "code", "program", "deploy",
		"website", "app", "application", "api", "database", "script",
		"automate", "generate", "implement", "execute", "run",
	}
	chatKeywords = []string{
		"what", "how", "why", "explain", "tell me", "describe", "help",
		"question", "understand", "learn", "know", "think", "opinion",
	}
)

// KeywordModeClassifier scores a message against fixed keyword lists. It
// never fails and backs the LLM classifier.
type KeywordModeClassifier struct{}

func (KeywordModeClassifier) ClassifyMode(_ context.Context, message string, _ []model.ContextEntry) (*model.AdaptiveAnalysis, error) {
	lower := strings.ToLower(message)
	agent := countKeywords(lower, agentKeywords)
	chat := countKeywords(lower, chatKeywords)

	// ties go to chat
	if agent > chat {
		return &model.AdaptiveAnalysis{
			DetectedIntent:  "Task execution request",
			RecommendedMode: model.ModeAgent,
			Confidence:      keywordConfidence(agent),
			Reasoning:       fmt.Sprintf("Message contains %d execution-related keywords", agent),
		}, nil
	}
	return &model.AdaptiveAnalysis{
		DetectedIntent:  "Conversational inquiry",
		RecommendedMode: model.ModeChat,
		Confidence:      keywordConfidence(chat),
		Reasoning:       fmt.Sprintf("Message contains %d conversational keywords", chat),
	}, nil
}

func countKeywords(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

func keywordConfidence(score int) float64 {
	return math.Min(0.8, 0.5+0.1*float64(score))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// decodeJSONReply extracts the first JSON object from an LLM reply, which may
// be wrapped in a markdown fence or surrounded by prose.
func decodeJSONReply(reply string, v any) error {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in reply")
	}
	if err := sonic.UnmarshalString(reply[start:end+1], v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
