package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/infra/httpclient"
	"github.com/valis-ai/valis/internal/modules/model"
)

const codegenPrompt = `Generate Python code to accomplish the following task:

Task: %s

Requirements:
1. Write clean, executable Python code
2. Include error handling where appropriate
3. Use print() statements to show progress and results
4. Import any necessary modules
5. Make the code self-contained and robust

Generate only the Python code, no explanations:`

var missingModule = regexp.MustCompile(`No module named '([A-Za-z0-9_.\-]+)'`)

// CodeAgent generates Python for a task, runs it in a workspace and retries
// with the previous error until it succeeds or runs out of iterations.
type CodeAgent struct {
	llm       Completer
	runner    CodeRunner
	maxIter   int
	maxTokens int
	log       *zap.Logger
}

func NewCodeAgent(llm Completer, runner CodeRunner, maxIter int, log *zap.Logger) *CodeAgent {
	if maxIter <= 0 {
		maxIter = 3
	}
	return &CodeAgent{llm: llm, runner: runner, maxIter: maxIter, maxTokens: 2000, log: log}
}

// Run returns the execution summary. The error is non-nil only when ctx
// ends; generation and run failures are recorded in the result.
func (a *CodeAgent) Run(ctx context.Context, workspaceID, task string) (*model.ExecutionResult, error) {
	res := &model.ExecutionResult{WorkspaceID: workspaceID, TaskDescription: task, Iterations: []model.Iteration{}}
	installed := map[string]bool{}
	prompt := task

	for i := 1; i <= a.maxIter; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		it := model.Iteration{Number: i}

		code, err := a.generate(ctx, prompt)
		if err != nil {
			it.Error = err.Error()
			res.Iterations = append(res.Iterations, it)
			res.FinalError = "code generation failed: " + err.Error()
			return res, nil
		}
		it.Code = code

		out, err := a.runner.Run(ctx, workspaceID, code)
		it.Result = out
		switch {
		case err == nil && out.Succeeded():
			res.Iterations = append(res.Iterations, it)
			res.FinalSuccess = true
			res.FinalOutput = out.Stdout
			res.FinalError = ""
			return res, nil
		case err != nil && !out.TimedOut:
			// sandbox itself is broken; another attempt will not help
			it.Error = err.Error()
			res.Iterations = append(res.Iterations, it)
			res.FinalError = err.Error()
			return res, nil
		}

		failure := runFailure(out, err)
		it.Error = failure
		res.Iterations = append(res.Iterations, it)
		res.FinalError = failure
		a.log.Sugar().Debugw("code run failed", "workspace_id", workspaceID, "iteration", i, "err", failure)

		if m := missingModule.FindStringSubmatch(out.Stderr); m != nil {
			pkg := strings.SplitN(m[1], ".", 2)[0]
			if !installed[pkg] {
				installed[pkg] = true
				if _, ierr := a.runner.Install(ctx, workspaceID, pkg); ierr != nil {
					a.log.Sugar().Warnw("install missing module", "package", pkg, "err", ierr)
				}
			}
		}
		prompt = task + fmt.Sprintf("\n\nPrevious attempt failed with error: %s\nPlease fix the error and try again.", failure)
	}
	return res, nil
}

func runFailure(out model.RunResult, err error) string {
	if out.TimedOut {
		return "execution timed out"
	}
	if s := strings.TrimSpace(out.Stderr); s != "" {
		return s
	}
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("exit code %d", out.ExitCode)
}

func (a *CodeAgent) generate(ctx context.Context, task string) (string, error) {
	reply, err := a.llm.Complete(ctx, []httpclient.Message{
		{Role: "system", Content: "You are a CodeAct AI agent that generates Python code for autonomous execution. Always respond with only executable Python code."},
		{Role: "user", Content: fmt.Sprintf(codegenPrompt, task)},
	}, httpclient.CompletionParams{MaxTokens: a.maxTokens, Temperature: 0.1})
	if err != nil {
		return "", err
	}
	code := stripFences(reply)
	if code == "" {
		return "", errors.New("empty code")
	}
	return code, nil
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```python")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
