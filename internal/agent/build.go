package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
)

const buildInstruction = `You are a senior engineer generating production-quality code inside
the user's project. When you emit files, every file must carry a full explicit path from the
project root and complete file contents; never emit fragments or relative paths. If the request
is too vague to build anything, emit a clarifying reply instead of guessing. Existing project
files are listed below; regenerate a file in full when you change it.`

var buildSchema = provider.Schema{
	Name: "build_result",
	Definition: provider.Object(map[string]any{
		"kind":          provider.Enum("clarification", "code"),
		"response_text": provider.String(),
		"explanation":   provider.String(),
		"files": provider.Array(provider.Object(map[string]any{
			"file_path": provider.String(),
			"code":      provider.String(),
			"language":  provider.String(),
		})),
	}),
}

// taskRun identifies the pending task the agent is executing on behalf
// of a previously generated plan.
type taskRun struct {
	messageID string
	plan      *models.Plan
	taskIndex int
}

// BuildAgent generates project files, and doubles as the execution arm
// for plan tasks.
type BuildAgent struct {
	completer provider.Completer
	logger    *zap.Logger
}

func NewBuildAgent(completer provider.Completer, logger *zap.Logger) *BuildAgent {
	return &BuildAgent{completer: completer, logger: logger}
}

func (a *BuildAgent) Name() string { return "build" }

func (a *BuildAgent) Execute(ctx context.Context, input *AgentInput) (*AgentExecutionResult, error) {
	run := findPendingTask(input.Messages)

	prompt := input.Prompt
	if run != nil {
		task := run.plan.Tasks[run.taskIndex]
		prompt = fmt.Sprintf(
			"You are executing one task from the plan %q. Execute only this task and nothing else:\n%s",
			run.plan.Title, task.Text,
		)
		run.plan.Tasks[run.taskIndex].Status = models.TaskInProgress
	}

	files, explanation, err := a.generate(ctx, input, prompt)
	if err != nil {
		if run != nil {
			// A failed task still terminates; it is never left in-progress.
			run.plan.Tasks[run.taskIndex].Status = models.TaskComplete
			run.plan.Tasks[run.taskIndex].Explanation = err.Error()
			result := singleMessage(input.aiMessage(userSafeMessage(err)))
			result.UpdatedPlan = &PlanRef{MessageID: run.messageID, Plan: run.plan}
			return result, nil
		}
		a.logger.Warn("build generation failed", zap.String("chat_id", input.Chat.ID), zap.Error(err))
		return singleMessage(input.aiMessage(userSafeMessage(err))), nil
	}

	if len(files) == 0 {
		// Clarification fallback branch.
		if run != nil {
			run.plan.Tasks[run.taskIndex].Status = models.TaskComplete
			run.plan.Tasks[run.taskIndex].Explanation = explanation
			input.emit(explanation)
			result := singleMessage(input.aiMessage(explanation))
			result.UpdatedPlan = &PlanRef{MessageID: run.messageID, Plan: run.plan}
			return result, nil
		}
		input.emit(explanation)
		return singleMessage(input.aiMessage(explanation)), nil
	}

	msg := input.aiMessage(explanation)
	msg.Code = files[0].Code
	msg.Language = files[0].Language
	input.emit(explanation)

	result := singleMessage(msg)
	result.ProjectUpdate = &models.ProjectUpdate{Files: fileMap(files)}

	if run != nil {
		run.plan.Tasks[run.taskIndex].Status = models.TaskComplete
		run.plan.Tasks[run.taskIndex].Code = joinFileCode(files)
		run.plan.Tasks[run.taskIndex].Explanation = explanation
		result.UpdatedPlan = &PlanRef{MessageID: run.messageID, Plan: run.plan}
	}
	return result, nil
}

// generate performs one schema-constrained code-generation call and
// returns either emitted files or a clarification text in explanation.
// The Plan Executor calls this directly per task.
func (a *BuildAgent) generate(ctx context.Context, input *AgentInput, prompt string) ([]models.ProjectFile, string, error) {
	req := input.request()
	req.Instruction = withMemoryContext(buildInstruction+existingFilesBlock(input.Project), input)
	req.Prompt = prompt

	doc, err := a.completer.CompleteJSON(ctx, req, buildSchema)
	if err != nil {
		return nil, "", err
	}

	if provider.Field(doc, "kind") != "code" {
		text := provider.Field(doc, "response_text")
		if text == "" {
			text = "Could you give me a bit more detail about what you'd like built?"
		}
		return nil, text, nil
	}

	files := parseFiles(doc)
	if len(files) == 0 {
		return nil, "", fmt.Errorf("code response carried no files")
	}
	explanation := provider.Field(doc, "explanation")
	if explanation == "" {
		explanation = fmt.Sprintf("Generated %d file(s).", len(files))
	}
	return files, explanation, nil
}

// findPendingTask scans persisted messages backward for the most recent
// AI message carrying an incomplete plan with a pending task. Returns
// nil when the agent should treat the prompt as a fresh build request.
func findPendingTask(messages []*models.OutgoingMessage) *taskRun {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.SenderRole != models.SenderAI || msg.Plan == nil || msg.Plan.IsComplete {
			continue
		}
		plan := clonePlan(msg.Plan)
		for j, task := range plan.Tasks {
			if task.Status == models.TaskPending {
				return &taskRun{messageID: msg.ID, plan: plan, taskIndex: j}
			}
		}
		return nil
	}
	return nil
}

// clonePlan deep-copies a plan so mutations never alias the persisted
// message's copy.
func clonePlan(plan *models.Plan) *models.Plan {
	out := *plan
	out.Tasks = make([]models.Task, len(plan.Tasks))
	copy(out.Tasks, plan.Tasks)
	out.Features = append([]string(nil), plan.Features...)
	return &out
}

func parseFiles(doc []byte) []models.ProjectFile {
	items := gjson.GetBytes(doc, "files").Array()
	files := make([]models.ProjectFile, 0, len(items))
	for _, item := range items {
		path := strings.TrimSpace(item.Get("file_path").String())
		code := item.Get("code").String()
		if path == "" || code == "" {
			continue
		}
		files = append(files, models.ProjectFile{
			Path:     path,
			Code:     code,
			Language: item.Get("language").String(),
		})
	}
	return files
}

func fileMap(files []models.ProjectFile) map[string]models.ProjectFile {
	out := make(map[string]models.ProjectFile, len(files))
	for _, f := range files {
		out[f.Path] = f
	}
	return out
}

func joinFileCode(files []models.ProjectFile) string {
	if len(files) == 1 {
		return files[0].Code
	}
	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "// %s\n%s", f.Path, f.Code)
	}
	return b.String()
}

func existingFilesBlock(project *models.Project) string {
	if project == nil || len(project.Files) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nExisting project files:\n")
	for path := range project.Files {
		fmt.Fprintf(&b, "- %s\n", path)
	}
	return strings.TrimRight(b.String(), "\n")
}
