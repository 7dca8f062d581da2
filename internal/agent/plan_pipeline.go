package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
)

const (
	clarifyInstruction = `The user wants something planned and built. Decide whether you have
enough detail to produce a good implementation plan. If anything important is ambiguous
(platform, scope, key behaviors), ask up to four short clarifying questions. If the request
is already clear, return an empty questions list.`

	planInstruction = `Produce a concrete implementation plan for the user's request. The
introduction is two or three sentences of plain prose for the user. Features are short
noun phrases. The mermaid graph is a valid flowchart of the build order. Tasks are ordered,
each one independently executable by a code-generation agent, each assuming the files from
earlier tasks already exist.`
)

var (
	clarifySchema = provider.Schema{
		Name: "clarifying_questions",
		Definition: provider.Object(map[string]any{
			"questions": provider.Array(provider.String()),
		}),
	}

	planSchema = provider.Schema{
		Name: "implementation_plan",
		Definition: provider.Object(map[string]any{
			"title":         provider.String(),
			"introduction":  provider.String(),
			"features":      provider.Array(provider.String()),
			"mermaid_graph": provider.String(),
			"tasks":         provider.Array(provider.String()),
		}),
	}
)

// planRetryBackoff holds the waits between plan generation attempts;
// the attempt count is one more than its length.
var planRetryBackoff = []time.Duration{time.Second, 2 * time.Second}

// planPipeline is the clarification-then-plan flow shared by Pro-Max
// and the Super-Agent. Pro-Max turns on the bounded retry; everything
// else fails fast on the first provider error.
type planPipeline struct {
	completer provider.Completer
	logger    *zap.Logger
	retry     bool
}

func (p *planPipeline) run(ctx context.Context, input *AgentInput) (*AgentExecutionResult, error) {
	// Answers present means this call resumes a prior clarification,
	// so the question phase is skipped.
	if input.Answers == nil {
		questions, err := p.clarify(ctx, input)
		if err != nil {
			p.logger.Warn("clarification call failed", zap.String("chat_id", input.Chat.ID), zap.Error(err))
			return singleMessage(input.aiMessage(userSafeMessage(err))), nil
		}
		if len(questions) > 0 {
			msg := input.aiMessage("Before I draft a plan, I have a few questions:")
			msg.Clarification = &models.Clarification{Prompt: input.Prompt, Questions: questions}
			input.emit(msg.Text)
			return singleMessage(msg), nil
		}
	}

	plan, err := p.generatePlan(ctx, input)
	if err != nil {
		p.logger.Warn("plan generation failed", zap.String("chat_id", input.Chat.ID), zap.Error(err))
		return singleMessage(input.aiMessage(userSafeMessage(err))), nil
	}

	text := plan.Introduction
	if text == "" {
		text = fmt.Sprintf("Here's the plan for %s.", plan.Title)
	}
	input.emit(text)
	msg := input.aiMessage(text)
	msg.Plan = plan
	return singleMessage(msg), nil
}

func (p *planPipeline) clarify(ctx context.Context, input *AgentInput) ([]string, error) {
	req := input.request()
	req.Instruction = withMemoryContext(clarifyInstruction, input)
	req.Prompt = input.Prompt

	doc, err := p.completer.CompleteJSON(ctx, req, clarifySchema)
	if err != nil {
		return nil, err
	}
	questions := provider.StringSlice(doc, "questions")
	out := questions[:0]
	for _, q := range questions {
		if strings.TrimSpace(q) != "" {
			out = append(out, q)
		}
	}
	return out, nil
}

func (p *planPipeline) generatePlan(ctx context.Context, input *AgentInput) (*models.Plan, error) {
	req := input.request()
	req.Instruction = withMemoryContext(planInstruction, input)
	req.Prompt = planPrompt(input)

	attempts := 1
	if p.retry {
		attempts = len(planRetryBackoff) + 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(planRetryBackoff[attempt-1]):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		doc, err := p.completer.CompleteJSON(ctx, req, planSchema)
		if err == nil {
			plan, parseErr := parsePlan(doc)
			if parseErr == nil {
				return plan, nil
			}
			err = parseErr
		}
		lastErr = err
	}
	return nil, fmt.Errorf("plan generation failed after %d attempts: %w", attempts, lastErr)
}

// planPrompt combines the original request with clarification answers
// on resumption. Answers are paired with the questions from the most
// recent clarification message when one is available, in order.
func planPrompt(input *AgentInput) string {
	if len(input.Answers) == 0 {
		return input.Prompt
	}
	var b strings.Builder
	b.WriteString(input.Prompt)
	b.WriteString("\n\nThe user answered the clarifying questions:\n")
	questions := lastClarificationQuestions(input.Messages)
	for i, answer := range input.Answers {
		if i < len(questions) {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", questions[i], answer)
		} else {
			fmt.Fprintf(&b, "A: %s\n", answer)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func lastClarificationQuestions(messages []*models.OutgoingMessage) []string {
	for i := len(messages) - 1; i >= 0; i-- {
		if c := messages[i].Clarification; c != nil && len(c.Answers) == 0 {
			return c.Questions
		}
	}
	return nil
}

func parsePlan(doc []byte) (*models.Plan, error) {
	taskTexts := provider.StringSlice(doc, "tasks")
	if len(taskTexts) == 0 {
		return nil, fmt.Errorf("plan response carried no tasks")
	}
	tasks := make([]models.Task, 0, len(taskTexts))
	for _, text := range taskTexts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		tasks = append(tasks, models.Task{Text: text, Status: models.TaskPending})
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("plan response carried no tasks")
	}
	return &models.Plan{
		Title:        provider.Field(doc, "title"),
		Introduction: provider.Field(doc, "introduction"),
		Features:     provider.StringSlice(doc, "features"),
		MermaidGraph: provider.Field(doc, "mermaid_graph"),
		Tasks:        tasks,
	}, nil
}
