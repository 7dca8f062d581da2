package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
)

const (
	standingInstruction = `Take the user's request and build the strongest optimistic position:
what should be done and why it would work. Think first, then respond.`

	opposingInstruction = `You are the devil's advocate. Given the user's request and a prior
standing argument, critique it: find the weaknesses, the risks, and what it overlooks.
Think first, then respond.`

	synthesisInstruction = `You have a standing argument and an opposing critique for the
user's request. Weigh both honestly and give the user a final, balanced recommendation in
plain prose. Do not mention that two prior arguments exist.`
)

var thinkerStepSchema = provider.Schema{
	Name: "thinker_step",
	Definition: provider.Object(map[string]any{
		"thought":  provider.String(),
		"response": provider.String(),
	}),
}

// ThinkerAgent runs a fixed three-step debate. The steps are strictly
// sequential: step 2 consumes step 1's response text and step 3
// consumes both, so no parallelism is possible here.
type ThinkerAgent struct {
	completer provider.Completer
	logger    *zap.Logger
}

func NewThinkerAgent(completer provider.Completer, logger *zap.Logger) *ThinkerAgent {
	return &ThinkerAgent{completer: completer, logger: logger}
}

func (a *ThinkerAgent) Name() string { return "thinker" }

func (a *ThinkerAgent) Execute(ctx context.Context, input *AgentInput) (*AgentExecutionResult, error) {
	standing, err := a.step(ctx, input, standingInstruction, input.Prompt)
	if err != nil {
		return a.fail(input, "standing", err), nil
	}

	opposingPrompt := fmt.Sprintf("%s\n\nThe standing argument to critique:\n%s", input.Prompt, standing.Response)
	opposing, err := a.step(ctx, input, opposingInstruction, opposingPrompt)
	if err != nil {
		return a.fail(input, "opposing", err), nil
	}

	req := input.request()
	req.Instruction = withMemoryContext(synthesisInstruction, input)
	req.Prompt = fmt.Sprintf(
		"%s\n\nStanding argument:\n%s\n\nOpposing critique:\n%s",
		input.Prompt, standing.Response, opposing.Response,
	)
	final, err := a.completer.CompleteText(ctx, req)
	if err != nil {
		return a.fail(input, "synthesis", err), nil
	}

	input.emit(final)
	msg := input.aiMessage(final)
	msg.Standing = standing
	msg.Opposing = opposing
	return singleMessage(msg), nil
}

func (a *ThinkerAgent) step(ctx context.Context, input *AgentInput, instruction, prompt string) (*models.ThinkerStep, error) {
	req := input.request()
	req.Instruction = withMemoryContext(instruction, input)
	req.Prompt = prompt

	doc, err := a.completer.CompleteJSON(ctx, req, thinkerStepSchema)
	if err != nil {
		return nil, err
	}
	step := &models.ThinkerStep{
		Thought:  provider.Field(doc, "thought"),
		Response: provider.Field(doc, "response"),
	}
	if step.Response == "" {
		return nil, fmt.Errorf("thinker step returned an empty response")
	}
	return step, nil
}

func (a *ThinkerAgent) fail(input *AgentInput, stage string, err error) *AgentExecutionResult {
	a.logger.Warn("thinker step failed",
		zap.String("chat_id", input.Chat.ID),
		zap.String("stage", stage),
		zap.Error(err))
	return singleMessage(input.aiMessage(userSafeMessage(err)))
}
