// Package agent implements the conversation orchestration core: the
// router, the seven agent strategies, and the plan executor.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
)

// AgentInput is the single value every agent strategy consumes.
// Answers is present if and only if this invocation resumes a prior
// clarification turn for the same logical request.
type AgentInput struct {
	Prompt        string
	APIKey        string
	Model         string
	Project       *models.Project
	Chat          models.Chat
	UserID        string
	Profile       *models.Profile
	History       []models.ConversationTurn
	Messages      []*models.OutgoingMessage // persisted messages, oldest first
	WorkspaceMode models.WorkspaceMode
	Answers       []string
	Sink          provider.Sink
	MemoryContext string
}

// PlanRef points a plan mutation at the specific prior message the plan
// lives in. Plans are not standalone entities; mutating one means
// mutating that message's plan field.
type PlanRef struct {
	MessageID string       `json:"message_id"`
	Plan      *models.Plan `json:"plan"`
}

// AgentExecutionResult is what every agent returns. Messages is never
// empty on success; on total failure it holds exactly one synthetic
// error message.
type AgentExecutionResult struct {
	Messages      []*models.OutgoingMessage
	ProjectUpdate *models.ProjectUpdate
	UpdatedPlan   *PlanRef
}

// Agent is one conversation strategy. Strategies differ in prompting
// and schema, not in contract.
type Agent interface {
	Name() string
	Execute(ctx context.Context, input *AgentInput) (*AgentExecutionResult, error)
}

// request assembles the provider request shared by every agent call:
// per-caller key, model with project default fallback, trimmed history.
func (in *AgentInput) request() provider.Request {
	model := in.Model
	if model == "" && in.Project != nil {
		model = in.Project.DefaultModel
	}
	return provider.Request{
		Model:   model,
		APIKey:  in.APIKey,
		History: in.History,
	}
}

// aiMessage builds an AI-sender message tagged with the originating
// chat and project so the UI can render it in place.
func (in *AgentInput) aiMessage(text string) *models.OutgoingMessage {
	projectID := in.Chat.ProjectID
	if projectID == "" && in.Project != nil {
		projectID = in.Project.ID
	}
	return &models.OutgoingMessage{
		ID:         uuid.NewString(),
		ChatID:     in.Chat.ID,
		ProjectID:  projectID,
		Text:       text,
		SenderRole: models.SenderAI,
		CreatedAt:  time.Now(),
	}
}

// singleMessage wraps one message into a result.
func singleMessage(msg *models.OutgoingMessage) *AgentExecutionResult {
	return &AgentExecutionResult{Messages: []*models.OutgoingMessage{msg}}
}

// emit forwards a chunk to the sink when one is attached.
func (in *AgentInput) emit(chunk string) {
	if in.Sink != nil {
		in.Sink(chunk)
	}
}
