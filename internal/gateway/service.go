// Package gateway exposes the orchestration core over HTTP: a message
// send endpoint, a websocket variant that streams chunks, and a plan
// execution endpoint.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/agent"
	"github.com/chatforge/chatforge/internal/memory"
	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
	"github.com/chatforge/chatforge/internal/store"
)

// SendRequest is the wire shape of one inbound user message.
type SendRequest struct {
	Prompt        string   `json:"prompt"`
	APIKey        string   `json:"api_key"`
	Model         string   `json:"model,omitempty"`
	UserID        string   `json:"user_id"`
	WorkspaceMode string   `json:"workspace_mode,omitempty"`
	Answers       []string `json:"answers,omitempty"`
}

// TurnResponse is what a completed turn returns to the caller.
type TurnResponse struct {
	Messages    []*models.OutgoingMessage `json:"messages"`
	Project     *models.Project           `json:"project,omitempty"`
	UpdatedPlan *agent.PlanRef            `json:"updated_plan,omitempty"`
}

// Service runs conversation turns end to end: input assembly, dispatch,
// result persistence, and the fire-and-forget memory extraction that
// follows every turn.
type Service struct {
	router    *agent.Router
	executor  *agent.PlanExecutor
	store     store.Gateway
	extractor *memory.Extractor
	saver     *memory.Saver
	timeout   time.Duration
	logger    *zap.Logger
}

func NewService(router *agent.Router, executor *agent.PlanExecutor, st store.Gateway, extractor *memory.Extractor, saver *memory.Saver, timeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		router:    router,
		executor:  executor,
		store:     st,
		extractor: extractor,
		saver:     saver,
		timeout:   timeout,
		logger:    logger,
	}
}

// RunTurn executes one conversation turn for a chat and persists
// everything it produced. Sink may be nil for non-streaming callers.
func (s *Service) RunTurn(ctx context.Context, chatID string, req *SendRequest, sink provider.Sink) (*TurnResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	input, err := s.assembleInput(ctx, chatID, req, sink)
	if err != nil {
		return nil, err
	}

	userMsg := &models.OutgoingMessage{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		ProjectID:  input.Chat.ProjectID,
		Text:       req.Prompt,
		SenderRole: models.SenderUser,
		CreatedAt:  time.Now(),
	}
	if err := s.store.PutMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	result := s.router.Dispatch(ctx, input)

	// Answers resolve the pending clarification they respond to. Attached
	// after dispatch, since the planner pairs answers against the
	// clarification that is still unanswered in the loaded history.
	if len(req.Answers) > 0 {
		s.attachAnswers(ctx, input.Messages, req.Answers)
	}

	resp := s.persistResult(ctx, input, result)

	s.extractAsync(input, result)
	return resp, nil
}

// assembleInput loads the chat, its project, the caller's profile, and
// the persisted message history into one AgentInput.
func (s *Service) assembleInput(ctx context.Context, chatID string, req *SendRequest, sink provider.Sink) (*agent.AgentInput, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat %s: %w", chatID, err)
	}

	var project *models.Project
	if chat.ProjectID != "" {
		project, err = s.store.GetProject(ctx, chat.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("load project %s: %w", chat.ProjectID, err)
		}
	}

	profile, err := s.store.GetProfile(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", req.UserID, err)
	}

	messages, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load history for chat %s: %w", chatID, err)
	}

	mode := models.WorkspaceMode(req.WorkspaceMode)
	if mode != models.WorkspaceAutonomous {
		mode = models.WorkspaceCocreator
	}

	return &agent.AgentInput{
		Prompt:        req.Prompt,
		APIKey:        req.APIKey,
		Model:         req.Model,
		Project:       project,
		Chat:          *chat,
		UserID:        req.UserID,
		Profile:       profile,
		History:       turnsFromMessages(messages),
		Messages:      messages,
		WorkspaceMode: mode,
		Answers:       req.Answers,
		Sink:          sink,
	}, nil
}

// attachAnswers records the answers on the most recent unanswered
// clarification and persists it. A clarification that already carries
// answers is never touched again.
func (s *Service) attachAnswers(ctx context.Context, messages []*models.OutgoingMessage, answers []string) {
	for i := len(messages) - 1; i >= 0; i-- {
		c := messages[i].Clarification
		if c == nil || len(c.Answers) > 0 {
			continue
		}
		c.Answers = answers
		if err := s.store.PutMessage(ctx, messages[i]); err != nil {
			s.logger.Warn("attach clarification answers failed",
				zap.String("message_id", messages[i].ID), zap.Error(err))
		}
		return
	}
}

// persistResult writes the agent's messages and applies project and
// plan mutations. Persistence failures here are logged, not fatal; the
// caller still gets the turn result.
func (s *Service) persistResult(ctx context.Context, input *agent.AgentInput, result *agent.AgentExecutionResult) *TurnResponse {
	resp := &TurnResponse{Messages: result.Messages, UpdatedPlan: result.UpdatedPlan}

	for _, msg := range result.Messages {
		if err := s.store.PutMessage(ctx, msg); err != nil {
			s.logger.Warn("persist agent message failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	if result.ProjectUpdate != nil && input.Project != nil {
		project, err := s.store.ApplyProjectUpdate(ctx, input.Project.ID, result.ProjectUpdate)
		if err != nil {
			s.logger.Warn("apply project update failed", zap.String("project_id", input.Project.ID), zap.Error(err))
		} else {
			resp.Project = project
		}
		if s.saver != nil {
			// Feed emitted files into the codebase memory layer so later
			// turns can reason about what each file is for.
			summary := result.Messages[len(result.Messages)-1].Text
			for path := range result.ProjectUpdate.Files {
				s.saver.SaveFileFactAsync(input.Project.ID, path, summary)
			}
		}
	}

	if result.UpdatedPlan != nil {
		if err := s.store.UpdateMessagePlan(ctx, result.UpdatedPlan.MessageID, result.UpdatedPlan.Plan); err != nil {
			s.logger.Warn("plan update failed", zap.String("message_id", result.UpdatedPlan.MessageID), zap.Error(err))
		}
	}
	return resp
}

// extractAsync runs the cross-cutting memory extraction for the
// exchange after the result is already on its way back. Failures are
// logged and swallowed; there is no ordering guarantee relative to the
// next turn.
func (s *Service) extractAsync(input *agent.AgentInput, result *agent.AgentExecutionResult) {
	if s.extractor == nil || len(result.Messages) == 0 {
		return
	}
	prompt := input.Prompt
	response := result.Messages[len(result.Messages)-1].Text
	req := provider.Request{Model: input.Model, APIKey: input.APIKey}
	if req.Model == "" && input.Project != nil {
		req.Model = input.Project.DefaultModel
	}
	userID := input.UserID
	projectID := input.Chat.ProjectID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		mem, err := s.extractor.ExtractFromExchange(ctx, req, prompt, response)
		if err != nil {
			s.logger.Warn("memory extraction failed", zap.String("user_id", userID), zap.Error(err))
			return
		}
		if mem == nil {
			return
		}
		mem.UserID = userID
		if mem.ProjectID == "" {
			mem.ProjectID = projectID
		}
		s.saver.SaveAsync(mem)
	}()
}

// ExecutePlan drives the plan embedded in a message to completion.
func (s *Service) ExecutePlan(ctx context.Context, messageID string, req *SendRequest, sink provider.Sink) (*models.Plan, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", messageID, err)
	}
	if msg.Plan == nil {
		return nil, fmt.Errorf("message %s carries no plan", messageID)
	}

	input, err := s.assembleInput(ctx, msg.ChatID, req, sink)
	if err != nil {
		return nil, err
	}
	return s.executor.ExecutePlan(ctx, input, messageID, msg.Plan)
}

func turnsFromMessages(messages []*models.OutgoingMessage) []models.ConversationTurn {
	turns := make([]models.ConversationTurn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, models.ConversationTurn{
			Prompt:     msg.Text,
			SenderRole: msg.SenderRole,
		})
	}
	return turns
}
