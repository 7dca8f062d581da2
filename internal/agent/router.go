package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
	"github.com/chatforge/chatforge/internal/store"
)

// HistorySummarizer compresses long histories before any agent sees
// them. Best effort; implementations return the input unchanged on
// failure.
type HistorySummarizer interface {
	Summarize(ctx context.Context, req provider.Request, history []models.ConversationTurn) []models.ConversationTurn
}

// ContextRetriever produces the ranked memory context block for a turn.
type ContextRetriever interface {
	Context(ctx context.Context, userID, prompt, projectID string) (string, error)
}

// AuditLog records dispatch outcomes. Recording failures are logged and
// swallowed; auditing never affects the turn result.
type AuditLog interface {
	Record(ctx context.Context, entry *store.AuditEntry) error
}

// Router selects exactly one agent per inbound message and wraps the
// whole turn in a failure boundary. Dispatch never fails: every error
// becomes a single AI message the UI can render in place.
type Router struct {
	agents     map[models.ChatMode]Agent
	autonomous Agent
	fallback   Agent
	summarizer HistorySummarizer
	retriever  ContextRetriever
	audit      AuditLog
	logger     *zap.Logger
}

// RouterConfig wires the router's collaborators. Summarizer, Retriever,
// and Audit may be nil; the corresponding step is skipped.
type RouterConfig struct {
	Chat       Agent
	Plan       Agent
	Build      Agent
	Thinker    Agent
	SuperAgent Agent
	ProMax     Agent
	Autonomous Agent
	Summarizer HistorySummarizer
	Retriever  ContextRetriever
	Audit      AuditLog
	Logger     *zap.Logger
}

func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		agents: map[models.ChatMode]Agent{
			models.ModeChat:       cfg.Chat,
			models.ModePlan:       cfg.Plan,
			models.ModeBuild:      cfg.Build,
			models.ModeThinker:    cfg.Thinker,
			models.ModeSuperAgent: cfg.SuperAgent,
			models.ModeProMax:     cfg.ProMax,
		},
		autonomous: cfg.Autonomous,
		fallback:   cfg.Build,
		summarizer: cfg.Summarizer,
		retriever:  cfg.Retriever,
		audit:      cfg.Audit,
		logger:     logger,
	}
}

// Dispatch runs one conversation turn end to end. It never returns an
// error and never panics outward; any failure yields a result holding
// exactly one AI-sender message with a user-safe explanation.
func (r *Router) Dispatch(ctx context.Context, input *AgentInput) (result *AgentExecutionResult) {
	started := time.Now()
	selected := r.selectAgent(input)

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("dispatch panic: %v", rec)
			r.logger.Error("dispatch recovered from panic",
				zap.String("chat_id", input.Chat.ID),
				zap.String("agent", selected.Name()),
				zap.Any("panic", rec))
			result = singleMessage(input.aiMessage(userSafeMessage(err)))
			r.record(input, selected, started, err)
		}
	}()

	if r.summarizer != nil {
		input.History = r.summarizer.Summarize(ctx, input.request(), input.History)
	}
	if r.retriever != nil && input.MemoryContext == "" {
		projectID := input.Chat.ProjectID
		block, err := r.retriever.Context(ctx, input.UserID, input.Prompt, projectID)
		if err != nil {
			// Memory is an enrichment; a turn proceeds without it.
			r.logger.Warn("memory retrieval failed", zap.String("user_id", input.UserID), zap.Error(err))
		} else {
			input.MemoryContext = block
		}
	}

	result, err := selected.Execute(ctx, input)
	if err != nil || result == nil || len(result.Messages) == 0 {
		if err == nil {
			err = fmt.Errorf("agent %s produced no messages", selected.Name())
		}
		r.logger.Error("agent execution failed",
			zap.String("chat_id", input.Chat.ID),
			zap.String("agent", selected.Name()),
			zap.Error(err))
		result = singleMessage(input.aiMessage(userSafeMessage(err)))
	}
	r.record(input, selected, started, err)
	return result
}

// selectAgent applies the routing table. Autonomous workspaces ignore
// chat mode entirely; in cocreator workspaces an unrecognized mode
// falls back to Build. That fallback is policy, not an error.
func (r *Router) selectAgent(input *AgentInput) Agent {
	if input.WorkspaceMode == models.WorkspaceAutonomous {
		return r.autonomous
	}
	switch input.Chat.Mode {
	case models.ModeChat, models.ModePlan, models.ModeBuild, models.ModeThinker, models.ModeSuperAgent, models.ModeProMax:
		return r.agents[input.Chat.Mode]
	default:
		return r.fallback
	}
}

func (r *Router) record(input *AgentInput, selected Agent, started time.Time, err error) {
	if r.audit == nil {
		return
	}
	entry := &store.AuditEntry{
		Timestamp: started,
		ChatID:    input.Chat.ID,
		ProjectID: input.Chat.ProjectID,
		UserID:    input.UserID,
		Agent:     selected.Name(),
		Duration:  time.Since(started),
		Success:   err == nil,
	}
	if err != nil {
		entry.ErrorClass = string(classifyError(err))
	}
	auditCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if recordErr := r.audit.Record(auditCtx, entry); recordErr != nil {
		r.logger.Warn("audit record failed", zap.Error(recordErr))
	}
}
