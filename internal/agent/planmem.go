package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/memory"
	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
)

// MemorySink selects where the memory-writer branch lands its output.
// The agent contract is the same either way: zero-or-more memory
// writes OR one conversational reply, never both.
type MemorySink string

const (
	// SinkProjectBlob folds the decision into project.project_memory as
	// a project-level update.
	SinkProjectBlob MemorySink = "project_blob"
	// SinkRecords emits discrete memory records through the async saver.
	SinkRecords MemorySink = "records"
)

const planMemInstruction = `You decide whether the user's message contains something worth
remembering durably, or whether it just needs a conversational reply. Preferences, project
facts, codebase conventions, and aesthetic choices are worth remembering. Questions and
smalltalk are not. Set decision to "memory" only when there is real durable content.`

var planMemSchema = provider.Schema{
	Name: "memory_decision",
	Definition: provider.Object(map[string]any{
		"decision": provider.Enum("memory", "reply"),
		"memories_to_create": provider.Array(provider.Object(map[string]any{
			"layer":      provider.Enum("personal", "project", "codebase", "aesthetic"),
			"content":    provider.String(),
			"importance": provider.Number(),
		})),
		"response_text": provider.String(),
	}),
}

// AllRetriever is the non-semantic retrieval variant: every memory per
// layer, ordered by importance rather than ranked against a prompt.
type AllRetriever interface {
	AllContext(ctx context.Context, userID, projectID string) (string, error)
}

// PlanMemoryAgent is the Plan-mode memory writer. Its sink is fixed at
// construction by the calling context.
type PlanMemoryAgent struct {
	completer provider.Completer
	saver     *memory.Saver
	memories  AllRetriever
	sink      MemorySink
	logger    *zap.Logger
}

func NewPlanMemoryAgent(completer provider.Completer, saver *memory.Saver, memories AllRetriever, sink MemorySink, logger *zap.Logger) *PlanMemoryAgent {
	return &PlanMemoryAgent{completer: completer, saver: saver, memories: memories, sink: sink, logger: logger}
}

func (a *PlanMemoryAgent) Name() string { return "plan" }

func (a *PlanMemoryAgent) Execute(ctx context.Context, input *AgentInput) (*AgentExecutionResult, error) {
	// Deciding what to remember needs everything already remembered,
	// not just entries ranked against this prompt.
	if a.memories != nil {
		projectID := ""
		if input.Project != nil {
			projectID = input.Project.ID
		}
		if all, err := a.memories.AllContext(ctx, input.UserID, projectID); err == nil && all != "" {
			input.MemoryContext = all
		}
	}

	req := input.request()
	req.Instruction = withMemoryContext(planMemInstruction, input)
	req.Prompt = input.Prompt

	doc, err := a.completer.CompleteJSON(ctx, req, planMemSchema)
	if err != nil {
		a.logger.Warn("memory decision failed", zap.String("chat_id", input.Chat.ID), zap.Error(err))
		return singleMessage(input.aiMessage(userSafeMessage(err))), nil
	}

	if provider.Field(doc, "decision") != "memory" {
		reply := provider.Field(doc, "response_text")
		if reply == "" {
			reply = "Noted. Is there anything else you'd like me to keep in mind?"
		}
		input.emit(reply)
		return singleMessage(input.aiMessage(reply)), nil
	}

	entries := parseMemoryEntries(doc, "memories_to_create", input)
	if len(entries) == 0 {
		reply := "I didn't find anything in that message worth saving long-term. Could you rephrase what you'd like me to remember?"
		input.emit(reply)
		return singleMessage(input.aiMessage(reply)), nil
	}

	switch a.sink {
	case SinkProjectBlob:
		return a.saveAsProjectBlob(input, entries), nil
	default:
		return a.saveAsRecords(input, entries), nil
	}
}

// saveAsProjectBlob appends the new entries as bullet lines onto the
// accumulated project memory text.
func (a *PlanMemoryAgent) saveAsProjectBlob(input *AgentInput, entries []*models.Memory) *AgentExecutionResult {
	var b strings.Builder
	if input.Project != nil && input.Project.ProjectMemory != "" {
		b.WriteString(input.Project.ProjectMemory)
		b.WriteString("\n")
	}
	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- [%s] %s", entry.Layer, entry.Content)
	}
	blob := b.String()

	text := confirmationText(entries)
	input.emit(text)
	result := singleMessage(input.aiMessage(text))
	result.ProjectUpdate = &models.ProjectUpdate{ProjectMemory: &blob}
	return result
}

// saveAsRecords hands the entries to the fire-and-forget saver.
func (a *PlanMemoryAgent) saveAsRecords(input *AgentInput, entries []*models.Memory) *AgentExecutionResult {
	a.saver.SaveAsync(entries...)
	text := confirmationText(entries)
	input.emit(text)
	return singleMessage(input.aiMessage(text))
}

func confirmationText(entries []*models.Memory) string {
	if len(entries) == 1 {
		return fmt.Sprintf("Got it, I'll remember that: %s", entries[0].Content)
	}
	var b strings.Builder
	b.WriteString("Got it, I'll remember these:\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "- %s\n", entry.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// parseMemoryEntries reads an array of memory objects out of a schema
// response and stamps them with the caller's identity. Entries with
// empty content are dropped; importance is clamped to [0,1].
func parseMemoryEntries(doc []byte, path string, input *AgentInput) []*models.Memory {
	items := gjson.GetBytes(doc, path).Array()
	entries := make([]*models.Memory, 0, len(items))
	for _, item := range items {
		content := strings.TrimSpace(item.Get("content").String())
		if content == "" {
			continue
		}
		importance := item.Get("importance").Float()
		if importance < 0 {
			importance = 0
		}
		if importance > 1 {
			importance = 1
		}
		layer := models.MemoryLayer(item.Get("layer").String())
		switch layer {
		case models.LayerPersonal, models.LayerProject, models.LayerCodebase, models.LayerAesthetic:
		default:
			layer = models.LayerPersonal
		}
		projectID := ""
		if input.Project != nil {
			projectID = input.Project.ID
		}
		entries = append(entries, &models.Memory{
			ID:         uuid.NewString(),
			UserID:     input.UserID,
			Layer:      layer,
			Content:    content,
			Importance: importance,
			ProjectID:  projectID,
			CreatedAt:  time.Now(),
		})
	}
	return entries
}
