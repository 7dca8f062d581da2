// Package history bounds conversation growth before histories reach an
// agent or the completion provider.
package history

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
)

// Summarizer compresses long histories into a bounded form: when a
// history exceeds TurnBudget turns, everything but the most recent
// KeepTurns is folded into one synthetic summary turn.
type Summarizer struct {
	completer  provider.Completer
	turnBudget int
	keepTurns  int
	logger     *zap.Logger
}

// NewSummarizer creates a summarizer. keepTurns must be below turnBudget.
func NewSummarizer(completer provider.Completer, turnBudget, keepTurns int, logger *zap.Logger) *Summarizer {
	if turnBudget <= 0 {
		turnBudget = 30
	}
	if keepTurns <= 0 || keepTurns >= turnBudget {
		keepTurns = turnBudget / 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		completer:  completer,
		turnBudget: turnBudget,
		keepTurns:  keepTurns,
		logger:     logger,
	}
}

// Summarize returns a bounded history. Histories under budget pass
// through untouched aside from blank-turn stripping; summarization is
// best-effort and degrades to pass-through on provider failure.
func (s *Summarizer) Summarize(ctx context.Context, req provider.Request, history []models.ConversationTurn) []models.ConversationTurn {
	history = stripBlank(history)
	if len(history) <= s.turnBudget {
		return history
	}

	head := history[:len(history)-s.keepTurns]
	tail := history[len(history)-s.keepTurns:]

	summary, err := s.summarizeTurns(ctx, req, head)
	if err != nil {
		s.logger.Warn("history summarization failed, using full history", zap.Error(err))
		return history
	}

	compact := make([]models.ConversationTurn, 0, len(tail)+1)
	compact = append(compact, models.ConversationTurn{
		Prompt:     "Summary of the earlier conversation: " + summary,
		SenderRole: models.SenderAI,
	})
	compact = append(compact, tail...)
	return compact
}

func (s *Summarizer) summarizeTurns(ctx context.Context, req provider.Request, turns []models.ConversationTurn) (string, error) {
	var transcript strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&transcript, "%s: %s\n", turn.SenderRole, turn.Prompt)
	}

	req.Instruction = "Summarize the conversation transcript below. Keep every decision, requirement, and open question; drop pleasantries. Answer with the summary only."
	req.History = nil
	req.Prompt = transcript.String()

	summary, err := s.completer.CompleteText(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summarization call failed: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("summarizer returned empty text")
	}
	return summary, nil
}

// stripBlank removes turns whose text is empty after trimming, which
// would otherwise trip provider-side validation.
func stripBlank(history []models.ConversationTurn) []models.ConversationTurn {
	out := make([]models.ConversationTurn, 0, len(history))
	for _, turn := range history {
		if strings.TrimSpace(turn.Prompt) == "" {
			continue
		}
		out = append(out, turn)
	}
	return out
}
