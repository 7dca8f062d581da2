// Package store is the persistence gateway: a key-addressable, durable
// store for projects, chats, messages, plans, profiles, and the global
// cost table, with last-writer-wins semantics.
package store

import (
	"context"
	"errors"

	"github.com/chatforge/chatforge/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrInsufficientCredits is returned by DecrementCredits when the
// profile balance cannot cover the amount. It is a domain outcome, not a
// failure; callers branch on it without treating it as an error path.
var ErrInsufficientCredits = errors.New("store: insufficient credits")

// Gateway is the persistence surface the orchestration core depends on.
type Gateway interface {
	// GetProject reads a project record.
	GetProject(ctx context.Context, id string) (*models.Project, error)

	// PutProject writes a whole project record.
	PutProject(ctx context.Context, project *models.Project) error

	// ApplyProjectUpdate merges a partial update into a project. Files
	// merge path by path over the existing map; last write wins.
	ApplyProjectUpdate(ctx context.Context, id string, update *models.ProjectUpdate) (*models.Project, error)

	// GetChat reads a chat record.
	GetChat(ctx context.Context, id string) (*models.Chat, error)

	// PutChat writes a chat record.
	PutChat(ctx context.Context, chat *models.Chat) error

	// PutMessage persists an outgoing message.
	PutMessage(ctx context.Context, msg *models.OutgoingMessage) error

	// GetMessage reads a message by id.
	GetMessage(ctx context.Context, id string) (*models.OutgoingMessage, error)

	// UpdateMessagePlan replaces the plan embedded in a message. Plans
	// live inside messages, so mutating a plan is a message mutation.
	UpdateMessagePlan(ctx context.Context, messageID string, plan *models.Plan) error

	// ListMessages returns a chat's messages in persistence order.
	ListMessages(ctx context.Context, chatID string) ([]*models.OutgoingMessage, error)

	// GetProfile reads a caller's profile.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)

	// PutProfile writes a profile record.
	PutProfile(ctx context.Context, profile *models.Profile) error

	// DecrementCredits atomically deducts credits from a profile,
	// returning ErrInsufficientCredits if the balance is too low.
	DecrementCredits(ctx context.Context, userID string, amount int64) error

	// GetCostSettings reads the single global cost-settings record.
	GetCostSettings(ctx context.Context) (*models.CostSettings, error)

	// PutCostSettings writes the global cost-settings record.
	PutCostSettings(ctx context.Context, settings *models.CostSettings) error

	// Close releases the underlying store.
	Close() error
}
